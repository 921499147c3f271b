package store

// SQLite-backed persistence for accounts and instance rows, using sqlx.
// The schema is created at connect time; instance rows are append-only
// apart from the RUNNING -> STOPPED status transition.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/redisloft/redisloft/internal/core/domain"
	"github.com/redisloft/redisloft/internal/core/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS instances (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	container_id TEXT NOT NULL UNIQUE,
	port INTEGER NOT NULL,
	tenant_user TEXT NOT NULL,
	tenant_secret TEXT NOT NULL,
	admin_secret TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	overhead_bytes INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'RUNNING',
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instances_owner ON instances (owner_id);
CREATE INDEX IF NOT EXISTS idx_instances_status ON instances (status);

-- One RUNNING row per owner, enforced where it is atomic. Handlers
-- still pre-check for a friendlier error, but this index is what makes
-- two concurrent creates for the same account impossible.
CREATE UNIQUE INDEX IF NOT EXISTS idx_one_running_per_owner
	ON instances (owner_id) WHERE status = 'RUNNING';
`

// Store implements ports.InstanceStore and ports.AccountStore on one
// sqlite database.
type Store struct {
	db *sqlx.DB
}

// Connect opens the database and initializes the schema.
func Connect(dataSourceName string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; with a multi-connection pool a
	// concurrent write surfaces as SQLITE_BUSY instead of queueing.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, inst *domain.Instance) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO instances
			(container_id, port, tenant_user, tenant_secret, admin_secret, owner_id, overhead_bytes, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inst.ContainerID, inst.Port, inst.TenantUser, inst.TenantSecret, inst.AdminSecret,
		inst.OwnerID, inst.OverheadBytes, inst.Status, inst.CreatedAt)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %v", ports.ErrConflict, err)
		}
		return fmt.Errorf("failed to insert instance row: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read instance row id: %w", err)
	}
	inst.ID = id
	return nil
}

func (s *Store) RunningPorts(ctx context.Context) ([]int, error) {
	var out []int
	err := s.db.SelectContext(ctx, &out,
		`SELECT port FROM instances WHERE status = $1`, domain.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to query running ports: %w", err)
	}
	return out, nil
}

func (s *Store) RunningContainerIDs(ctx context.Context) ([]string, error) {
	var out []string
	err := s.db.SelectContext(ctx, &out,
		`SELECT container_id FROM instances WHERE status = $1`, domain.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("failed to query running container ids: %w", err)
	}
	return out, nil
}

func (s *Store) MarkStopped(ctx context.Context, containerID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE instances SET status = $1 WHERE container_id = $2 AND status != $1`,
		domain.StatusStopped, containerID)
	if err != nil {
		return fmt.Errorf("failed to stop instance row %s: %w", containerID, err)
	}
	return nil
}

func (s *Store) ByContainerID(ctx context.Context, containerID string) (*domain.Instance, error) {
	var inst domain.Instance
	err := s.db.GetContext(ctx, &inst,
		`SELECT * FROM instances WHERE container_id = $1`, containerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query instance %s: %w", containerID, err)
	}
	return &inst, nil
}

func (s *Store) ActiveByOwner(ctx context.Context, ownerID string) (*domain.Instance, error) {
	var inst domain.Instance
	err := s.db.GetContext(ctx, &inst,
		`SELECT * FROM instances WHERE owner_id = $1 AND status = $2 LIMIT 1`,
		ownerID, domain.StatusRunning)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active instance for %s: %w", ownerID, err)
	}
	return &inst, nil
}

func (s *Store) ByOwner(ctx context.Context, ownerID string) ([]domain.Instance, error) {
	var out []domain.Instance
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM instances WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances for %s: %w", ownerID, err)
	}
	return out, nil
}

func (s *Store) CreateAccount(ctx context.Context, acct *domain.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		acct.ID, acct.Email, acct.Name, acct.PasswordHash, acct.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var acct domain.Account
	err := s.db.GetContext(ctx, &acct,
		`SELECT * FROM accounts WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account %s: %w", email, err)
	}
	return &acct, nil
}
