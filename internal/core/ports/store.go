package ports

import (
	"context"
	"errors"

	"github.com/redisloft/redisloft/internal/core/domain"
)

// ErrConflict is returned by Create when the row would violate a
// uniqueness rule: a duplicate container id, or a second RUNNING row for
// the same owner.
var ErrConflict = errors.New("conflicting instance row")

// InstanceStore persists instance rows. Rows are never deleted, only
// marked STOPPED. Lookups that miss return (nil, nil) rather than an
// error so callers can distinguish "absent" from "store broken".
type InstanceStore interface {
	// Create inserts a new row and fills in its store-assigned ID.
	// Returns ErrConflict when the row collides with an existing one.
	Create(ctx context.Context, inst *domain.Instance) error
	// RunningPorts returns the ports of all RUNNING rows.
	RunningPorts(ctx context.Context) ([]int, error)
	// RunningContainerIDs returns the container ids of all RUNNING rows.
	RunningContainerIDs(ctx context.Context) ([]string, error)
	// MarkStopped sets a row's status to STOPPED by container id. A row
	// that is already stopped, or absent, is left untouched.
	MarkStopped(ctx context.Context, containerID string) error
	// ByContainerID returns the row backed by the given container.
	ByContainerID(ctx context.Context, containerID string) (*domain.Instance, error)
	// ActiveByOwner returns the owner's RUNNING row, if any.
	ActiveByOwner(ctx context.Context, ownerID string) (*domain.Instance, error)
	// ByOwner returns all of the owner's rows, newest first.
	ByOwner(ctx context.Context, ownerID string) ([]domain.Instance, error)
}

// AccountStore persists tenant accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct *domain.Account) error
	// AccountByEmail returns (nil, nil) when no account matches.
	AccountByEmail(ctx context.Context, email string) (*domain.Account, error)
}
