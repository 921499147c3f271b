package domain

import "time"

// InstanceStatus is the lifecycle state of a persisted instance row.
// The transition is monotonic: once STOPPED a row never returns to
// RUNNING; a new request creates a new row.
type InstanceStatus string

const (
	StatusRunning InstanceStatus = "RUNNING"
	StatusStopped InstanceStatus = "STOPPED"
)

// Instance is the persisted record of one tenant-exclusive Redis container.
// ContainerID is a back-reference into the container runtime, not an
// ownership relation: the container's lifecycle is driven by runtime calls.
type Instance struct {
	ID            int64          `db:"id" json:"id"`
	ContainerID   string         `db:"container_id" json:"containerId"`
	Port          int            `db:"port" json:"port"`
	TenantUser    string         `db:"tenant_user" json:"username"`
	TenantSecret  string         `db:"tenant_secret" json:"-"`
	AdminSecret   string         `db:"admin_secret" json:"-"`
	OwnerID       string         `db:"owner_id" json:"ownerId"`
	OverheadBytes int64          `db:"overhead_bytes" json:"-"`
	Status        InstanceStatus `db:"status" json:"status"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
}

// Account is a registered tenant.
type Account struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}
