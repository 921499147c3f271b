package domain

import (
	"strconv"
	"time"
)

// Label keys recorded on every container this system creates. The
// created-at label carries epoch milliseconds and is the runtime-side
// source of truth for TTL expiry, independent of the persisted row.
const (
	LabelOwner     = "owner"
	LabelOwnerID   = "ownerId"
	LabelCreatedAt = "created_at"
)

// Container is the runtime's view of a container (Docker, Podman, etc.),
// observed via list calls and never mutated directly.
type Container struct {
	ID          string            `json:"id"`
	Image       string            `json:"image"`
	State       string            `json:"state"` // running, exited, etc.
	Labels      map[string]string `json:"labels"`
	PublicPorts []int             `json:"publicPorts"`
}

// CreatedAt parses the creation-timestamp label. The second return is
// false when the label is absent or malformed, which means the container
// was not created by this system and must be left out of TTL decisions.
func (c Container) CreatedAt() (time.Time, bool) {
	raw, ok := c.Labels[LabelCreatedAt]
	if !ok {
		return time.Time{}, false
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}
