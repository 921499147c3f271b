package ports

import (
	"context"
	"errors"

	"github.com/redisloft/redisloft/internal/core/domain"
)

// ErrNotFound is returned by runtime calls that reference a container the
// runtime no longer knows about. Teardown treats it as success.
var ErrNotFound = errors.New("container not found")

// CreateSpec describes a container to be created: the image, its startup
// command, the host port bound to ContainerPort, hard resource ceilings
// and the labels stamped onto it.
type CreateSpec struct {
	Image         string
	Cmd           []string
	ContainerPort int
	HostPort      int
	MemoryBytes   int64
	SwapBytes     int64
	NanoCPUs      int64
	PidsLimit     int64
	Labels        map[string]string
}

// ContainerRuntime defines the operations this system needs from a
// container runtime. The interface allows switching between Docker,
// Podman or a fake in tests without touching the business logic.
type ContainerRuntime interface {
	// ListContainers returns all containers regardless of state, with
	// their labels and published host ports.
	ListContainers(ctx context.Context) ([]domain.Container, error)
	// CreateContainer creates (without starting) a container and returns
	// its runtime-assigned id.
	CreateContainer(ctx context.Context, spec CreateSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	// ExecContainer runs a command inside a running container and returns
	// its combined stdout+stderr output.
	ExecContainer(ctx context.Context, id string, cmd []string) (string, error)
	StopContainer(ctx context.Context, id string) error
	// RemoveContainer force-removes a container together with its
	// anonymous volumes.
	RemoveContainer(ctx context.Context, id string) error
}
