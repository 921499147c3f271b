package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redisloft/redisloft/internal/core/domain"
	"github.com/redisloft/redisloft/internal/core/ports"
)

// Resource ceilings for every instance container. Memory and swap are
// pinned to the same value so the instance cannot spill to swap.
const (
	containerMemoryBytes = 32 * 1024 * 1024
	containerNanoCPUs    = 100_000_000 // 0.1 CPU
	containerPidsLimit   = 20
)

const (
	readinessInitialDelay = 250 * time.Millisecond
	readinessMaxDelay     = 2 * time.Second
)

// Provisioned is everything a successful provisioning call hands back.
// The caller persists the instance row from exactly this data; the
// provisioner itself never writes to the store.
type Provisioned struct {
	ContainerID   string
	Port          int
	TenantUser    string
	TenantSecret  string
	AdminSecret   string
	OverheadBytes int64
	CreatedAt     time.Time
}

// Provisioner orchestrates instance creation: allocate a port, start a
// resource-capped container, wait for it to answer, install the
// restricted tenant user and sample baseline memory. Any failure after
// the container exists tears it down before returning.
type Provisioner struct {
	// mu serializes allocate+create+start so two concurrent calls can
	// never pick the same port between the scan and the bind.
	mu sync.Mutex

	runtime      ports.ContainerRuntime
	alloc        *PortAllocator
	teardown     *Teardown
	log          *slog.Logger
	image        string
	readyTimeout time.Duration
	now          func() time.Time
}

func NewProvisioner(runtime ports.ContainerRuntime, alloc *PortAllocator, teardown *Teardown, image string, readyTimeout time.Duration, log *slog.Logger) *Provisioner {
	return &Provisioner{
		runtime:      runtime,
		alloc:        alloc,
		teardown:     teardown,
		log:          log,
		image:        image,
		readyTimeout: readyTimeout,
		now:          time.Now,
	}
}

// Provision creates a new instance for the owner. requestedPort of zero
// means "pick the lowest free port"; a non-zero request must be in range
// (ErrInvalidPort otherwise) and free. Returns ErrCapacityExhausted when
// no port can be had.
func (p *Provisioner) Provision(ctx context.Context, ownerID, ownerName string, requestedPort int) (*Provisioned, error) {
	adminSecret, err := newSecret()
	if err != nil {
		return nil, err
	}
	tenantSecret, err := newSecret()
	if err != nil {
		return nil, err
	}
	username := tenantUsername(ownerID)

	containerID, port, createdAt, err := p.createContainer(ctx, ownerID, ownerName, adminSecret, requestedPort)
	if err != nil {
		return nil, err
	}

	if err := p.waitReady(ctx, containerID, adminSecret); err != nil {
		p.teardown.Run(ctx, containerID)
		return nil, err
	}

	if err := p.installTenantUser(ctx, containerID, adminSecret, username, tenantSecret); err != nil {
		p.teardown.Run(ctx, containerID)
		return nil, err
	}

	overhead, err := p.sampleOverhead(ctx, containerID, adminSecret)
	if err != nil {
		p.teardown.Run(ctx, containerID)
		return nil, err
	}

	p.log.Info("instance provisioned",
		"container", containerID, "port", port, "owner", ownerID, "overhead_bytes", overhead)

	return &Provisioned{
		ContainerID:   containerID,
		Port:          port,
		TenantUser:    username,
		TenantSecret:  tenantSecret,
		AdminSecret:   adminSecret,
		OverheadBytes: overhead,
		CreatedAt:     createdAt,
	}, nil
}

// createContainer holds the allocation mutex across the port scan and the
// create+start calls, closing the scan-then-bind race window.
func (p *Provisioner) createContainer(ctx context.Context, ownerID, ownerName, adminSecret string, requestedPort int) (string, int, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	port := requestedPort
	if port == 0 {
		allocated, err := p.alloc.Allocate(ctx)
		if err != nil {
			return "", 0, time.Time{}, err
		}
		if allocated == 0 {
			return "", 0, time.Time{}, ErrCapacityExhausted
		}
		port = allocated
	} else {
		if !p.alloc.InRange(port) {
			return "", 0, time.Time{}, fmt.Errorf("%w: port %d", ErrInvalidPort, port)
		}
		free, err := p.alloc.Validate(ctx, port)
		if err != nil {
			return "", 0, time.Time{}, err
		}
		if !free {
			return "", 0, time.Time{}, fmt.Errorf("%w: port %d unavailable", ErrCapacityExhausted, port)
		}
	}

	createdAt := p.now()
	spec := ports.CreateSpec{
		Image:         p.image,
		Cmd:           serverCommand(adminSecret),
		ContainerPort: redisPort,
		HostPort:      port,
		MemoryBytes:   containerMemoryBytes,
		SwapBytes:     containerMemoryBytes,
		NanoCPUs:      containerNanoCPUs,
		PidsLimit:     containerPidsLimit,
		Labels: map[string]string{
			domain.LabelOwner:     ownerName,
			domain.LabelOwnerID:   ownerID,
			domain.LabelCreatedAt: strconv.FormatInt(createdAt.UnixMilli(), 10),
		},
	}

	containerID, err := p.runtime.CreateContainer(ctx, spec)
	if err != nil {
		return "", 0, time.Time{}, fmt.Errorf("failed to create container: %w", err)
	}
	if err := p.runtime.StartContainer(ctx, containerID); err != nil {
		p.teardown.Run(ctx, containerID)
		return "", 0, time.Time{}, fmt.Errorf("failed to start container %s: %w", containerID, err)
	}
	return containerID, port, createdAt, nil
}

// waitReady polls PING with exponential backoff until the server answers
// PONG or the deadline passes. Redis startup is normally well under a
// second, but a loaded host can stretch it.
func (p *Provisioner) waitReady(ctx context.Context, containerID, adminSecret string) error {
	deadline := p.now().Add(p.readyTimeout)
	delay := readinessInitialDelay

	for {
		out, err := p.runtime.ExecContainer(ctx, containerID, redisCLI(adminSecret, "ping"))
		if err == nil && strings.Contains(strings.ToUpper(out), "PONG") {
			return nil
		}
		if p.now().After(deadline) {
			return fmt.Errorf("%w: container %s", ErrReadinessTimeout, containerID)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrReadinessTimeout, ctx.Err())
		case <-time.After(delay):
		}
		if delay *= 2; delay > readinessMaxDelay {
			delay = readinessMaxDelay
		}
	}
}

func (p *Provisioner) installTenantUser(ctx context.Context, containerID, adminSecret, username, tenantSecret string) error {
	out, err := p.runtime.ExecContainer(ctx, containerID, aclSetupCommand(adminSecret, username, tenantSecret))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPrivilegeSetup, err)
	}
	if strings.Contains(out, "ERR") {
		return fmt.Errorf("%w: %s", ErrPrivilegeSetup, strings.TrimSpace(out))
	}
	return nil
}

// sampleOverhead reads the fresh instance's used_memory so later usage
// reports can subtract the idle baseline from the tenant's figure.
func (p *Provisioner) sampleOverhead(ctx context.Context, containerID, adminSecret string) (int64, error) {
	out, err := p.runtime.ExecContainer(ctx, containerID, InfoMemoryCommand(adminSecret))
	if err != nil {
		return 0, fmt.Errorf("failed to sample instance overhead: %w", err)
	}
	return parseUsedMemory(out), nil
}
