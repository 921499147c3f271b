package service

import (
	"context"
	"fmt"

	"github.com/redisloft/redisloft/internal/core/ports"
)

// PortAllocator hands out host ports from a fixed range. A port counts as
// taken when any live container publishes it (whatever its state) or any
// RUNNING row records it; the union guards against both a container the
// store lost track of and a row whose container is momentarily down.
//
// The scan itself is not atomic against a concurrent allocation; the
// Provisioner serializes allocate+create under one mutex.
type PortAllocator struct {
	runtime ports.ContainerRuntime
	store   ports.InstanceStore
	start   int
	end     int
}

func NewPortAllocator(runtime ports.ContainerRuntime, store ports.InstanceStore, start, end int) (*PortAllocator, error) {
	if start <= 0 || end <= 0 || start > end {
		return nil, fmt.Errorf("invalid port range [%d-%d]", start, end)
	}
	return &PortAllocator{runtime: runtime, store: store, start: start, end: end}, nil
}

// Allocate returns the lowest free port in the range, or 0 when the range
// is exhausted. Exhaustion is a capacity condition, not an error.
func (a *PortAllocator) Allocate(ctx context.Context) (int, error) {
	taken, err := a.takenPorts(ctx)
	if err != nil {
		return 0, err
	}
	for port := a.start; port <= a.end; port++ {
		if _, ok := taken[port]; !ok {
			return port, nil
		}
	}
	return 0, nil
}

// InRange reports whether the port falls inside the configured range.
func (a *PortAllocator) InRange(port int) bool {
	return port >= a.start && port <= a.end
}

// Validate reports whether the requested port is inside the range and
// currently free.
func (a *PortAllocator) Validate(ctx context.Context, port int) (bool, error) {
	if !a.InRange(port) {
		return false, nil
	}
	taken, err := a.takenPorts(ctx)
	if err != nil {
		return false, err
	}
	_, ok := taken[port]
	return !ok, nil
}

func (a *PortAllocator) takenPorts(ctx context.Context) (map[int]struct{}, error) {
	taken := make(map[int]struct{})

	containers, err := a.runtime.ListContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	for _, c := range containers {
		for _, p := range c.PublicPorts {
			taken[p] = struct{}{}
		}
	}

	dbPorts, err := a.store.RunningPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query running ports: %w", err)
	}
	for _, p := range dbPorts {
		taken[p] = struct{}{}
	}
	return taken, nil
}
