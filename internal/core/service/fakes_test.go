package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redisloft/redisloft/internal/core/domain"
	"github.com/redisloft/redisloft/internal/core/ports"
)

// fakeRuntime is an in-memory ports.ContainerRuntime. The default exec
// behavior answers like a healthy Redis instance; tests override execFn
// to simulate failures.
type fakeRuntime struct {
	mu         sync.Mutex
	containers map[string]domain.Container
	nextID     int

	listErr   error
	createErr error
	startErr  error

	execFn func(id string, cmd []string) (string, error)

	stopped []string
	removed []string
	execs   [][]string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{containers: make(map[string]domain.Container)}
}

func (f *fakeRuntime) addContainer(id string, labels map[string]string, publicPorts ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[id] = domain.Container{
		ID:          id,
		State:       "running",
		Labels:      labels,
		PublicPorts: publicPorts,
	}
}

func (f *fakeRuntime) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.containers[id]
	return ok
}

func (f *fakeRuntime) ListContainers(ctx context.Context) ([]domain.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Container, 0, len(f.containers))
	for _, c := range f.containers {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRuntime) CreateContainer(ctx context.Context, spec ports.CreateSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("ctr-%04d", f.nextID)
	f.containers[id] = domain.Container{
		ID:          id,
		Image:       spec.Image,
		State:       "created",
		Labels:      spec.Labels,
		PublicPorts: []int{spec.HostPort},
	}
	return id, nil
}

func (f *fakeRuntime) StartContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	c, ok := f.containers[id]
	if !ok {
		return ports.ErrNotFound
	}
	c.State = "running"
	f.containers[id] = c
	return nil
}

func (f *fakeRuntime) ExecContainer(ctx context.Context, id string, cmd []string) (string, error) {
	f.mu.Lock()
	if _, ok := f.containers[id]; !ok {
		f.mu.Unlock()
		return "", ports.ErrNotFound
	}
	f.execs = append(f.execs, cmd)
	fn := f.execFn
	f.mu.Unlock()

	if fn != nil {
		return fn(id, cmd)
	}
	joined := strings.Join(cmd, " ")
	switch {
	case strings.Contains(joined, "ping"):
		return "PONG\n", nil
	case strings.Contains(joined, "ACL"):
		return "OK\n", nil
	case strings.Contains(joined, "INFO"):
		return "# Memory\nused_memory:1048576\n", nil
	}
	return "", nil
}

func (f *fakeRuntime) StopContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[id]; !ok {
		return ports.ErrNotFound
	}
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeRuntime) RemoveContainer(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[id]; !ok {
		return ports.ErrNotFound
	}
	delete(f.containers, id)
	f.removed = append(f.removed, id)
	return nil
}

// fakeStore is an in-memory ports.InstanceStore.
type fakeStore struct {
	mu        sync.Mutex
	instances []*domain.Instance
	nextID    int64

	portsErr error
	idsErr   error
	stopErr  error

	stopCalls []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (f *fakeStore) add(inst domain.Instance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	inst.ID = f.nextID
	f.instances = append(f.instances, &inst)
}

func (f *fakeStore) Create(ctx context.Context, inst *domain.Instance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	inst.ID = f.nextID
	cp := *inst
	f.instances = append(f.instances, &cp)
	return nil
}

func (f *fakeStore) RunningPorts(ctx context.Context) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.portsErr != nil {
		return nil, f.portsErr
	}
	var out []int
	for _, i := range f.instances {
		if i.Status == domain.StatusRunning {
			out = append(out, i.Port)
		}
	}
	return out, nil
}

func (f *fakeStore) RunningContainerIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idsErr != nil {
		return nil, f.idsErr
	}
	var out []string
	for _, i := range f.instances {
		if i.Status == domain.StatusRunning {
			out = append(out, i.ContainerID)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkStopped(ctx context.Context, containerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopCalls = append(f.stopCalls, containerID)
	for _, i := range f.instances {
		if i.ContainerID == containerID && i.Status != domain.StatusStopped {
			i.Status = domain.StatusStopped
		}
	}
	return nil
}

func (f *fakeStore) ByContainerID(ctx context.Context, containerID string) (*domain.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, i := range f.instances {
		if i.ContainerID == containerID {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ActiveByOwner(ctx context.Context, ownerID string) (*domain.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, i := range f.instances {
		if i.OwnerID == ownerID && i.Status == domain.StatusRunning {
			cp := *i
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ByOwner(ctx context.Context, ownerID string) ([]domain.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Instance
	for _, i := range f.instances {
		if i.OwnerID == ownerID {
			out = append(out, *i)
		}
	}
	return out, nil
}

func (f *fakeStore) statusOf(containerID string) domain.InstanceStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, i := range f.instances {
		if i.ContainerID == containerID {
			return i.Status
		}
	}
	return ""
}
