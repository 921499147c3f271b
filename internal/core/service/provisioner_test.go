package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redisloft/redisloft/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProvisioner(t *testing.T, runtime *fakeRuntime, store *fakeStore) *Provisioner {
	t.Helper()
	log := testLogger()
	alloc, err := NewPortAllocator(runtime, store, 7000, 7012)
	require.NoError(t, err)
	return NewProvisioner(runtime, alloc, NewTeardown(runtime, log), "redis:7-alpine", 15*time.Second, log)
}

func TestProvisionHappyPath(t *testing.T) {
	runtime := newFakeRuntime()
	store := newFakeStore()
	p := newTestProvisioner(t, runtime, store)

	prov, err := p.Provision(context.Background(), "11112222-3333-4444-5555-666677778888", "alice", 0)
	require.NoError(t, err)

	assert.Equal(t, 7000, prov.Port)
	assert.Equal(t, "user_11112222", prov.TenantUser)
	assert.Len(t, prov.TenantSecret, 32, "16 bytes hex-encoded")
	assert.Len(t, prov.AdminSecret, 32)
	assert.NotEqual(t, prov.TenantSecret, prov.AdminSecret)
	assert.Equal(t, int64(1048576), prov.OverheadBytes)
	assert.True(t, runtime.has(prov.ContainerID))

	// The container carries the labels the reconciler depends on.
	containers, err := runtime.ListContainers(context.Background())
	require.NoError(t, err)
	require.Len(t, containers, 1)
	assert.Equal(t, "alice", containers[0].Labels[domain.LabelOwner])
	created, ok := containers[0].CreatedAt()
	require.True(t, ok)
	assert.WithinDuration(t, prov.CreatedAt, created, time.Second)
}

func TestProvisionReturnedPortInRangeAndExclusive(t *testing.T) {
	runtime := newFakeRuntime()
	store := newFakeStore()
	p := newTestProvisioner(t, runtime, store)

	prov, err := p.Provision(context.Background(), "owner-1", "alice", 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, prov.Port, 7000)
	assert.LessOrEqual(t, prov.Port, 7012)

	containers, err := runtime.ListContainers(context.Background())
	require.NoError(t, err)
	holders := 0
	for _, c := range containers {
		for _, port := range c.PublicPorts {
			if port == prov.Port {
				holders++
			}
		}
	}
	assert.Equal(t, 1, holders, "port bound by exactly one container")
}

func TestProvisionConcurrentNoPortCollision(t *testing.T) {
	runtime := newFakeRuntime()
	store := newFakeStore()
	p := newTestProvisioner(t, runtime, store)

	const callers = 8
	results := make([]*Provisioned, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Provision(context.Background(), "owner", "alice", 0)
		}(i)
	}
	wg.Wait()

	seen := make(map[int]int)
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		seen[results[i].Port]++
	}
	for port, count := range seen {
		assert.Equal(t, 1, count, "port %d allocated more than once", port)
	}
}

func TestProvisionCapacityExhausted(t *testing.T) {
	runtime := newFakeRuntime()
	for i := 0; i <= 12; i++ {
		runtime.addContainer(string(rune('a'+i)), nil, 7000+i)
	}
	store := newFakeStore()
	p := newTestProvisioner(t, runtime, store)

	_, err := p.Provision(context.Background(), "owner", "alice", 0)
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}

func TestProvisionRequestedPort(t *testing.T) {
	runtime := newFakeRuntime()
	store := newFakeStore()
	p := newTestProvisioner(t, runtime, store)

	prov, err := p.Provision(context.Background(), "owner", "alice", 7005)
	require.NoError(t, err)
	assert.Equal(t, 7005, prov.Port)
}

func TestProvisionRequestedPortTaken(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.addContainer("busy", nil, 7005)
	store := newFakeStore()
	p := newTestProvisioner(t, runtime, store)

	_, err := p.Provision(context.Background(), "owner", "alice", 7005)
	assert.ErrorIs(t, err, ErrCapacityExhausted)
}

func TestProvisionRequestedPortOutOfRange(t *testing.T) {
	runtime := newFakeRuntime()
	store := newFakeStore()
	p := newTestProvisioner(t, runtime, store)

	_, err := p.Provision(context.Background(), "owner", "alice", 9999)
	assert.ErrorIs(t, err, ErrInvalidPort)
	assert.NotErrorIs(t, err, ErrCapacityExhausted)
	assert.Empty(t, runtime.containers)
}

func TestProvisionACLFailureTearsDownContainer(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.execFn = func(id string, cmd []string) (string, error) {
		joined := strings.Join(cmd, " ")
		if strings.Contains(joined, "ACL") {
			return "ERR unknown command", nil
		}
		return "PONG", nil
	}
	store := newFakeStore()
	p := newTestProvisioner(t, runtime, store)

	_, err := p.Provision(context.Background(), "owner", "alice", 0)
	assert.ErrorIs(t, err, ErrPrivilegeSetup)
	assert.Len(t, runtime.removed, 1, "partially-created container removed")
	containers, _ := runtime.ListContainers(context.Background())
	assert.Empty(t, containers)
}

func TestProvisionReadinessTimeoutTearsDownContainer(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.execFn = func(id string, cmd []string) (string, error) {
		return "", errors.New("connection refused")
	}
	store := newFakeStore()
	log := testLogger()
	alloc, err := NewPortAllocator(runtime, store, 7000, 7012)
	require.NoError(t, err)
	p := NewProvisioner(runtime, alloc, NewTeardown(runtime, log), "redis:7-alpine", 10*time.Millisecond, log)

	_, err = p.Provision(context.Background(), "owner", "alice", 0)
	assert.ErrorIs(t, err, ErrReadinessTimeout)
	assert.Len(t, runtime.removed, 1)
}

func TestProvisionStartFailureCleansUp(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.startErr = errors.New("start failed")
	store := newFakeStore()
	p := newTestProvisioner(t, runtime, store)

	_, err := p.Provision(context.Background(), "owner", "alice", 0)
	require.Error(t, err)
	containers, _ := runtime.ListContainers(context.Background())
	assert.Empty(t, containers)
}
