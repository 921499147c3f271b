package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redisloft/redisloft/internal/core/domain"
	"github.com/redisloft/redisloft/internal/core/ports"
)

// driftGrace is how long a labeled container may exist without a row
// before the drift pass treats it as an orphan. Provisioning starts the
// container well before the handler inserts the row, and the readiness
// wait alone can run to its 15s deadline; the grace must comfortably
// exceed that.
const driftGrace = time.Minute

// Reconciler keeps the runtime's live containers and the store's RUNNING
// rows convergent. Each sweep runs two independent passes:
//
//   - drift: a live container with no RUNNING row (and older than
//     driftGrace) is an orphan the system lost track of and gets deleted;
//     a RUNNING row whose container vanished out-of-band gets marked
//     STOPPED.
//   - TTL: a live container older than maxAge (by its created_at label)
//     gets deleted and its row stopped.
//
// Both passes are idempotent and tolerate partial failure; whatever a
// sweep could not fix, the next tick retries.
type Reconciler struct {
	runtime  ports.ContainerRuntime
	store    ports.InstanceStore
	teardown *Teardown
	log      *slog.Logger
	interval time.Duration
	maxAge   time.Duration

	sweeping atomic.Bool
	now      func() time.Time
}

func NewReconciler(runtime ports.ContainerRuntime, store ports.InstanceStore, teardown *Teardown, interval, maxAge time.Duration, log *slog.Logger) *Reconciler {
	return &Reconciler{
		runtime:  runtime,
		store:    store,
		teardown: teardown,
		log:      log,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Start runs the sweep loop until ctx is cancelled. Blocking; run it on
// its own goroutine.
func (r *Reconciler) Start(ctx context.Context) {
	r.log.Info("reconciler started", "interval", r.interval, "max_age", r.maxAge)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep executes one reconciliation pass. If a previous sweep is still
// running the call is skipped, never queued, so two sweeps can never act
// on the same container set concurrently.
func (r *Reconciler) Sweep(ctx context.Context) {
	if !r.sweeping.CompareAndSwap(false, true) {
		r.log.Warn("previous sweep still running, skipping tick")
		return
	}
	defer r.sweeping.Store(false)

	containers, err := r.runtime.ListContainers(ctx)
	if err != nil {
		// Runtime unreachable: nothing can be reconciled this tick.
		r.log.Error("sweep failed to list containers", "error", err)
		return
	}

	r.driftPass(ctx, containers)
	r.ttlPass(ctx, containers)
}

func (r *Reconciler) driftPass(ctx context.Context, containers []domain.Container) {
	rows, err := r.store.RunningContainerIDs(ctx)
	if err != nil {
		r.log.Error("drift pass failed to query running rows", "error", err)
		return
	}

	live := make(map[string]struct{}, len(containers))
	for _, c := range containers {
		live[c.ID] = struct{}{}
	}
	tracked := make(map[string]struct{}, len(rows))
	for _, id := range rows {
		tracked[id] = struct{}{}
	}

	for _, c := range containers {
		if _, ours := c.Labels[domain.LabelOwnerID]; !ours {
			// Unlabeled containers were not created by this system.
			continue
		}
		if createdAt, ok := c.CreatedAt(); ok && r.now().Sub(createdAt) < driftGrace {
			// A container this young may still be mid-provisioning, its
			// row not inserted yet. Leave it for a later sweep.
			continue
		}
		if _, ok := tracked[c.ID]; !ok {
			r.log.Info("deleting orphan container", "container", c.ID)
			r.teardown.Run(ctx, c.ID)
		}
	}

	for _, id := range rows {
		if _, ok := live[id]; ok {
			continue
		}
		r.log.Info("container vanished, stopping row", "container", id)
		if err := r.store.MarkStopped(ctx, id); err != nil {
			r.log.Error("failed to stop row", "container", id, "error", err)
		}
	}
}

func (r *Reconciler) ttlPass(ctx context.Context, containers []domain.Container) {
	for _, c := range containers {
		createdAt, ok := c.CreatedAt()
		if !ok {
			// Not one of ours; leave it alone.
			continue
		}
		age := r.now().Sub(createdAt)
		if age <= r.maxAge {
			continue
		}
		r.log.Info("container expired, deleting", "container", c.ID, "age", age)
		r.teardown.Run(ctx, c.ID)
		if err := r.store.MarkStopped(ctx, c.ID); err != nil {
			r.log.Error("failed to stop row for expired container", "container", c.ID, "error", err)
		}
	}
}
