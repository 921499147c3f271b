package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/redisloft/redisloft/internal/core/ports"
)

// Teardown is a best-effort stop-then-remove. It never returns an error:
// the caller's intent is "this container should not exist", and a
// container that is already gone satisfies it. Failures are logged and
// left for the next reconciler sweep.
type Teardown struct {
	runtime ports.ContainerRuntime
	log     *slog.Logger
}

func NewTeardown(runtime ports.ContainerRuntime, log *slog.Logger) *Teardown {
	return &Teardown{runtime: runtime, log: log}
}

// Run stops and removes the container. Calling it twice, or on an id the
// runtime never heard of, is a no-op success.
func (t *Teardown) Run(ctx context.Context, containerID string) {
	if err := t.runtime.StopContainer(ctx, containerID); err != nil && !errors.Is(err, ports.ErrNotFound) {
		t.log.Warn("failed to stop container", "container", containerID, "error", err)
	}
	if err := t.runtime.RemoveContainer(ctx, containerID); err != nil && !errors.Is(err, ports.ErrNotFound) {
		t.log.Warn("failed to remove container", "container", containerID, "error", err)
		return
	}
	t.log.Info("container removed", "container", containerID)
}
