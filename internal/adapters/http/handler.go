package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/redisloft/redisloft/internal/core/domain"
	"github.com/redisloft/redisloft/internal/core/ports"
	"github.com/redisloft/redisloft/internal/core/service"
)

// InstanceHandler exposes the instance lifecycle over HTTP. It is the
// layer that owns persistence: the provisioner hands back identifiers and
// credentials, and the handler records the row (tearing the container
// back down if the insert fails, so callers never observe a half-created
// instance).
type InstanceHandler struct {
	provisioner *service.Provisioner
	teardown    *service.Teardown
	runtime     ports.ContainerRuntime
	store       ports.InstanceStore
	log         *slog.Logger
}

func NewInstanceHandler(provisioner *service.Provisioner, teardown *service.Teardown, runtime ports.ContainerRuntime, store ports.InstanceStore, log *slog.Logger) *InstanceHandler {
	return &InstanceHandler{
		provisioner: provisioner,
		teardown:    teardown,
		runtime:     runtime,
		store:       store,
		log:         log,
	}
}

type createInstanceRequest struct {
	Port int `json:"port"` // optional; zero means "pick one"
}

func (h *InstanceHandler) CreateInstance(c *fiber.Ctx) error {
	ownerID, _ := c.Locals(localOwnerID).(string)
	ownerName, _ := c.Locals(localOwnerName).(string)

	var req createInstanceRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	// One active instance per account, keyed by account id. This is only
	// the friendly fast path; the store's unique index is what holds the
	// invariant against concurrent creates.
	active, err := h.store.ActiveByOwner(c.Context(), ownerID)
	if err != nil {
		return internalError(c, err)
	}
	if active != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "You already have a running instance",
		})
	}

	prov, err := h.provisioner.Provision(c.Context(), ownerID, ownerName, req.Port)
	if errors.Is(err, service.ErrInvalidPort) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if errors.Is(err, service.ErrCapacityExhausted) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "No capacity right now, please retry later",
		})
	}
	if err != nil {
		h.log.Error("provisioning failed", "owner", ownerID, "error", err)
		return internalError(c, err)
	}

	inst := &domain.Instance{
		ContainerID:   prov.ContainerID,
		Port:          prov.Port,
		TenantUser:    prov.TenantUser,
		TenantSecret:  prov.TenantSecret,
		AdminSecret:   prov.AdminSecret,
		OwnerID:       ownerID,
		OverheadBytes: prov.OverheadBytes,
		Status:        domain.StatusRunning,
		CreatedAt:     prov.CreatedAt,
	}
	if err := h.store.Create(c.Context(), inst); err != nil {
		// Without a row the reconciler would reap the container anyway;
		// do it now instead of leaving an orphan for half an hour.
		h.teardown.Run(c.Context(), prov.ContainerID)
		if errors.Is(err, ports.ErrConflict) {
			// A concurrent create for the same account won the insert.
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "You already have a running instance",
			})
		}
		return internalError(c, err)
	}

	// The tenant secret is shown once, at creation, and never again.
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"containerId": prov.ContainerID,
		"port":        prov.Port,
		"username":    prov.TenantUser,
		"password":    prov.TenantSecret,
	})
}

func (h *InstanceHandler) ListInstances(c *fiber.Ctx) error {
	ownerID, _ := c.Locals(localOwnerID).(string)
	instances, err := h.store.ByOwner(c.Context(), ownerID)
	if err != nil {
		return internalError(c, err)
	}
	if instances == nil {
		instances = []domain.Instance{}
	}
	return c.JSON(instances)
}

func (h *InstanceHandler) InstanceUsage(c *fiber.Ctx) error {
	inst, err := h.ownedRunningInstance(c)
	if inst == nil {
		return err
	}

	raw, err := h.runtime.ExecContainer(c.Context(), inst.ContainerID, service.InfoMemoryCommand(inst.AdminSecret))
	if err != nil {
		h.log.Error("usage query failed", "container", inst.ContainerID, "error", err)
		return internalError(c, err)
	}
	return c.JSON(service.ParseUsage(raw, inst.OverheadBytes))
}

func (h *InstanceHandler) DeleteInstance(c *fiber.Ctx) error {
	ownerID, _ := c.Locals(localOwnerID).(string)
	containerID := c.Params("containerId")

	inst, err := h.store.ByContainerID(c.Context(), containerID)
	if err != nil {
		return internalError(c, err)
	}
	if inst == nil || inst.OwnerID != ownerID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Instance not found",
		})
	}

	h.teardown.Run(c.Context(), containerID)
	if err := h.store.MarkStopped(c.Context(), containerID); err != nil {
		return internalError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ownedRunningInstance resolves the :containerId param to an instance the
// caller owns and which is still RUNNING. When it cannot, it writes the
// response and returns a nil instance; the caller passes the error
// straight back to fiber.
func (h *InstanceHandler) ownedRunningInstance(c *fiber.Ctx) (*domain.Instance, error) {
	ownerID, _ := c.Locals(localOwnerID).(string)
	containerID := c.Params("containerId")

	inst, err := h.store.ByContainerID(c.Context(), containerID)
	if err != nil {
		return nil, internalError(c, err)
	}
	if inst == nil || inst.OwnerID != ownerID || inst.Status != domain.StatusRunning {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Instance not found",
		})
	}
	return inst, nil
}

func internalError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
	})
}
