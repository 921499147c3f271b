package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/redisloft/redisloft/internal/adapters/docker"
	transport "github.com/redisloft/redisloft/internal/adapters/http"
	"github.com/redisloft/redisloft/internal/adapters/store"
	"github.com/redisloft/redisloft/internal/config"
	"github.com/redisloft/redisloft/internal/core/service"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		// Ephemeral secret: fine for a single process, tokens won't
		// survive a restart.
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			logger.Error("failed to generate session secret", "error", err)
			os.Exit(1)
		}
		secret = []byte(hex.EncodeToString(buf))
		logger.Warn("REDISLOFT_JWT_SECRET not set, using an ephemeral secret")
	}

	// Adapters (infrastructure).
	runtime, err := docker.NewAdapter(logger)
	if err != nil {
		logger.Error("failed to initialize docker adapter", "error", err)
		os.Exit(1)
	}
	db, err := store.Connect(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Core services, wired with explicit dependencies.
	teardown := service.NewTeardown(runtime, logger)
	allocator, err := service.NewPortAllocator(runtime, db, cfg.PortRangeStart, cfg.PortRangeEnd)
	if err != nil {
		logger.Error("invalid port range", "error", err)
		os.Exit(1)
	}
	provisioner := service.NewProvisioner(runtime, allocator, teardown, cfg.Image, cfg.ReadyTimeout, logger)
	reconciler := service.NewReconciler(runtime, db, teardown, cfg.SweepInterval, cfg.MaxInstanceAge, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reconciler.Start(ctx)

	// HTTP surface.
	authHandler := transport.NewAuthHandler(db, secret)
	instanceHandler := transport.NewInstanceHandler(provisioner, teardown, runtime, db, logger)

	app := fiber.New()
	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Post("/signup", authHandler.Signup)
	v1.Post("/login", authHandler.Login)

	instances := v1.Group("/instances", authHandler.RequireAuth)
	instances.Post("/", instanceHandler.CreateInstance)
	instances.Get("/", instanceHandler.ListInstances)
	instances.Get("/:containerId/usage", instanceHandler.InstanceUsage)
	instances.Delete("/:containerId", instanceHandler.DeleteInstance)

	logger.Info("server starting", "addr", cfg.ListenAddr)
	if err := app.Listen(cfg.ListenAddr); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
