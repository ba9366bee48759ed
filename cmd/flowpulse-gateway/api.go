// Package main provides the FlowPulse gateway server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/flowpulse/flowpulse/pkg/channel"
	"github.com/flowpulse/flowpulse/pkg/client"
	"github.com/flowpulse/flowpulse/pkg/config"
	"github.com/flowpulse/flowpulse/pkg/monitor"
	"github.com/flowpulse/flowpulse/pkg/push"
	"github.com/flowpulse/flowpulse/pkg/snapshots"
	"github.com/flowpulse/flowpulse/pkg/web"
)

type API struct {
	logger    *slog.Logger
	sessions  *web.Sessions
	push      *push.Manager
	validate  *validator.Validate
	notifier  *monitor.Notifier
	snapshots *snapshots.Store
}

func NewAPI(ctx context.Context, cfg config.MonitorConfig, logger *slog.Logger, clientOpts ...client.Option) *API {
	executionClient := client.New(cfg.ExecutionAPIURL, clientOpts...)
	store := client.NewWorkflowStore(executionClient)
	pushManager := push.NewManager(cfg.PushURL, push.WebSocketDialer(), logger)

	api := &API{
		logger:   logger,
		push:     pushManager,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	sessionOpts := []monitor.Option{
		monitor.WithLogCapacity(cfg.LogCapacity),
		monitor.WithChannelConfig(channel.Config{
			PollInterval:         cfg.PollInterval,
			BaseReconnectDelay:   cfg.ReconnectDelay,
			MaxReconnectAttempts: cfg.MaxReconnects,
		}),
	}

	if cfg.Snapshots.Enabled {
		snapshotStore, err := snapshots.NewStore(ctx, snapshots.Config{
			Addr:     cfg.Snapshots.Addr,
			Password: cfg.Snapshots.Password,
			DB:       cfg.Snapshots.DB,
			TTL:      cfg.Snapshots.TTL,
		}, logger)
		if err != nil {
			logger.ErrorContext(ctx, "Snapshot store unavailable, continuing without it", "error", err)
		} else {
			api.snapshots = snapshotStore
			api.notifier = monitor.NewNotifier(logger)
			sessionOpts = append(sessionOpts, monitor.WithNotifier(api.notifier))

			go api.persistUpdates(ctx)
		}
	}

	api.sessions = web.NewSessions(store, executionClient, pushManager, logger, sessionOpts...)

	return api
}

// persistUpdates writes every merged execution update to the snapshot store,
// so a restarted gateway can serve the last known state.
func (a *API) persistUpdates(ctx context.Context) {
	updates, err := a.notifier.Subscribe(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to subscribe to execution updates", "error", err)

		return
	}

	for msg := range updates {
		execution, err := monitor.DecodeUpdate(msg)
		if err != nil {
			a.logger.Warn("Dropping undecodable execution update", "error", err)
			msg.Ack()

			continue
		}

		if err := a.snapshots.Save(ctx, execution); err != nil {
			a.logger.Warn("Failed to persist execution snapshot",
				"execution_id", execution.ID, "error", err)
		}

		msg.Ack()
	}
}

func (a *API) App() *fiber.App {
	// A typed nil store must not reach the handlers as a non-nil interface.
	var source web.SnapshotSource
	if a.snapshots != nil {
		source = a.snapshots
	}

	handlers := web.NewAPIHandlers(a.sessions, a.validate, source)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("FlowPulse Gateway")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}

func (a *API) Close() {
	a.sessions.Close()

	if err := a.push.Close(); err != nil {
		a.logger.Error("Failed to close push connection", "error", err)
	}

	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.Error("Failed to close notifier", "error", err)
		}
	}

	if a.snapshots != nil {
		if err := a.snapshots.Close(); err != nil {
			a.logger.Error("Failed to close snapshot store", "error", err)
		}
	}
}
