package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/gradebook/config"
	"github.com/alem-hub/gradebook/internal/application/command"
	"github.com/alem-hub/gradebook/internal/application/eventhandler"
	"github.com/alem-hub/gradebook/internal/application/query"
	"github.com/alem-hub/gradebook/internal/domain/gradebook"
	"github.com/alem-hub/gradebook/internal/infrastructure/messaging"
	"github.com/alem-hub/gradebook/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/gradebook/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/gradebook/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION WIRING
// ══════════════════════════════════════════════════════════════════════════════

// application holds the registry and everything wired around it.
type application struct {
	log *slog.Logger

	registry *gradebook.Registry
	bus      *messaging.InMemoryEventBus

	enroll   *command.EnrollStudentHandler
	record   *command.RecordGradeHandler
	average  *query.GetAverageHandler
	stats    *query.GetStudentStatsHandler
	students *query.ListStudentsHandler
	averages *query.ListAveragesHandler

	// ranking is nil unless the Redis projection is wired.
	ranking *redis.AveragesProjection

	closers []func()
}

// newApplication builds the registry, the event bus, the handlers and any
// enabled projection sinks. A sink that cannot connect is skipped with a warning:
// the registry works the same with or without projections.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	app := &application{log: log}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. РЕЕСТР
	// ─────────────────────────────────────────────────────────────────────────
	var opts []gradebook.Option
	if cfg.Registry.GradeRangeEnabled {
		gradeRange, err := gradebook.NewGradeRange(cfg.Registry.GradeMin, cfg.Registry.GradeMax)
		if err != nil {
			return nil, fmt.Errorf("invalid grade range: %w", err)
		}
		opts = append(opts, gradebook.WithGradeRange(gradeRange))
		log.Info("grade range enforced", "range", gradeRange.String())
	}
	app.registry = gradebook.NewRegistry(opts...)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.AsyncMode = cfg.Projection.AsyncDelivery
	busConfig.WorkerPoolSize = cfg.Projection.Workers
	busConfig.Logger = log
	app.bus = messaging.NewInMemoryEventBus(busConfig)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПРОЕКЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	sinks := app.connectSinks(ctx, cfg)
	if len(sinks) > 0 {
		retrier := retry.FromSettings(
			cfg.Projection.MaxAttempts,
			cfg.Projection.InitialDelay,
			cfg.Projection.MaxDelay,
			retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
				log.Warn("retrying projection", "attempt", attempt, "delay", delay.String(), "error", err)
			}),
		)
		handler := eventhandler.NewOnRosterChangedHandler(app.registry, sinks, log, eventhandler.RosterChangedConfig{
			ProjectTimeout:   cfg.Projection.Timeout,
			Retrier:          retrier,
			BreakerThreshold: cfg.Projection.BreakerThreshold,
			BreakerCooldown:  cfg.Projection.BreakerCooldown,
		})
		if err := handler.Register(app.bus); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to register projection handler: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. COMMAND / QUERY HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	app.enroll = command.NewEnrollStudentHandler(app.registry, app.bus, log)
	app.record = command.NewRecordGradeHandler(app.registry, app.bus, log)
	app.average = query.NewGetAverageHandler(app.registry)
	app.stats = query.NewGetStudentStatsHandler(app.registry)
	app.students = query.NewListStudentsHandler(app.registry)
	app.averages = query.NewListAveragesHandler(app.registry, query.ListAveragesConfig{
		CacheEnabled: cfg.Features.IsEnabled(config.FeatureQueryAveragesCache),
		Logger:       log,
	})

	log.Info("gradebook ready",
		"sinks", len(sinks),
		"async_delivery", cfg.Projection.AsyncDelivery,
		"bus_id", app.bus.ID(),
	)

	return app, nil
}

func (a *application) connectSinks(ctx context.Context, cfg *config.Config) []gradebook.ProjectionSink {
	var sinks []gradebook.ProjectionSink

	if cfg.RedisProjectionEnabled() {
		a.log.Info("connecting to Redis...")
		cache, err := redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			KeyPrefix:    cfg.Redis.KeyPrefix,
		})
		if err != nil {
			a.log.Warn("failed to connect to Redis, projection disabled", "error", err)
		} else {
			a.closers = append(a.closers, func() { _ = cache.Close() })
			a.ranking = redis.NewAveragesProjection(cache)
			sinks = append(sinks, a.ranking)
			a.log.Info("Redis projection enabled")
		}
	}

	if cfg.PostgresProjectionEnabled() {
		a.log.Info("connecting to database...")
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Database.ConnectTimeout)
		defer cancel()

		conn, err := openDatabase(connectCtx, cfg)
		if err != nil {
			a.log.Warn("failed to connect to database, projection disabled", "error", err)
			return sinks
		}

		if cfg.Database.AutoMigrate {
			if err := postgres.NewMigrator(conn).Migrate(connectCtx); err != nil {
				a.log.Warn("failed to run migrations, projection disabled", "error", err)
				conn.Close()
				return sinks
			}
			a.log.Info("database schema is up to date")
		}

		a.closers = append(a.closers, func() {
			stats := conn.Stats()
			a.log.Debug("closing database pool",
				"total_conns", stats.TotalConns,
				"acquire_count", stats.AcquireCount,
			)
			conn.Close()
		})
		sinks = append(sinks, postgres.NewAveragesSnapshotRepository(conn))
		a.log.Info("PostgreSQL projection enabled")
	}

	return sinks
}

// Close drains the event bus, then releases sink connections in reverse order.
func (a *application) Close() {
	if a.bus != nil {
		if err := a.bus.Close(); err != nil {
			a.log.Warn("failed to close event bus", "error", err)
		}
		if metrics := a.bus.Metrics(); metrics != nil {
			snapshot := metrics.Snapshot()
			a.log.Debug("event bus metrics",
				"published", snapshot.TotalPublished,
				"handler_failures", snapshot.HandlerFailures,
			)
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
