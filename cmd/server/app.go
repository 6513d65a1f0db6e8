package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/beepbeepai/alttext-api/internal/config"
	"github.com/beepbeepai/alttext-api/internal/platform/alttext"
	"github.com/beepbeepai/alttext-api/internal/platform/cache"
	"github.com/beepbeepai/alttext-api/internal/platform/logger"
	"github.com/beepbeepai/alttext-api/internal/platform/postgres"
	"github.com/beepbeepai/alttext-api/internal/queue"
	"github.com/beepbeepai/alttext-api/internal/quota"
	"github.com/beepbeepai/alttext-api/internal/subjects"
)

// application holds the assembled dependency graph for the server.
type application struct {
	config *config.Config
	logger *slog.Logger

	db    *sql.DB
	redis *redis.Client

	jobStore        *postgres.JobStore
	credentialStore *postgres.CredentialStore
	subjectStore    *postgres.SubjectStore

	client     *alttext.Client
	reconciler *quota.Reconciler
	queue      *queue.Queue
	processor  *queue.Processor
	trigger    *queue.Trigger
	subjects   *subjects.Service

	// drainCancel stops in-flight drain passes during shutdown.
	drainCancel context.CancelFunc
}

// initializeApp loads configuration and wires every application component.
// The queue trigger is armed lazily by enqueues, so no background worker
// starts here.
func initializeApp() (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// The cache backend is an accelerator, not a dependency the queue
		// cannot live without. Log and continue; every cache call degrades
		// to a miss.
		appLogger.Warn("Redis unreachable, cache operations will degrade to misses",
			"addr", cfg.Redis.Addr, "error", err)
	}

	app := &application{
		config: cfg,
		logger: appLogger,
		db:     db,
		redis:  rdb,
	}
	if err := app.wire(); err != nil {
		app.cleanup()
		return nil, err
	}
	return app, nil
}

// wire builds the service graph on top of the already-open connections.
func (app *application) wire() error {
	app.jobStore = postgres.NewJobStore(app.db)
	app.credentialStore = postgres.NewCredentialStore(app.db)
	app.subjectStore = postgres.NewSubjectStore(app.db)

	cacheBackend := cache.NewRedis(app.redis)
	generations := cache.NewGenerations(cacheBackend, app.logger)

	client, err := alttext.NewClient(app.logger, app.config.API, app.credentialStore, cacheBackend)
	if err != nil {
		return fmt.Errorf("failed to create generation client: %w", err)
	}
	app.client = client

	app.reconciler = quota.NewReconciler(app.logger, app.credentialStore, client, cacheBackend)
	client.SetLimitChecker(app.reconciler)

	app.queue = queue.NewQueue(app.logger, app.jobStore, generations, cacheBackend, app.config.Queue)
	app.subjects = subjects.NewService(app.subjectStore, app.logger)
	app.queue.SetSubjectChecker(app.subjects)

	app.processor = queue.NewProcessor(
		app.logger,
		app.queue,
		client,
		app.subjects,
		app.subjects,
		app.reconciler,
		generations,
		app.config.Queue,
	)

	drainCtx, drainCancel := context.WithCancel(context.Background())
	app.drainCancel = drainCancel
	app.trigger = queue.NewTrigger(app.logger, func() {
		app.processor.Run(drainCtx)
	})
	app.queue.AttachTrigger(app.trigger)
	app.processor.AttachTrigger(app.trigger)

	return nil
}

// cleanup releases resources in reverse dependency order.
func (app *application) cleanup() {
	if app.trigger != nil {
		app.trigger.Stop()
	}
	if app.drainCancel != nil {
		app.drainCancel()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn("Failed to close Redis client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn("Failed to close database connection", "error", err)
		}
	}
}
