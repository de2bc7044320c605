// Package samplefront is the public API for embedding the sample attribution
// and trigger engine.
//
// Consumers import this package to construct and extend the engine without
// forking it:
//
//	app, err := samplefront.New(
//	    samplefront.WithVersion(version),
//	    samplefront.WithLogger(logger),
//	    samplefront.WithTaskHook(myCRMHook{}),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: samplefront (root)
// imports internal/*, but internal/* never imports samplefront (root).
// Public types (Sample, Task, etc.) are standalone structs with no internal
// imports; conversion helpers live here because this is the only file that
// sees both sides of the boundary.
package samplefront

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/samplefront/samplefront/internal/clock"
	"github.com/samplefront/samplefront/internal/config"
	"github.com/samplefront/samplefront/internal/model"
	"github.com/samplefront/samplefront/internal/service/samples"
	"github.com/samplefront/samplefront/internal/service/tasks"
	"github.com/samplefront/samplefront/internal/storage"
	"github.com/samplefront/samplefront/internal/telemetry"
	"github.com/samplefront/samplefront/migrations"
)

// App is the engine lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	db           *storage.DB
	samplesSvc   *samples.Service
	tasksSvc     *tasks.Service
	otelShutdown func(context.Context) error
	taskHooks    []TaskHook
	logger       *slog.Logger
	version      string
}

// New initialises the engine. It connects to the database, runs migrations,
// and wires all subsystems. It does NOT start any goroutines; call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	if o.evaluationInterval > 0 {
		cfg.EvaluationInterval = o.evaluationInterval
	}
	if o.sweepInterval > 0 {
		cfg.AttributionSweepInterval = o.sweepInterval
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	clk := clock.Clock(clock.System{})
	if o.now != nil {
		clk = funcClock(o.now)
	}

	logger.Info("samplefront starting", "version", version)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	// Connect to database.
	db, err := storage.New(context.Background(), cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	// Run embedded migrations.
	if cfg.SkipEmbeddedMigrations {
		logger.Info("embedded migrations skipped by config")
	} else if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}

	// Run extra migrations after the embedded set.
	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	return &App{
		cfg:          cfg,
		db:           db,
		samplesSvc:   samples.New(db, clk, cfg.SampleEpoch, logger),
		tasksSvc:     tasks.New(db, clk, logger),
		otelShutdown: otelShutdown,
		taskHooks:    o.taskHooks,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the trigger evaluation and attribution sweep loops, then blocks
// until ctx is cancelled. On return, Shutdown is called automatically;
// callers should not call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	go a.evaluationLoop(ctx)
	go a.sweepLoop(ctx)

	<-ctx.Done()
	return a.Shutdown(context.Background())
}

// Shutdown closes the database pool and the OTEL providers. Background loops
// stop via the context passed to Run.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("samplefront shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	defer cancel()

	_ = a.otelShutdown(shutdownCtx)
	a.db.Close(shutdownCtx)

	a.logger.Info("samplefront stopped")
	return nil
}

// RecordSample validates and stores a new sample usage.
func (a *App) RecordSample(ctx context.Context, sample Sample) (Sample, error) {
	created, err := a.samplesSvc.Record(ctx, fromPublicSample(sample))
	if err != nil {
		return Sample{}, err
	}
	return toPublicSample(created), nil
}

// AttributeOrder links one order to the most recent eligible sample. The
// result reports success or the reason attribution was skipped; err is set
// only for infrastructure failures.
func (a *App) AttributeOrder(ctx context.Context, orderID uuid.UUID) (AttributionResult, error) {
	outcome, err := a.samplesSvc.AttributeOrder(ctx, orderID)
	if err != nil {
		return AttributionResult{}, err
	}
	return toPublicAttribution(outcome), nil
}

// RunTriggers executes one evaluation pass immediately, outside the
// periodic loop.
func (a *App) RunTriggers(ctx context.Context) error {
	res, err := a.tasksSvc.RunTriggers(ctx)
	if err != nil {
		return err
	}
	a.fireTaskHooks(res.Created)
	return nil
}

// CompleteTask marks a task done. Idempotent: repeat completions succeed
// and preserve the original completion time.
func (a *App) CompleteTask(ctx context.Context, taskID uuid.UUID) (Task, error) {
	res, err := a.tasksSvc.Complete(ctx, taskID)
	if err != nil {
		return Task{}, err
	}
	return toPublicTask(res.Task), nil
}

// OpenTasks lists all incomplete tasks, oldest first.
func (a *App) OpenTasks(ctx context.Context) ([]Task, error) {
	list, err := a.tasksSvc.OpenTasks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Task, len(list))
	for i, t := range list {
		out[i] = toPublicTask(t)
	}
	return out, nil
}

func (a *App) evaluationLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.EvaluationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, a.cfg.EvaluationInterval)
			res, err := a.tasksSvc.RunTriggers(opCtx)
			cancel()
			if err != nil {
				a.logger.Warn("trigger pass failed", "error", err)
				continue
			}
			a.fireTaskHooks(res.Created)
		}
	}
}

func (a *App) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.AttributionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, a.cfg.AttributionSweepInterval)
			res, err := a.samplesSvc.Sweep(opCtx, a.cfg.SweepBatchSize)
			cancel()
			if err != nil {
				a.logger.Warn("attribution sweep failed", "error", err)
				continue
			}
			if res.Attributed > 0 {
				a.logger.Info("attribution sweep", "examined", res.Examined, "attributed", res.Attributed)
			}
		}
	}
}

// fireTaskHooks invokes registered hooks asynchronously so a slow hook never
// stalls the evaluation loop.
func (a *App) fireTaskHooks(created []model.Task) {
	if len(a.taskHooks) == 0 || len(created) == 0 {
		return
	}
	hooks := a.taskHooks
	logger := a.logger
	for _, t := range created {
		task := toPublicTask(t)
		go func() {
			hookCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			for _, h := range hooks {
				if err := h.OnTaskCreated(hookCtx, task); err != nil {
					logger.Warn("task hook OnTaskCreated failed", "task_id", task.ID, "error", err)
				}
			}
		}()
	}
}

// funcClock adapts a now function to the internal clock interface.
type funcClock func() time.Time

func (f funcClock) Now() time.Time { return f() }
