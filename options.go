package samplefront

import (
	"io/fs"
	"log/slog"
	"time"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	databaseURL        string
	notifyURL          string
	logger             *slog.Logger
	version            string
	now                func() time.Time
	evaluationInterval time.Duration
	sweepInterval      time.Duration
	taskHooks          []TaskHook
	extraMigrations    []fs.FS
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithNotifyURL overrides the direct Postgres URL used for LISTEN/NOTIFY (NOTIFY_URL env var).
// Set this when using a connection pooler (e.g. PgBouncer) for queries; LISTEN/NOTIFY
// requires a direct (non-pooled) connection.
func WithNotifyURL(url string) Option {
	return func(o *resolvedOptions) { o.notifyURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithNow overrides the time source used for validation, attribution and
// trigger evaluation. Intended for tests and replays; production uses the
// system clock.
func WithNow(now func() time.Time) Option {
	return func(o *resolvedOptions) { o.now = now }
}

// WithEvaluationInterval overrides how often the trigger evaluation loop runs.
func WithEvaluationInterval(d time.Duration) Option {
	return func(o *resolvedOptions) { o.evaluationInterval = d }
}

// WithSweepInterval overrides how often the attribution sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(o *resolvedOptions) { o.sweepInterval = d }
}

// WithTaskHook registers a hook to receive task creation notifications.
// Multiple hooks may be registered; all registered hooks receive every task.
func WithTaskHook(hook TaskHook) Option {
	return func(o *resolvedOptions) { o.taskHooks = append(o.taskHooks, hook) }
}

// WithExtraMigrations adds an additional SQL migration filesystem to run
// after the embedded migrations. Multiple filesystems may be registered;
// they are applied in registration order.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
