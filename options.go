package fsvc

import (
	"io/fs"
	"log/slog"
)

// Option configures a Core.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	databaseURL     string
	journalPath     string
	rulesPath       string
	workers         int
	batchSize       int
	shapeGuard      *bool
	logger          *slog.Logger
	version         string
	classifiers     []ValueClassifier
	extraMigrations []fs.FS
}

// WithDatabaseURL overrides the database connection string from config
// (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithJournalPath overrides the SQLite journal location from config
// (FSVC_JOURNAL_PATH env var). Reconciliation runs checkpoint through the
// journal so an interrupted run can resume instead of recomputing.
func WithJournalPath(path string) Option {
	return func(o *resolvedOptions) { o.journalPath = path }
}

// WithClassifierRules overrides the embedded value-classifier rules with a
// YAML rules file (FSVC_CLASSIFIER_RULES env var).
func WithClassifierRules(path string) Option {
	return func(o *resolvedOptions) { o.rulesPath = path }
}

// WithWorkers overrides the reconciliation worker-pool size from config
// (FSVC_RECONCILE_WORKERS env var).
func WithWorkers(n int) Option {
	return func(o *resolvedOptions) { o.workers = n }
}

// WithIngestBatchSize overrides the answer-batch threshold above which
// intake switches to COPY (FSVC_INGEST_BATCH_SIZE env var).
func WithIngestBatchSize(n int) Option {
	return func(o *resolvedOptions) { o.batchSize = n }
}

// WithShapeGuard overrides the shape-agreement requirement for positional
// matching (FSVC_SHAPE_GUARD env var). Disabling it lets position alone
// resolve an answer even when no classifier recognizes the value's shape.
func WithShapeGuard(enabled bool) Option {
	return func(o *resolvedOptions) { o.shapeGuard = &enabled }
}

// WithLogger sets the structured logger for the Core.
// If not set, a JSON logger at the configured level is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in telemetry and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithClassifier registers an additional value classifier consulted during
// category inference and positional shape checks. Multiple classifiers may
// be registered; all run after the built-in set.
func WithClassifier(c ValueClassifier) Option {
	return func(o *resolvedOptions) { o.classifiers = append(o.classifiers, c) }
}

// WithExtraMigrations adds an additional SQL migration filesystem to run
// after the built-in migrations. Multiple filesystems may be registered;
// they are applied in registration order. Version names must not collide
// with the built-in set.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
