// Package migrate is the coordination core: it decides which scripts run, in
// what order, and records the outcome in the bookkeeping ledger, under a
// lease-based distributed lock. The warehouse offers no transactional DDL, so
// a failed run can leave a partially applied batch; the ledger records exactly
// the scripts that executed, which keeps that state inspectable and
// recoverable by hand.
package migrate

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/consensuslabs/warehouse-migrate/bookkeeping"
	"github.com/consensuslabs/warehouse-migrate/catalog"
	"github.com/consensuslabs/warehouse-migrate/internal/logger"
	"github.com/consensuslabs/warehouse-migrate/locker"
	"github.com/consensuslabs/warehouse-migrate/warehouse"
)

// Result reports what one Run or Rollback invocation actually did. Failures
// that occur after the lock was taken never fail the call itself; they are
// surfaced here as a typed Err alongside the work that did complete.
type Result struct {
	// RunID correlates the log lines of this invocation.
	RunID string

	// Executed lists the script names whose procedure ran, in execution order.
	Executed []string

	// Batch is the ledger batch written (run) or removed from (rollback).
	// Zero when no ledger mutation happened.
	Batch int64

	// Err holds the typed mid-run failure, if any: a ScriptExecutionError or
	// a BookkeepingError. The lock was released regardless.
	Err error
}

// Failed reports whether the invocation hit a mid-run failure.
func (r *Result) Failed() bool { return r.Err != nil }

// Engine orchestrates discovery, diffing, sequential execution and ledger
// updates. It is the only writer of ledger and lock rows. A single Engine
// invocation runs strictly sequentially; cross-process concurrency is handled
// entirely by the lock coordinator.
type Engine struct {
	client     warehouse.Client
	datasetID  string
	source     catalog.Source
	store      *bookkeeping.Store
	locker     *locker.Coordinator
	logger     logger.Logger
	lockExpiry time.Duration
}

// New validates the configuration and builds an Engine.
func New(cfg Config) (*Engine, error) {
	location, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	store := bookkeeping.NewStore(
		cfg.Client, cfg.Logger, cfg.DatasetID,
		cfg.LedgerTable, cfg.LockTable, cfg.Dialect, location,
	)

	return &Engine{
		client:     cfg.Client,
		datasetID:  cfg.DatasetID,
		source:     cfg.Source,
		store:      store,
		locker:     locker.New(cfg.Client, cfg.Logger, store.LockTable(), store.Now),
		logger:     cfg.Logger,
		lockExpiry: cfg.LockExpiry,
	}, nil
}

// Run applies all pending scripts in catalog order and records them as one
// new batch.
//
// The returned error is non-nil only for failures before the lock was taken:
// table provisioning, catalog discovery, or lock acquisition. Once locked,
// script and bookkeeping failures are logged, recorded on the Result, and the
// call itself completes so the lock release is never skipped.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	return e.execute(ctx, "run", e.applyPending)
}

// Rollback reverts the latest batch: it executes the down procedure of every
// script in that batch, in ascending catalog order, and deletes their ledger
// rows. Error surfacing matches Run.
func (e *Engine) Rollback(ctx context.Context) (*Result, error) {
	return e.execute(ctx, "rollback", e.revertCurrentBatch)
}

// execute drives the shared state machine: ensure tables, read catalog,
// acquire lock, run the locked phase, release lock.
func (e *Engine) execute(ctx context.Context, op string, locked func(context.Context, logger.Logger, []catalog.Script, *Result)) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	log := e.logger.WithFields(map[string]interface{}{
		"run_id":    res.RunID,
		"operation": op,
	})

	if err := e.store.EnsureLedgerTable(ctx); err != nil {
		return nil, err
	}
	if err := e.store.EnsureLockTable(ctx); err != nil {
		return nil, err
	}

	// An unreadable scripts directory is fatal before any lock is taken.
	scripts, err := e.source.List()
	if err != nil {
		return nil, err
	}

	if err := e.locker.Acquire(ctx, e.lockExpiry); err != nil {
		return nil, err
	}

	locked(ctx, log, scripts, res)

	// Cleanup step: always runs, whichever prior state failed. A release
	// failure has no earlier error to attach to, so it is only logged.
	if err := e.locker.Release(ctx); err != nil {
		log.LogError(err, "failed to release migration lock")
	}

	return res, nil
}

// Applied returns the ledger names in insertion order, optionally filtered to
// one batch.
func (e *Engine) Applied(ctx context.Context, batch ...int64) ([]string, error) {
	return e.store.AppliedNames(ctx, batch...)
}

// CreateLedgerTable provisions the applied-migrations ledger. Idempotent.
func (e *Engine) CreateLedgerTable(ctx context.Context) error {
	return e.store.EnsureLedgerTable(ctx)
}

// CreateLockTable provisions the single-row lock table. Idempotent.
func (e *Engine) CreateLockTable(ctx context.Context) error {
	return e.store.EnsureLockTable(ctx)
}

// Lock acquires the migration lock directly. Intended for manual operation.
func (e *Engine) Lock(ctx context.Context) error {
	return e.locker.Acquire(ctx, e.lockExpiry)
}

// Unlock releases the migration lock directly. Intended for manual operation.
func (e *Engine) Unlock(ctx context.Context) error {
	return e.locker.Release(ctx)
}

// ScriptFiles returns the sorted script filenames of the catalog.
func (e *Engine) ScriptFiles() ([]string, error) {
	scripts, err := e.source.List()
	if err != nil {
		return nil, err
	}
	files := make([]string, len(scripts))
	for i, s := range scripts {
		files[i] = s.FileName
	}
	return files, nil
}
