// Package locker implements the mutual-exclusion lease over the bookkeeping
// lock row. The warehouse has no native locking primitive, so every
// coordination decision is a single conditional update whose reported
// affected-row count is the authoritative success signal: the warehouse
// guarantees atomicity of one conditional update statement, so two concurrent
// acquirers cannot both observe a nonzero count.
package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/consensuslabs/warehouse-migrate/internal/logger"
	"github.com/consensuslabs/warehouse-migrate/warehouse"
)

// LockAcquisitionError indicates another holder is active and unexpired.
type LockAcquisitionError struct {
	Table string
}

func (e *LockAcquisitionError) Error() string {
	return fmt.Sprintf("migration lock on %s is held by another process", e.Table)
}

// LockReleaseError indicates a release affected zero rows, meaning the lock
// was not held. That only happens on a coordination bug.
type LockReleaseError struct {
	Table string
}

func (e *LockReleaseError) Error() string {
	return fmt.Sprintf("migration lock on %s was not held at release", e.Table)
}

// Coordinator acquires and releases the lock row. Lock state is never read
// outside the conditional writes; there is no check-then-act sequence
// anywhere.
type Coordinator struct {
	client    warehouse.Client
	logger    logger.Logger
	lockTable string
	now       func() time.Time
}

// New creates a Coordinator over the fully qualified lock table reference.
func New(client warehouse.Client, log logger.Logger, lockTable string, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		client:    client,
		logger:    log,
		lockTable: lockTable,
		now:       now,
	}
}

// Acquire takes the lock if it is free, or steals it if the current holder's
// lease is older than expiry. The staleness predicate bounds how long a
// crashed holder can block future runs.
func (c *Coordinator) Acquire(ctx context.Context, expiry time.Duration) error {
	now := c.now()
	stale := now.Add(-expiry)

	query := fmt.Sprintf(
		"UPDATE %s SET is_locked = ?, locked_at = ? WHERE is_locked = ? OR locked_at <= ?",
		c.lockTable,
	)
	affected, err := c.client.Exec(ctx, query, true, now, false, stale)
	if err != nil {
		return fmt.Errorf("lock acquisition query failed: %w", err)
	}
	if affected == 0 {
		return &LockAcquisitionError{Table: c.lockTable}
	}

	c.logger.LogInfo("migration lock acquired", map[string]interface{}{
		"table":  c.lockTable,
		"expiry": expiry.String(),
	})
	return nil
}

// Release frees the lock unconditionally.
func (c *Coordinator) Release(ctx context.Context) error {
	query := fmt.Sprintf(
		"UPDATE %s SET is_locked = ? WHERE is_locked = ?",
		c.lockTable,
	)
	affected, err := c.client.Exec(ctx, query, false, true)
	if err != nil {
		return fmt.Errorf("lock release query failed: %w", err)
	}
	if affected == 0 {
		return &LockReleaseError{Table: c.lockTable}
	}

	c.logger.LogInfo("migration lock released", map[string]interface{}{
		"table": c.lockTable,
	})
	return nil
}
