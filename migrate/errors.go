package migrate

import (
	"fmt"

	"github.com/consensuslabs/warehouse-migrate/bookkeeping"
	"github.com/consensuslabs/warehouse-migrate/catalog"
	"github.com/consensuslabs/warehouse-migrate/locker"
)

// The error taxonomy surfaced by the engine. Component-owned types are
// aliased here so callers can match them with errors.As without importing
// every subpackage.
type (
	// DiscoveryError indicates the scripts directory could not be read.
	DiscoveryError = catalog.DiscoveryError
	// BookkeepingError indicates a ledger or lock table query failed.
	BookkeepingError = bookkeeping.BookkeepingError
	// LockAcquisitionError indicates the lock is held and unexpired.
	LockAcquisitionError = locker.LockAcquisitionError
	// LockReleaseError indicates a release that affected zero rows.
	LockReleaseError = locker.LockReleaseError
)

// ScriptExecutionError indicates a migration's up or down procedure failed.
type ScriptExecutionError struct {
	Name      string
	Direction string
	Cause     error
}

func (e *ScriptExecutionError) Error() string {
	return fmt.Sprintf("migration %s failed (%s): %v", e.Name, e.Direction, e.Cause)
}

func (e *ScriptExecutionError) Unwrap() error { return e.Cause }
