// Package testhelper provides shared test doubles for the migration engine.
package testhelper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// LedgerRow mirrors one row of the in-memory ledger table.
type LedgerRow struct {
	Name          string
	Batch         int64
	MigrationTime time.Time
}

// FakeWarehouse is an in-memory warehouse.Client. It understands the exact
// statement shapes the bookkeeping store and lock coordinator emit, applies
// them against in-memory tables with real conditional-update semantics, and
// logs every other statement as a script statement. All methods are safe for
// concurrent use, so lock-contention tests exercise the same atomicity the
// real warehouse guarantees for a single conditional update.
type FakeWarehouse struct {
	mu sync.Mutex

	dataset     string
	ledgerTable string
	lockTable   string

	tables map[string]bool
	ledger []LedgerRow

	lockSeeded bool
	isLocked   bool
	lockedAt   time.Time

	// ScriptLog records every statement that was not a bookkeeping statement,
	// in execution order.
	ScriptLog []string

	// failures maps a statement substring to an injected error.
	failures map[string]error
}

// NewFakeWarehouse creates a fake for the default table names.
func NewFakeWarehouse(dataset string) *FakeWarehouse {
	return &FakeWarehouse{
		dataset:     dataset,
		ledgerTable: "schema_migrations",
		lockTable:   "schema_migrations_lock",
		tables:      make(map[string]bool),
		failures:    make(map[string]error),
	}
}

// WithTables overrides the bookkeeping table names the fake routes on.
func (f *FakeWarehouse) WithTables(ledger, lock string) *FakeWarehouse {
	f.ledgerTable = ledger
	f.lockTable = lock
	return f
}

// FailOn injects err for any statement containing substr.
func (f *FakeWarehouse) FailOn(substr string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[substr] = err
}

// ClearFailures removes all injected errors.
func (f *FakeWarehouse) ClearFailures() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = make(map[string]error)
}

func (f *FakeWarehouse) ledgerRef() string { return f.dataset + "." + f.ledgerTable }
func (f *FakeWarehouse) lockRef() string   { return f.dataset + "." + f.lockTable }

func (f *FakeWarehouse) injected(query string) error {
	for substr, err := range f.failures {
		if strings.Contains(query, substr) {
			return err
		}
	}
	return nil
}

func (f *FakeWarehouse) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.injected(query); err != nil {
		return 0, err
	}

	// Lock-table cases come first: the ledger table name is a prefix of the
	// lock table name under the default configuration.
	switch {
	case strings.HasPrefix(query, "CREATE TABLE "+f.lockRef()+" ("):
		f.tables[f.lockRef()] = true
		return 0, nil

	case strings.HasPrefix(query, "CREATE TABLE "+f.ledgerRef()+" ("):
		f.tables[f.ledgerRef()] = true
		return 0, nil

	case strings.HasPrefix(query, "INSERT INTO "+f.lockRef()+" ("):
		// Seed row: (is_locked, locked_at).
		f.lockSeeded = true
		f.isLocked = args[0].(bool)
		f.lockedAt = args[1].(time.Time)
		return 1, nil

	case strings.HasPrefix(query, "UPDATE "+f.lockRef()+" SET is_locked = ?, locked_at = ?"):
		// Conditional acquire: WHERE is_locked = ? OR locked_at <= ?.
		if !f.lockSeeded {
			return 0, fmt.Errorf("lock table %s has no row", f.lockRef())
		}
		wantLocked := args[2].(bool)
		stale := args[3].(time.Time)
		if f.isLocked == wantLocked || !f.lockedAt.After(stale) {
			f.isLocked = args[0].(bool)
			f.lockedAt = args[1].(time.Time)
			return 1, nil
		}
		return 0, nil

	case strings.HasPrefix(query, "UPDATE "+f.lockRef()+" SET is_locked = ?"):
		// Release: WHERE is_locked = ?.
		if f.lockSeeded && f.isLocked == args[1].(bool) {
			f.isLocked = args[0].(bool)
			return 1, nil
		}
		return 0, nil

	case strings.HasPrefix(query, "INSERT INTO "+f.ledgerRef()+" ("):
		// Args come in (name, batch, migration_time) triples.
		var inserted int64
		for i := 0; i+2 < len(args); i += 3 {
			f.ledger = append(f.ledger, LedgerRow{
				Name:          args[i].(string),
				Batch:         args[i+1].(int64),
				MigrationTime: args[i+2].(time.Time),
			})
			inserted++
		}
		return inserted, nil

	case strings.HasPrefix(query, "DELETE FROM "+f.ledgerRef()):
		// WHERE batch = ? AND name IN (...).
		batch := args[0].(int64)
		doomed := make(map[string]struct{}, len(args)-1)
		for _, a := range args[1:] {
			doomed[a.(string)] = struct{}{}
		}
		var kept []LedgerRow
		var removed int64
		for _, row := range f.ledger {
			if _, ok := doomed[row.Name]; ok && row.Batch == batch {
				removed++
				continue
			}
			kept = append(kept, row)
		}
		f.ledger = kept
		return removed, nil

	default:
		f.ScriptLog = append(f.ScriptLog, query)
		return 0, nil
	}
}

func (f *FakeWarehouse) SelectStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.injected(query); err != nil {
		return nil, err
	}

	if !strings.HasPrefix(query, "SELECT name FROM "+f.ledgerRef()) {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}

	filtered := strings.Contains(query, "WHERE batch = ?")
	var names []string
	for _, row := range f.ledger {
		if filtered && row.Batch != args[0].(int64) {
			continue
		}
		names = append(names, row.Name)
	}
	// Rows are appended in insertion order and batches only grow, so the
	// slice is already in (batch, migration_time, name) order for any state
	// the engine can produce.
	return names, nil
}

func (f *FakeWarehouse) SelectInt(ctx context.Context, query string, args ...interface{}) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.injected(query); err != nil {
		return 0, err
	}

	if !strings.Contains(query, "MAX(batch)") {
		return 0, fmt.Errorf("unexpected query: %s", query)
	}
	var max int64
	for _, row := range f.ledger {
		if row.Batch > max {
			max = row.Batch
		}
	}
	return max, nil
}

func (f *FakeWarehouse) HasTable(ctx context.Context, dataset, table string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[dataset+"."+table], nil
}

// Ledger returns a copy of the ledger rows in insertion order.
func (f *FakeWarehouse) Ledger() []LedgerRow {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]LedgerRow, len(f.ledger))
	copy(out, f.ledger)
	return out
}

// Locked reports the lock row state.
func (f *FakeWarehouse) Locked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isLocked
}

// SetLock overwrites the lock row, seeding it if needed. For expiry tests.
func (f *FakeWarehouse) SetLock(locked bool, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockSeeded = true
	f.isLocked = locked
	f.lockedAt = at
}

// HasBookkeepingTables reports whether both tables were provisioned.
func (f *FakeWarehouse) HasBookkeepingTables() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[f.ledgerRef()] && f.tables[f.lockRef()]
}
