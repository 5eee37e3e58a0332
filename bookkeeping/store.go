// Package bookkeeping owns the two persisted coordination tables: the
// applied-migrations ledger and the single-row lock record. It provides typed
// read/write operations over them and never mutates state on its own.
package bookkeeping

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/consensuslabs/warehouse-migrate/internal/logger"
	"github.com/consensuslabs/warehouse-migrate/warehouse"
)

// Record is one ledger row: a successfully applied migration.
type Record struct {
	Name          string
	Batch         int64
	MigrationTime time.Time
}

// BookkeepingError indicates a ledger or lock table query failed.
type BookkeepingError struct {
	Op    string
	Cause error
}

func (e *BookkeepingError) Error() string {
	return fmt.Sprintf("bookkeeping %s failed: %v", e.Op, e.Cause)
}

func (e *BookkeepingError) Unwrap() error { return e.Cause }

// Store provides the typed operations over the bookkeeping tables. Every
// mutation is a single warehouse statement; the backing engine offers no
// multi-statement atomicity for persistent tables.
type Store struct {
	client      warehouse.Client
	logger      logger.Logger
	datasetID   string
	ledgerTable string
	lockTable   string
	dialect     Dialect
	location    *time.Location
}

// NewStore creates a Store over the given client and table names.
func NewStore(client warehouse.Client, log logger.Logger, datasetID, ledgerTable, lockTable string, dialect Dialect, location *time.Location) *Store {
	return &Store{
		client:      client,
		logger:      log,
		datasetID:   datasetID,
		ledgerTable: ledgerTable,
		lockTable:   lockTable,
		dialect:     dialect,
		location:    location,
	}
}

// Ledger returns the fully qualified ledger table reference.
func (s *Store) Ledger() string {
	return s.datasetID + "." + s.ledgerTable
}

// LockTable returns the fully qualified lock table reference.
func (s *Store) LockTable() string {
	return s.datasetID + "." + s.lockTable
}

// Now returns the current time in the configured timezone.
func (s *Store) Now() time.Time {
	return time.Now().In(s.location)
}

// EnsureLedgerTable creates the ledger table if it does not exist. Idempotent.
func (s *Store) EnsureLedgerTable(ctx context.Context) error {
	exists, err := s.client.HasTable(ctx, s.datasetID, s.ledgerTable)
	if err != nil {
		return &BookkeepingError{Op: "ledger table check", Cause: err}
	}
	if exists {
		return nil
	}

	ddl := fmt.Sprintf(
		"CREATE TABLE %s (name %s, batch %s, migration_time %s)",
		s.Ledger(), s.dialect.TypeString(), s.dialect.TypeInt64(), s.dialect.TypeDatetime(),
	)
	if _, err := s.client.Exec(ctx, ddl); err != nil {
		return &BookkeepingError{Op: "ledger table creation", Cause: err}
	}

	s.logger.LogInfo("created migrations ledger table", map[string]interface{}{
		"table": s.Ledger(),
	})
	return nil
}

// EnsureLockTable creates the lock table if it does not exist and seeds it
// with its single unlocked row. The row is created exactly once and never
// deleted afterwards; its state is the engine's only synchronization
// primitive.
func (s *Store) EnsureLockTable(ctx context.Context) error {
	exists, err := s.client.HasTable(ctx, s.datasetID, s.lockTable)
	if err != nil {
		return &BookkeepingError{Op: "lock table check", Cause: err}
	}
	if exists {
		return nil
	}

	ddl := fmt.Sprintf(
		"CREATE TABLE %s (is_locked %s, locked_at %s)",
		s.LockTable(), s.dialect.TypeBool(), s.dialect.TypeDatetime(),
	)
	if _, err := s.client.Exec(ctx, ddl); err != nil {
		return &BookkeepingError{Op: "lock table creation", Cause: err}
	}

	seed := fmt.Sprintf("INSERT INTO %s (is_locked, locked_at) VALUES (?, ?)", s.LockTable())
	if _, err := s.client.Exec(ctx, seed, false, s.Now()); err != nil {
		return &BookkeepingError{Op: "lock row seeding", Cause: err}
	}

	s.logger.LogInfo("created migrations lock table", map[string]interface{}{
		"table": s.LockTable(),
	})
	return nil
}

// AppliedNames returns the ledger names in insertion order, optionally
// filtered to a single batch.
func (s *Store) AppliedNames(ctx context.Context, batch ...int64) ([]string, error) {
	query := fmt.Sprintf("SELECT name FROM %s", s.Ledger())
	var args []interface{}
	if len(batch) > 0 {
		query += " WHERE batch = ?"
		args = append(args, batch[0])
	}
	query += " ORDER BY batch, migration_time, name"

	names, err := s.client.SelectStrings(ctx, query, args...)
	if err != nil {
		return nil, &BookkeepingError{Op: "applied names query", Cause: err}
	}
	return names, nil
}

// CurrentBatch returns the highest batch number in the ledger, or 0 when the
// ledger is empty.
func (s *Store) CurrentBatch(ctx context.Context) (int64, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(batch), 0) FROM %s", s.Ledger())
	batch, err := s.client.SelectInt(ctx, query)
	if err != nil {
		return 0, &BookkeepingError{Op: "current batch query", Cause: err}
	}
	return batch, nil
}

// InsertRecords writes one ledger row per name, all stamped with the same
// batch and timestamp, in a single statement.
func (s *Store) InsertRecords(ctx context.Context, names []string, batch int64, at time.Time) error {
	if len(names) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(names))
	args := make([]interface{}, 0, len(names)*3)
	for _, name := range names {
		placeholders = append(placeholders, "(?, ?, ?)")
		args = append(args, name, batch, at)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (name, batch, migration_time) VALUES %s",
		s.Ledger(), strings.Join(placeholders, ", "),
	)
	if _, err := s.client.Exec(ctx, query, args...); err != nil {
		return &BookkeepingError{Op: "ledger insert", Cause: err}
	}
	return nil
}

// DeleteRecords removes the named ledger rows scoped to an explicit batch
// number. The batch qualifier prevents deleting a same-named row reintroduced
// by a later batch.
func (s *Store) DeleteRecords(ctx context.Context, names []string, batch int64) error {
	if len(names) == 0 {
		return nil
	}

	placeholders := make([]string, len(names))
	args := make([]interface{}, 0, len(names)+1)
	args = append(args, batch)
	for i, name := range names {
		placeholders[i] = "?"
		args = append(args, name)
	}

	query := fmt.Sprintf(
		"DELETE FROM %s WHERE batch = ? AND name IN (%s)",
		s.Ledger(), strings.Join(placeholders, ", "),
	)
	if _, err := s.client.Exec(ctx, query, args...); err != nil {
		return &BookkeepingError{Op: "ledger delete", Cause: err}
	}
	return nil
}
