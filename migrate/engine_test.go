package migrate_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consensuslabs/warehouse-migrate/bookkeeping"
	"github.com/consensuslabs/warehouse-migrate/catalog"
	"github.com/consensuslabs/warehouse-migrate/internal/logger"
	"github.com/consensuslabs/warehouse-migrate/migrate"
	"github.com/consensuslabs/warehouse-migrate/testhelper"
	"github.com/consensuslabs/warehouse-migrate/warehouse"
)

// fakeMigrator records its executions in a shared log and can be told to fail
// in either direction.
type fakeMigrator struct {
	name     string
	log      *[]string
	failUp   bool
	failDown bool
}

func (m *fakeMigrator) Up(ctx context.Context, client warehouse.Client, datasetID string) error {
	if m.failUp {
		return fmt.Errorf("up of %s exploded", m.name)
	}
	*m.log = append(*m.log, m.name+":up")
	return nil
}

func (m *fakeMigrator) Down(ctx context.Context, client warehouse.Client, datasetID string) error {
	if m.failDown {
		return fmt.Errorf("down of %s exploded", m.name)
	}
	*m.log = append(*m.log, m.name+":down")
	return nil
}

type harness struct {
	fake   *testhelper.FakeWarehouse
	engine *migrate.Engine
	log    []string
}

func newHarness(t *testing.T, names []string, broken map[string]string) *harness {
	t.Helper()
	h := &harness{fake: testhelper.NewFakeWarehouse("analytics")}

	scripts := make([]catalog.Script, 0, len(names))
	for _, name := range names {
		m := &fakeMigrator{name: name, log: &h.log}
		switch broken[name] {
		case "up":
			m.failUp = true
		case "down":
			m.failDown = true
		}
		scripts = append(scripts, catalog.Script{
			Name:     name,
			FileName: name + ".sql",
			Migrator: m,
		})
	}

	engine, err := migrate.New(migrate.Config{
		Client:    h.fake,
		DatasetID: "analytics",
		Source:    catalog.NewList(scripts...),
		Logger:    logger.NewNopLogger(),
	})
	require.NoError(t, err)
	h.engine = engine
	return h
}

func TestNewValidation(t *testing.T) {
	_, err := migrate.New(migrate.Config{DatasetID: "analytics"})
	assert.Error(t, err, "missing client must fail")

	_, err = migrate.New(migrate.Config{Client: testhelper.NewFakeWarehouse("analytics")})
	assert.Error(t, err, "missing dataset must fail")

	_, err = migrate.New(migrate.Config{
		Client:    testhelper.NewFakeWarehouse("analytics"),
		DatasetID: "analytics",
		Timezone:  "Not/AZone",
	})
	assert.Error(t, err, "bad timezone must fail")
}

func TestRunAppliesPendingInOrder(t *testing.T) {
	h := newHarness(t, []string{"002_person", "001_init", "003_email"}, nil)

	res, err := h.engine.Run(context.Background())
	require.NoError(t, err)
	require.False(t, res.Failed())

	assert.Equal(t, []string{"001_init:up", "002_person:up", "003_email:up"}, h.log)
	assert.Equal(t, []string{"001_init", "002_person", "003_email"}, res.Executed)
	assert.Equal(t, int64(1), res.Batch)
	assert.NotEmpty(t, res.RunID)

	rows := h.fake.Ledger()
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, int64(1), row.Batch, "all rows of one run share the batch")
	}
	assert.False(t, h.fake.Locked(), "lock must be released after the run")
	assert.True(t, h.fake.HasBookkeepingTables())
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t, []string{"001_init", "002_person"}, nil)
	ctx := context.Background()

	_, err := h.engine.Run(ctx)
	require.NoError(t, err)
	firstRows := h.fake.Ledger()

	res, err := h.engine.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Executed, "second run must execute nothing")
	assert.Equal(t, int64(0), res.Batch, "second run must not allocate a batch")
	assert.Equal(t, firstRows, h.fake.Ledger())
	assert.Len(t, h.log, 2)
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()

	// Empty ledger, two scripts.
	h := newHarness(t, []string{"001_init", "002_person"}, nil)
	res, err := h.engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Batch)
	require.Len(t, h.fake.Ledger(), 2)

	// A third script appears. Rebuild the engine over the same warehouse, as
	// a fresh process would.
	h2 := &harness{fake: h.fake}
	scripts := []catalog.Script{}
	for _, name := range []string{"001_init", "002_person", "003_email"} {
		scripts = append(scripts, catalog.Script{
			Name:     name,
			FileName: name + ".sql",
			Migrator: &fakeMigrator{name: name, log: &h2.log},
		})
	}
	engine, err := migrate.New(migrate.Config{
		Client:    h.fake,
		DatasetID: "analytics",
		Source:    catalog.NewList(scripts...),
		Logger:    logger.NewNopLogger(),
	})
	require.NoError(t, err)
	h2.engine = engine

	res, err = h2.engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"003_email"}, res.Executed)
	assert.Equal(t, int64(2), res.Batch)

	rows := h.fake.Ledger()
	require.Len(t, rows, 3)
	assert.Equal(t, int64(1), rows[0].Batch)
	assert.Equal(t, int64(1), rows[1].Batch)
	assert.Equal(t, int64(2), rows[2].Batch)

	// Rollback removes only the latest batch and runs its down exactly once.
	res, err = h2.engine.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"003_email"}, res.Executed)
	assert.Equal(t, int64(2), res.Batch)
	assert.Len(t, h.fake.Ledger(), 2)

	var downs int
	for _, entry := range h2.log {
		if entry == "003_email:down" {
			downs++
		}
	}
	assert.Equal(t, 1, downs)
}

func TestRollbackScoping(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"001_a", "002_b"}, nil)

	_, err := h.engine.Run(ctx)
	require.NoError(t, err)

	// Second batch via a wider catalog over the same warehouse.
	h2 := newHarness(t, []string{"001_a", "002_b", "003_c"}, nil)
	h2.fake = h.fake
	engine, err := migrate.New(migrate.Config{
		Client:    h.fake,
		DatasetID: "analytics",
		Source: catalog.NewList(
			catalog.Script{Name: "001_a", FileName: "001_a.sql", Migrator: &fakeMigrator{name: "001_a", log: &h2.log}},
			catalog.Script{Name: "002_b", FileName: "002_b.sql", Migrator: &fakeMigrator{name: "002_b", log: &h2.log}},
			catalog.Script{Name: "003_c", FileName: "003_c.sql", Migrator: &fakeMigrator{name: "003_c", log: &h2.log}},
		),
		Logger: logger.NewNopLogger(),
	})
	require.NoError(t, err)

	_, err = engine.Run(ctx)
	require.NoError(t, err)
	require.Len(t, h.fake.Ledger(), 3)

	// First rollback: batch 2 only.
	res, err := engine.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"003_c"}, res.Executed)
	require.Len(t, h.fake.Ledger(), 2)

	// Second rollback: batch 1, ascending order.
	res, err = engine.Rollback(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a", "002_b"}, res.Executed)
	assert.Empty(t, h.fake.Ledger())

	// Third rollback: empty ledger, nothing happens.
	res, err = engine.Rollback(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Executed)
	assert.Equal(t, int64(0), res.Batch)
}

func TestUpDownUpRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"001_solo"}, nil)

	_, err := h.engine.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), h.fake.Ledger()[0].Batch)

	_, err = h.engine.Rollback(ctx)
	require.NoError(t, err)
	require.Empty(t, h.fake.Ledger())

	res, err := h.engine.Run(ctx)
	require.NoError(t, err)
	require.Len(t, h.fake.Ledger(), 1)
	assert.Equal(t, "001_solo", h.fake.Ledger()[0].Name)
	assert.Equal(t, int64(2), res.Batch, "a rerun after rollback allocates a fresh batch")
}

func TestRunPartialFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"001_a", "002_boom", "003_c"}, map[string]string{"002_boom": "up"})

	res, err := h.engine.Run(ctx)
	require.NoError(t, err, "mid-run failures must not fail the call")
	require.True(t, res.Failed())

	var scriptErr *migrate.ScriptExecutionError
	require.ErrorAs(t, res.Err, &scriptErr)
	assert.Equal(t, "002_boom", scriptErr.Name)
	assert.Equal(t, "up", scriptErr.Direction)

	// The loop stopped at the failure; the executed prefix is recorded.
	assert.Equal(t, []string{"001_a"}, res.Executed)
	assert.Equal(t, []string{"001_a:up"}, h.log)
	rows := h.fake.Ledger()
	require.Len(t, rows, 1)
	assert.Equal(t, "001_a", rows[0].Name)
	assert.Equal(t, int64(1), rows[0].Batch)

	assert.False(t, h.fake.Locked(), "lock must be released after a failed run")
}

func TestRollbackPartialFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"001_a", "002_boom"}, map[string]string{"002_boom": "down"})

	_, err := h.engine.Run(ctx)
	require.NoError(t, err)

	res, err := h.engine.Rollback(ctx)
	require.NoError(t, err)
	require.True(t, res.Failed())

	// 001_a's down ran before 002_boom failed; only 001_a leaves the ledger.
	assert.Equal(t, []string{"001_a"}, res.Executed)
	rows := h.fake.Ledger()
	require.Len(t, rows, 1)
	assert.Equal(t, "002_boom", rows[0].Name)
	assert.False(t, h.fake.Locked())
}

func TestBookkeepingFailureIsSurfacedNotThrown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"001_a"}, nil)
	require.NoError(t, h.engine.CreateLedgerTable(ctx))
	require.NoError(t, h.engine.CreateLockTable(ctx))

	h.fake.FailOn("SELECT name FROM", errors.New("quota exceeded"))

	res, err := h.engine.Run(ctx)
	require.NoError(t, err, "in-lock bookkeeping failures must not fail the call")
	require.True(t, res.Failed())

	var bkErr *migrate.BookkeepingError
	assert.ErrorAs(t, res.Err, &bkErr)
	assert.Empty(t, res.Executed)
	assert.False(t, h.fake.Locked())
}

func TestHeldLockAbortsRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"001_a"}, nil)
	require.NoError(t, h.engine.CreateLedgerTable(ctx))
	require.NoError(t, h.engine.CreateLockTable(ctx))

	h.fake.SetLock(true, time.Now())

	_, err := h.engine.Run(ctx)
	var lockErr *migrate.LockAcquisitionError
	require.ErrorAs(t, err, &lockErr)
	assert.Empty(t, h.log, "no script may run without the lock")
	assert.True(t, h.fake.Locked(), "the other holder's lock must be untouched")
}

func TestStaleLockIsTakenOver(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"001_a"}, nil)
	require.NoError(t, h.engine.CreateLedgerTable(ctx))
	require.NoError(t, h.engine.CreateLockTable(ctx))

	h.fake.SetLock(true, time.Now().Add(-5*time.Minute))

	res, err := h.engine.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a"}, res.Executed)
	assert.False(t, h.fake.Locked())
}

func TestReleaseFailureIsLoggedNotPropagated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"001_a"}, nil)

	// The release statement is the only one without a locked_at column.
	h.fake.FailOn("SET is_locked = ? WHERE is_locked = ?", errors.New("connection reset"))

	res, err := h.engine.Run(ctx)
	require.NoError(t, err, "a release failure must not fail the call")
	require.False(t, res.Failed(), "a release failure is no mid-run failure either")

	assert.Equal(t, []string{"001_a"}, res.Executed)
	assert.Equal(t, int64(1), res.Batch)
	require.Len(t, h.fake.Ledger(), 1)
	assert.True(t, h.fake.Locked(), "the failed release leaves the row locked")
}

func TestDiscoveryErrorIsFatalBeforeLock(t *testing.T) {
	ctx := context.Background()
	fake := testhelper.NewFakeWarehouse("analytics")
	engine, err := migrate.New(migrate.Config{
		Client:     fake,
		DatasetID:  "analytics",
		ScriptsDir: "/definitely/not/a/dir",
		Logger:     logger.NewNopLogger(),
	})
	require.NoError(t, err)

	_, err = engine.Run(ctx)
	var discErr *migrate.DiscoveryError
	require.ErrorAs(t, err, &discErr)
	assert.False(t, fake.Locked(), "no lock may be held when discovery fails")
}

func TestEnsureTableFailurePropagates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"001_a"}, nil)
	h.fake.FailOn("CREATE TABLE analytics.schema_migrations (", errors.New("permission denied"))

	_, err := h.engine.Run(ctx)
	var bkErr *migrate.BookkeepingError
	require.ErrorAs(t, err, &bkErr)
	assert.Empty(t, h.log)
	assert.False(t, h.fake.Locked())
}

func TestAppliedAndScriptFiles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"001_a", "002_b"}, nil)

	_, err := h.engine.Run(ctx)
	require.NoError(t, err)

	applied, err := h.engine.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a", "002_b"}, applied)

	batch1, err := h.engine.Applied(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a", "002_b"}, batch1)

	batch2, err := h.engine.Applied(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, batch2)

	files, err := h.engine.ScriptFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, files)
}

func TestRollbackIgnoresLedgerRowsWithoutScripts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, []string{"001_a"}, nil)
	require.NoError(t, h.engine.CreateLedgerTable(ctx))
	require.NoError(t, h.engine.CreateLockTable(ctx))

	// A row recorded by some other catalog version.
	store := bookkeeping.NewStore(
		h.fake, logger.NewNopLogger(), "analytics",
		"schema_migrations", "schema_migrations_lock",
		bookkeeping.StandardSQL{}, time.UTC,
	)
	require.NoError(t, store.InsertRecords(ctx, []string{"009_orphan"}, 1, time.Now().UTC()))

	res, err := h.engine.Rollback(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Executed)
	assert.Len(t, h.fake.Ledger(), 1, "a ledger row without a catalog script stays put")
	assert.False(t, h.fake.Locked())
}
