package migrate

import (
	"context"

	"github.com/consensuslabs/warehouse-migrate/catalog"
	"github.com/consensuslabs/warehouse-migrate/internal/logger"
)

// applyPending is the locked phase of Run: diff the catalog against the full
// applied-names set, execute the pending scripts' up procedures in catalog
// order, then record all executed names as one new batch.
func (e *Engine) applyPending(ctx context.Context, log logger.Logger, scripts []catalog.Script, res *Result) {
	applied, err := e.store.AppliedNames(ctx)
	if err != nil {
		res.Err = err
		log.LogError(err, "failed to read applied migrations")
		return
	}

	appliedSet := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		appliedSet[name] = struct{}{}
	}

	var pending []catalog.Script
	for _, s := range scripts {
		if _, ok := appliedSet[s.Name]; !ok {
			pending = append(pending, s)
		}
	}

	if len(pending) == 0 {
		log.LogInfo("no pending migrations", map[string]interface{}{
			"applied": len(applied),
		})
		return
	}

	// Strictly sequential: later scripts may depend on structures created by
	// earlier ones in the same batch. On failure the loop stops immediately;
	// already-executed scripts are not reverted, the ledger records exactly
	// what ran.
	for _, s := range pending {
		if err := s.Migrator.Up(ctx, e.client, e.datasetID); err != nil {
			res.Err = &ScriptExecutionError{Name: s.Name, Direction: "up", Cause: err}
			log.LogError(err, "migration failed, stopping run")
			break
		}
		res.Executed = append(res.Executed, s.Name)
		log.LogInfo("migration applied", map[string]interface{}{
			"name": s.Name,
		})
	}

	if len(res.Executed) == 0 {
		return
	}

	current, err := e.store.CurrentBatch(ctx)
	if err != nil {
		if res.Err == nil {
			res.Err = err
		}
		log.LogError(err, "executed migrations could not be recorded: batch query failed")
		return
	}

	batch := current + 1
	if err := e.store.InsertRecords(ctx, res.Executed, batch, e.store.Now()); err != nil {
		if res.Err == nil {
			res.Err = err
		}
		log.LogError(err, "executed migrations could not be recorded: ledger insert failed")
		return
	}

	res.Batch = batch
	log.LogInfo("migration batch recorded", map[string]interface{}{
		"batch":    batch,
		"executed": len(res.Executed),
	})
}
