package migrate

import (
	"context"

	"github.com/consensuslabs/warehouse-migrate/catalog"
	"github.com/consensuslabs/warehouse-migrate/internal/logger"
)

// revertCurrentBatch is the locked phase of Rollback: select the catalog
// scripts recorded in the current batch, execute their down procedures in
// ascending catalog order, then delete the executed names from the ledger
// scoped to that batch.
func (e *Engine) revertCurrentBatch(ctx context.Context, log logger.Logger, scripts []catalog.Script, res *Result) {
	current, err := e.store.CurrentBatch(ctx)
	if err != nil {
		res.Err = err
		log.LogError(err, "failed to determine current batch")
		return
	}
	if current == 0 {
		log.LogInfo("ledger is empty, nothing to roll back", nil)
		return
	}

	applied, err := e.store.AppliedNames(ctx, current)
	if err != nil {
		res.Err = err
		log.LogError(err, "failed to read current batch")
		return
	}

	appliedSet := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		appliedSet[name] = struct{}{}
	}

	// Catalog order, not reversed: each script's down procedure is
	// responsible for correctness regardless of direction.
	var targets []catalog.Script
	for _, s := range scripts {
		if _, ok := appliedSet[s.Name]; ok {
			targets = append(targets, s)
		}
	}

	if len(targets) == 0 {
		log.LogInfo("no catalog scripts in current batch", map[string]interface{}{
			"batch": current,
		})
		return
	}

	for _, s := range targets {
		if err := s.Migrator.Down(ctx, e.client, e.datasetID); err != nil {
			res.Err = &ScriptExecutionError{Name: s.Name, Direction: "down", Cause: err}
			log.LogError(err, "rollback script failed, stopping")
			break
		}
		res.Executed = append(res.Executed, s.Name)
		log.LogInfo("migration reverted", map[string]interface{}{
			"name":  s.Name,
			"batch": current,
		})
	}

	if len(res.Executed) == 0 {
		return
	}

	// Scoped to the batch number so a same-named row reintroduced by a later
	// batch is never touched.
	if err := e.store.DeleteRecords(ctx, res.Executed, current); err != nil {
		if res.Err == nil {
			res.Err = err
		}
		log.LogError(err, "reverted migrations could not be removed from ledger")
		return
	}

	res.Batch = current
	log.LogInfo("rollback recorded", map[string]interface{}{
		"batch":    current,
		"reverted": len(res.Executed),
	})
}
