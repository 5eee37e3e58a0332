// Package catalog discovers and orders the migration scripts available to the
// engine. Scripts are re-read on every listing; nothing is cached between runs.
package catalog

import (
	"context"
	"fmt"

	"github.com/consensuslabs/warehouse-migrate/warehouse"
)

// Migrator is the forward/reverse change pair a script exposes.
type Migrator interface {
	Up(ctx context.Context, client warehouse.Client, datasetID string) error
	Down(ctx context.Context, client warehouse.Client, datasetID string) error
}

// Script is a discovered migration. OrderKey is the 3-digit filename prefix
// and is used only for ordering; Name (the filename minus its extension) is
// the identifier recorded in the ledger.
type Script struct {
	OrderKey string
	Name     string
	FileName string
	Migrator Migrator
}

// Source yields the ordered script catalog. Implementations must return a
// fresh listing on every call.
type Source interface {
	List() ([]Script, error)
}

// DiscoveryError indicates the script catalog could not be read at all.
type DiscoveryError struct {
	Dir   string
	Cause error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("failed to read migrations directory %s: %v", e.Dir, e.Cause)
}

func (e *DiscoveryError) Unwrap() error { return e.Cause }
