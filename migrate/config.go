package migrate

import (
	"fmt"
	"time"

	"github.com/consensuslabs/warehouse-migrate/bookkeeping"
	"github.com/consensuslabs/warehouse-migrate/catalog"
	"github.com/consensuslabs/warehouse-migrate/internal/logger"
	"github.com/consensuslabs/warehouse-migrate/warehouse"
)

const (
	DefaultLedgerTable = "schema_migrations"
	DefaultLockTable   = "schema_migrations_lock"
	DefaultLockExpiry  = 30 * time.Second
	DefaultTimezone    = "Etc/UTC"
	DefaultScriptsDir  = "./migrations"
)

// Config holds the constructor-time settings for an Engine. Client and
// DatasetID are required; everything else has a default.
type Config struct {
	// Client is the warehouse handle used for every statement the engine runs.
	Client warehouse.Client

	// DatasetID is the target dataset; bookkeeping tables live in it and it
	// is passed through to every script.
	DatasetID string

	// ScriptsDir is the directory scanned for migration script files. Ignored
	// when Source is set.
	ScriptsDir string

	// Source overrides the default filesystem catalog.
	Source catalog.Source

	LedgerTable string
	LockTable   string

	// LockExpiry bounds how long a crashed holder can block future runs.
	LockExpiry time.Duration

	// Timezone is the IANA zone used for ledger and lock timestamps.
	Timezone string

	// Dialect controls the column types of the bookkeeping tables.
	Dialect bookkeeping.Dialect

	Logger logger.Logger
}

// withDefaults validates the config and fills in defaults, returning the
// resolved timezone location.
func (c *Config) withDefaults() (*time.Location, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if c.DatasetID == "" {
		return nil, fmt.Errorf("datasetId is required")
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = DefaultScriptsDir
	}
	if c.Source == nil {
		c.Source = catalog.NewDir(c.ScriptsDir)
	}
	if c.LedgerTable == "" {
		c.LedgerTable = DefaultLedgerTable
	}
	if c.LockTable == "" {
		c.LockTable = DefaultLockTable
	}
	if c.LockExpiry <= 0 {
		c.LockExpiry = DefaultLockExpiry
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.Dialect == nil {
		c.Dialect = bookkeeping.StandardSQL{}
	}
	if c.Logger == nil {
		c.Logger = logger.NewNopLogger()
	}

	location, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %v", c.Timezone, err)
	}
	return location, nil
}
