package config

import (
	"github.com/consensuslabs/warehouse-migrate/internal/logger"
	"github.com/consensuslabs/warehouse-migrate/warehouse"
)

// Config is the file/env configuration consumed by the CLI.
type Config struct {
	Environment string                     `mapstructure:"environment"`
	Warehouse   warehouse.ConnectionConfig `mapstructure:"warehouse"`
	Migrations  MigrationsConfig           `mapstructure:"migrations"`
	Logging     logger.Config              `mapstructure:"logging"`
	Server      ServerConfig               `mapstructure:"server"`
}

// MigrationsConfig carries the engine constructor settings.
type MigrationsConfig struct {
	DatasetID         string `mapstructure:"datasetId"`
	ScriptsDir        string `mapstructure:"scriptsDir"`
	LedgerTable       string `mapstructure:"ledgerTable"`
	LockTable         string `mapstructure:"lockTable"`
	LockExpirySeconds int    `mapstructure:"lockExpirySeconds"`
	Timezone          string `mapstructure:"timezone"`
	Dialect           string `mapstructure:"dialect"`
}

// ServerConfig configures the optional status HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}
