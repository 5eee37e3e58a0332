package main

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/consensuslabs/warehouse-migrate/bookkeeping"
	"github.com/consensuslabs/warehouse-migrate/internal/config"
	"github.com/consensuslabs/warehouse-migrate/internal/logger"
	"github.com/consensuslabs/warehouse-migrate/migrate"
	"github.com/consensuslabs/warehouse-migrate/warehouse"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "wmigrate",
	Short: "Schema migration runner for analytical warehouses",
	Long: `wmigrate applies and reverts ordered schema-change scripts against a
live dataset. Runs are serialized through a lease-based lock stored in the
warehouse itself, and every applied script is recorded in a batch ledger so
partial failures stay inspectable.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory containing config.yaml")

	rootCmd.AddCommand(
		newUpCmd(),
		newRollbackCmd(),
		newStatusCmd(),
		newCreateTablesCmd(),
		newLockCmd(),
		newUnlockCmd(),
		newFilesCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
}

// app bundles everything a command needs: config, loggers, warehouse client
// and a constructed engine.
type app struct {
	cfg    *config.Config
	logger logger.Logger
	cli    *cliLogger
	client *warehouse.GormClient
	engine *migrate.Engine
}

// loadEnvAndConfig loads .env and config.yaml and builds the loggers. Split
// from newApp so commands that never touch the warehouse can skip connecting.
func loadEnvAndConfig() (*config.Config, logger.Logger, *cliLogger, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env file found or error loading it: %v", err)
	}

	bootLog, err := logger.NewLogger(&logger.Config{Level: logger.InfoLevel, Format: "json", Output: "stdout"})
	if err != nil {
		return nil, nil, nil, err
	}

	cfg, err := config.NewConfigService(bootLog).Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	zapLog, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}

	cliLog, err := newCLILogger(string(cfg.Logging.Level))
	if err != nil {
		return nil, nil, nil, err
	}

	return cfg, zapLog, cliLog, nil
}

// newApp loads the configuration, connects to the warehouse and builds the
// engine. Commands call this at run time, not init time, so --help works
// without a reachable warehouse.
func newApp() (*app, error) {
	cfg, zapLog, cliLog, err := loadEnvAndConfig()
	if err != nil {
		return nil, err
	}

	client, err := warehouse.Connect(&cfg.Warehouse, zapLog)
	if err != nil {
		return nil, err
	}

	var dialect bookkeeping.Dialect = bookkeeping.StandardSQL{}
	if cfg.Migrations.Dialect == "postgres" {
		dialect = bookkeeping.Postgres{}
	}

	engine, err := migrate.New(migrate.Config{
		Client:      client,
		DatasetID:   cfg.Migrations.DatasetID,
		ScriptsDir:  cfg.Migrations.ScriptsDir,
		LedgerTable: cfg.Migrations.LedgerTable,
		LockTable:   cfg.Migrations.LockTable,
		LockExpiry:  time.Duration(cfg.Migrations.LockExpirySeconds) * time.Second,
		Timezone:    cfg.Migrations.Timezone,
		Dialect:     dialect,
		Logger:      zapLog,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: zapLog,
		cli:    cliLog,
		client: client,
		engine: engine,
	}, nil
}

// close releases the warehouse connection.
func (a *app) close() {
	if err := a.client.Close(); err != nil {
		a.logger.LogError(err, "failed to close warehouse connection")
	}
}
