package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/consensuslabs/warehouse-migrate/internal/logger"
)

// ConfigService loads and validates the CLI configuration.
type ConfigService struct {
	logger logger.Logger
}

// NewConfigService creates a new configuration service
func NewConfigService(log logger.Logger) *ConfigService {
	return &ConfigService{logger: log}
}

// Load loads the configuration from the specified path
func (s *ConfigService) Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	// Use test configuration file if ENV is set to test
	if os.Getenv("ENV") == "test" {
		viper.SetConfigName("config_test")
	} else {
		viper.SetConfigName("config")
	}
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("WMIGRATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	s.setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
		s.logger.LogWarn("no config file found, using defaults and environment", nil)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	if err := s.validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	s.logger.LogInfo("configuration loaded", map[string]interface{}{
		"environment": config.Environment,
		"dataset":     config.Migrations.DatasetID,
	})
	return &config, nil
}

// setDefaults sets default values for configuration
func (s *ConfigService) setDefaults() {
	viper.SetDefault("environment", "development")
	// Keys without a natural default are still registered so viper
	// consults WMIGRATE_* env vars for them during Unmarshal.
	viper.SetDefault("warehouse.user", "")
	viper.SetDefault("warehouse.password", "")
	viper.SetDefault("warehouse.dbname", "")
	viper.SetDefault("migrations.datasetId", "")
	viper.SetDefault("logging.development", false)
	viper.SetDefault("warehouse.host", "localhost")
	viper.SetDefault("warehouse.port", 5432)
	viper.SetDefault("warehouse.sslmode", "disable")
	viper.SetDefault("warehouse.timezone", "UTC")
	viper.SetDefault("migrations.scriptsDir", "./migrations")
	viper.SetDefault("migrations.ledgerTable", "schema_migrations")
	viper.SetDefault("migrations.lockTable", "schema_migrations_lock")
	viper.SetDefault("migrations.lockExpirySeconds", 30)
	viper.SetDefault("migrations.timezone", "Etc/UTC")
	viper.SetDefault("migrations.dialect", "standard")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
}

func (s *ConfigService) validate(config *Config) error {
	if config.Migrations.DatasetID == "" {
		return fmt.Errorf("migrations.datasetId is required")
	}
	if config.Migrations.LockExpirySeconds <= 0 {
		return fmt.Errorf("migrations.lockExpirySeconds must be positive")
	}
	switch config.Migrations.Dialect {
	case "standard", "postgres":
	default:
		return fmt.Errorf("migrations.dialect must be standard or postgres, got %q", config.Migrations.Dialect)
	}
	return nil
}
