package warehouse

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/consensuslabs/warehouse-migrate/internal/logger"
)

// ConnectionConfig holds the settings needed to open a warehouse connection.
type ConnectionConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Dbname   string `mapstructure:"dbname" yaml:"dbname"`
	Sslmode  string `mapstructure:"sslmode" yaml:"sslmode"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// GormClient implements Client on top of a gorm connection. Every operation is
// a single round trip; no client-side transaction ever wraps more than one
// statement, matching what the target warehouse can actually guarantee.
type GormClient struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewGormClient wraps an existing gorm connection.
func NewGormClient(db *gorm.DB, log logger.Logger) *GormClient {
	return &GormClient{db: db, logger: log}
}

// Connect opens a connection from config and returns a ready client.
func Connect(cfg *ConnectionConfig, log logger.Logger) (*GormClient, error) {
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=%s",
		cfg.Host, cfg.User, cfg.Password, cfg.Dbname, cfg.Port, cfg.Sslmode, cfg.Timezone,
	)

	log.LogInfo("connecting to warehouse", map[string]interface{}{
		"host":   cfg.Host,
		"port":   cfg.Port,
		"dbname": cfg.Dbname,
	})

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}

	return NewGormClient(db, log), nil
}

func (c *GormClient) Exec(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res := c.db.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return 0, res.Error
	}
	c.logger.LogDebug("statement executed", map[string]interface{}{
		"sql":           query,
		"rows_affected": res.RowsAffected,
	})
	return res.RowsAffected, nil
}

func (c *GormClient) SelectStrings(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	var values []string
	if err := c.db.WithContext(ctx).Raw(query, args...).Scan(&values).Error; err != nil {
		return nil, err
	}
	return values, nil
}

func (c *GormClient) SelectInt(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var value int64
	if err := c.db.WithContext(ctx).Raw(query, args...).Scan(&value).Error; err != nil {
		return 0, err
	}
	return value, nil
}

func (c *GormClient) HasTable(ctx context.Context, dataset, table string) (bool, error) {
	var count int64
	err := c.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?`,
		dataset, table,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close releases the underlying connection pool.
func (c *GormClient) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %v", err)
	}
	return sqlDB.Close()
}
