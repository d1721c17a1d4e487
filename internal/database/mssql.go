package database

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	sqlserver "gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	errMissingServer   = errors.New("server is required")
	errMissingDatabase = errors.New("database name is required")
	errMissingUsername = errors.New("username is required")
	ErrInvalidDBConfig = errors.New("database: invalid config")
)

// Config carries the SQL Server connection parameters.
type Config struct {
	Server   string
	Database string
	Username string
	Password string
}

// Open establishes a SQL Server connection for roster reads. The
// table is owned by another system, so no migrations run here.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(cfg.Server) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDBConfig, errMissingServer)
	}
	if strings.TrimSpace(cfg.Database) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDBConfig, errMissingDatabase)
	}
	if strings.TrimSpace(cfg.Username) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDBConfig, errMissingUsername)
	}

	dsn := fmt.Sprintf("sqlserver://%s:%s@%s?database=%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		cfg.Server,
		url.QueryEscape(cfg.Database),
	)

	db, err := gorm.Open(sqlserver.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database connected",
			zap.String("server", cfg.Server),
			zap.String("database", cfg.Database))
	}

	return db, nil
}
