package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/appminuta/mapa-ventas/internal/snapshots"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Options describes how to reach the snapshot store.
type Options struct {
	Driver             string
	DSN                string
	MaxOpenConnections int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// Open establishes the connection, migrates the snapshot schema and applies named migrations.
// The inventory relations are owned upstream and are never migrated here.
func Open(options Options, logger *zap.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(options.DSN) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	dialector, err := dialectorFor(options.Driver, options.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if options.Driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		if options.MaxOpenConnections > 0 {
			sqlDB.SetMaxOpenConns(options.MaxOpenConnections)
		}
		if options.MaxIdleConnections > 0 {
			sqlDB.SetMaxIdleConns(options.MaxIdleConnections)
		}
		if options.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(options.ConnMaxLifetime)
		}
	}

	if err := Migrate(db, logger); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", options.Driver))
	}
	return db, nil
}

// Migrate creates the snapshot tables and runs the pending named migrations.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&snapshots.Snapshot{}, &snapshots.SnapshotDetail{}, &migrationRecord{}); err != nil {
		return err
	}
	return applyMigrations(db, logger)
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case DriverSQLite:
		return sqlite.Open(dsn), nil
	case DriverPostgres:
		return postgres.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
