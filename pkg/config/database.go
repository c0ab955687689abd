package config

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/platinummonkey/crmcore/pkg/storage"
	"github.com/platinummonkey/crmcore/pkg/storage/postgres"
)

// Database is an open primary pool plus a picker for history reads
type Database struct {
	Primary *sql.DB
	Reader  func() *sql.DB
	Dialect storage.Dialect

	manager *postgres.ConnectionManager
}

// Open connects to the configured store. Postgres goes through the connection manager
// so history reads can use replicas; SQLite is a single pool.
func (d DatabaseConfig) Open(ctx context.Context, logger *observability.Logger) (*Database, error) {
	switch d.Dialect {
	case storage.DialectPostgres:
		cm, err := postgres.NewConnectionManager(d.ConnectionConfig(), logger)
		if err != nil {
			return nil, err
		}
		cm.StartHealthCheckRoutine(ctx, 30*time.Second)
		return &Database{Primary: cm.Primary(), Reader: cm.Replica, Dialect: d.Dialect, manager: cm}, nil
	case storage.DialectSQLite:
		db, err := sql.Open(d.Dialect.DriverName(), d.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ping sqlite: %w", err)
		}
		return &Database{Primary: db, Reader: func() *sql.DB { return db }, Dialect: d.Dialect}, nil
	default:
		return nil, fmt.Errorf("unsupported SQL dialect %q", d.Dialect)
	}
}

// Stats returns the primary pool statistics
func (db *Database) Stats() sql.DBStats {
	return db.Primary.Stats()
}

// Close closes every pool
func (db *Database) Close() error {
	if db.manager != nil {
		return db.manager.Close()
	}
	return db.Primary.Close()
}
