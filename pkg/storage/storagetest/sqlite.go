// Package storagetest provides database fixtures for package tests.
package storagetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/platinummonkey/crmcore/pkg/storage"
	"github.com/stretchr/testify/require"
)

// NewSQLiteDB opens a migrated, file-backed SQLite database in a temp directory.
// Transactions take the write lock on BEGIN so concurrent writers serialize the same
// way row locks make them serialize on Postgres.
func NewSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "crmcore.db")
	dsn := "file:" + path + "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"

	db, err := sql.Open(storage.DialectSQLite.DriverName(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.Migrate(context.Background(), db, storage.DialectSQLite))
	return db
}

// SeedTenant inserts a tenant row. A nil trialEnd means the tenant never had a trial.
func SeedTenant(t *testing.T, db *sql.DB, id, slug string, trialEnd *time.Time) {
	t.Helper()

	var trial sql.NullTime
	if trialEnd != nil {
		trial = sql.NullTime{Time: *trialEnd, Valid: true}
	}
	_, err := db.Exec(
		`INSERT INTO tenants (id, slug, name, trial_ends_at, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, slug, slug, trial, time.Now().UTC(),
	)
	require.NoError(t, err)
}

// SeedMember inserts a membership row with the given status
func SeedMember(t *testing.T, db *sql.DB, tenantID, userID, role, status string) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO memberships (id, tenant_id, user_id, role, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		tenantID+":"+userID, tenantID, userID, role, status, time.Now().UTC(),
	)
	require.NoError(t, err)
}

// SeedRecords inserts n rows into a quota-gated record table (contacts, deals, ...)
func SeedRecords(t *testing.T, db *sql.DB, table, tenantID string, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		var err error
		if table == "pipelines" {
			_, err = db.Exec(`INSERT INTO pipelines (id, tenant_id, created_at) VALUES ($1, $2, $3)`,
				uuid.NewString(), tenantID, time.Now().UTC())
		} else {
			_, err = db.Exec(`INSERT INTO `+table+` (id, tenant_id, assigned_to, created_at) VALUES ($1, $2, $3, $4)`,
				uuid.NewString(), tenantID, "seed", time.Now().UTC())
		}
		require.NoError(t, err)
	}
}
