package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/platinummonkey/crmcore/pkg/storage"
	"github.com/platinummonkey/crmcore/pkg/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	for in, want := range map[string]storage.Dialect{
		"postgres":   storage.DialectPostgres,
		"postgresql": storage.DialectPostgres,
		"sqlite3":    storage.DialectSQLite,
		"sqlite":     storage.DialectSQLite,
	} {
		got, err := storage.ParseDialect(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := storage.ParseDialect("mysql")
	assert.Error(t, err)
}

func TestDialect_ForUpdate(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", storage.DialectPostgres.ForUpdate())
	assert.Equal(t, "", storage.DialectSQLite.ForUpdate())
	assert.Equal(t, "TIMESTAMPTZ", storage.DialectPostgres.TimestampType())
	assert.Equal(t, "TEXT", storage.DialectSQLite.JSONType())
}

func TestMigrate_Idempotent(t *testing.T) {
	db := storagetest.NewSQLiteDB(t)

	require.NoError(t, storage.Migrate(context.Background(), db, storage.DialectSQLite))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, len(storage.GetMigrations(storage.DialectSQLite)), count)
}

func TestMigrate_WalletBalancesNonNegative(t *testing.T) {
	db := storagetest.NewSQLiteDB(t)
	storagetest.SeedTenant(t, db, "t1", "acme", nil)

	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO wallets (tenant_id, plan_balance, top_up_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`, "t1", -1, 0, now, now)
	require.Error(t, err)
	assert.True(t, storage.IsCheckViolation(err))
	assert.False(t, storage.IsUniqueViolation(err))
}

func TestIsUniqueViolation(t *testing.T) {
	db := storagetest.NewSQLiteDB(t)
	storagetest.SeedTenant(t, db, "t1", "acme", nil)

	_, err := db.Exec(`INSERT INTO tenants (id, slug, name, created_at) VALUES ($1, $2, $3, $4)`,
		"t2", "acme", "Acme again", time.Now().UTC())
	require.Error(t, err)
	assert.True(t, storage.IsUniqueViolation(err))
	assert.False(t, storage.IsCheckViolation(err))

	assert.False(t, storage.IsUniqueViolation(errors.New("unique")))
	assert.False(t, storage.IsUniqueViolation(nil))
}

func TestRunInTx(t *testing.T) {
	ctx := context.Background()
	db := storagetest.NewSQLiteDB(t)

	count := func() int {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM tenants").Scan(&n))
		return n
	}
	insert := func(tx *sql.Tx, id string) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO tenants (id, slug, name, created_at) VALUES ($1, $2, $3, $4)`,
			id, id, id, time.Now().UTC())
		return err
	}

	t.Run("commits", func(t *testing.T) {
		err := storage.RunInTx(ctx, db, nil, func(tx *sql.Tx) error { return insert(tx, "a") })
		require.NoError(t, err)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := storage.RunInTx(ctx, db, nil, func(tx *sql.Tx) error {
			require.NoError(t, insert(tx, "b"))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, count())
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		assert.Panics(t, func() {
			_ = storage.RunInTx(ctx, db, nil, func(tx *sql.Tx) error {
				require.NoError(t, insert(tx, "c"))
				panic("kaboom")
			})
		})
		assert.Equal(t, 1, count())
	})
}
