package config

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/platinummonkey/crmcore/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfig_OpenSQLite(t *testing.T) {
	cfg := DatabaseConfig{
		Dialect: storage.DialectSQLite,
		URL:     "file:" + filepath.Join(t.TempDir(), "crm.db") + "?_txlock=immediate",
	}

	db, err := cfg.Open(context.Background(), observability.NewLogger(observability.ErrorLevel, io.Discard))
	require.NoError(t, err)
	defer db.Close()

	assert.Same(t, db.Primary, db.Reader())
	require.NoError(t, storage.Migrate(context.Background(), db.Primary, db.Dialect))
}

func TestDatabaseConfig_OpenUnsupported(t *testing.T) {
	_, err := DatabaseConfig{Dialect: "mysql"}.Open(context.Background(), nil)
	assert.ErrorContains(t, err, "unsupported")
}
