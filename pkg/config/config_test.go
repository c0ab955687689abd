package config

import (
	"testing"
	"time"

	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/platinummonkey/crmcore/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STR", "custom")
	t.Setenv("TEST_BOOL", "1")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty-two")
	t.Setenv("TEST_DURATION", "90s")

	assert.Equal(t, "custom", getEnv("TEST_STR", "default"))
	assert.Equal(t, "default", getEnv("TEST_STR_NOT_SET", "default"))
	assert.True(t, getEnvBool("TEST_BOOL", false))
	assert.True(t, getEnvBool("TEST_BOOL_NOT_SET", true))
	assert.Equal(t, 42, getEnvInt("TEST_INT", 0))
	assert.Equal(t, 7, getEnvInt("TEST_BAD_INT", 7))
	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION_NOT_SET", time.Second))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CRMCORE_POSTGRES_URL", "postgres://localhost/crm?sslmode=disable")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HealthAddr())
	assert.Equal(t, storage.DialectPostgres, cfg.Database.Dialect)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, "starter", cfg.Billing.TrialPlan)
	assert.Zero(t, cfg.Billing.BalanceCacheTTL, "balance cache is disabled by default")
	assert.Equal(t, 7*24*time.Hour, cfg.Billing.InvitationTTL)
	assert.Equal(t, "0 0 1 * *", cfg.Jobs.GrantSchedule)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.OTelEnabled)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("CRMCORE_POSTGRES_URL", "file:crm.db")
	t.Setenv("CRMCORE_DB_DIALECT", "sqlite")
	t.Setenv("CRMCORE_POSTGRES_REPLICA_URLS", "postgres://r1/crm, postgres://r2/crm")
	t.Setenv("CRMCORE_REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("CRMCORE_BALANCE_CACHE_TTL", "5s")
	t.Setenv("CRMCORE_TRIAL_PLAN", "growth")
	t.Setenv("CRMCORE_JOB_WORKERS", "16")
	t.Setenv("CRMCORE_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, storage.DialectSQLite, cfg.Database.Dialect)
	assert.Equal(t, []string{"postgres://r1/crm", "postgres://r2/crm"}, cfg.Database.ReplicaURLs)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Redis.URL)
	assert.Equal(t, 5*time.Second, cfg.Billing.BalanceCacheTTL)
	assert.Equal(t, "growth", cfg.Billing.TrialPlan)
	assert.Equal(t, 16, cfg.Jobs.Workers)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)

	conn := cfg.Database.ConnectionConfig()
	assert.Equal(t, "file:crm.db", conn.PrimaryURL)
	assert.Len(t, conn.ReplicaURLs, 2)
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
		Database: DatabaseConfig{Dialect: storage.DialectPostgres, URL: "postgres://localhost/crm", MaxConns: 5},
		Billing:  BillingConfig{TrialPlan: "starter", InvitationTTL: time.Hour},
		Jobs:     JobsConfig{Workers: 1},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"missing health port", func(c *Config) { c.Server.HealthPort = "" }, "health port is required"},
		{"same ports", func(c *Config) { c.Server.HealthPort = "8080" }, "must be different"},
		{"unknown dialect", func(c *Config) { c.Database.Dialect = "mysql" }, "unsupported SQL dialect"},
		{"missing database url", func(c *Config) { c.Database.URL = "" }, "database URL is required"},
		{"no connections", func(c *Config) { c.Database.MaxConns = 0 }, "max conns"},
		{"empty trial plan", func(c *Config) { c.Billing.TrialPlan = "" }, "trial plan is required"},
		{"negative cache ttl", func(c *Config) { c.Billing.BalanceCacheTTL = -time.Second }, "must not be negative"},
		{"no invitation ttl", func(c *Config) { c.Billing.InvitationTTL = 0 }, "invitation TTL"},
		{"no workers", func(c *Config) { c.Jobs.Workers = 0 }, "job workers"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelServiceName = "crmcore"
		}, "endpoint is required"},
		{"otel without service name", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = "collector:4317"
		}, "service name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_NormalizesDialect(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Dialect = "postgresql"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, storage.DialectPostgres, cfg.Database.Dialect)
}
