package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/platinummonkey/crmcore/pkg/storage"
	"github.com/platinummonkey/crmcore/pkg/storage/postgres"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         postgres.RedisConfig
	Billing       BillingConfig
	Jobs          JobsConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds the relational store settings
type DatabaseConfig struct {
	Dialect     storage.Dialect
	URL         string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	MaxLifetime time.Duration
	Timeout     time.Duration
	// AutoMigrate applies pending schema migrations at startup
	AutoMigrate bool
}

// ConnectionConfig converts the settings for postgres.NewConnectionManager
func (d DatabaseConfig) ConnectionConfig() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		PrimaryURL:  d.URL,
		ReplicaURLs: d.ReplicaURLs,
		MaxConns:    d.MaxConns,
		MinConns:    d.MinConns,
		Timeout:     d.Timeout,
		MaxLifetime: d.MaxLifetime,
	}
}

// BillingConfig holds plan catalog and credit settings
type BillingConfig struct {
	// PlanCatalogPath is a YAML catalog; empty means the built-in plans
	PlanCatalogPath string
	// WatchCatalog reloads the catalog file when it changes
	WatchCatalog bool
	TrialPlan    string
	// BalanceCacheTTL of 0 disables the balance read cache
	BalanceCacheTTL time.Duration
	BalanceL1Size   int
	// InvitationTTL is how long a pending invitation can be accepted
	InvitationTTL time.Duration
	// TrialPeriod is the trial window given to new tenants
	TrialPeriod time.Duration
}

// JobsConfig holds background job schedules (standard 5-field cron)
type JobsConfig struct {
	GrantSchedule         string
	InviteCleanupSchedule string
	Workers               int
	TaskTimeout           time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Billing:       loadBillingConfig(),
		Jobs:          loadJobsConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("CRMCORE_HOST", "0.0.0.0"),
		Port:            getEnv("CRMCORE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("CRMCORE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("CRMCORE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("CRMCORE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("CRMCORE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("CRMCORE_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Dialect:     storage.Dialect(getEnv("CRMCORE_DB_DIALECT", string(storage.DialectPostgres))),
		URL:         getEnv("CRMCORE_POSTGRES_URL", ""),
		ReplicaURLs: postgres.ParseReplicaURLs(getEnv("CRMCORE_POSTGRES_REPLICA_URLS", "")),
		MaxConns:    getEnvInt("CRMCORE_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("CRMCORE_POSTGRES_MIN_CONNS", 2),
		MaxLifetime: getEnvDuration("CRMCORE_POSTGRES_CONN_LIFETIME", 30*time.Minute),
		Timeout:     getEnvDuration("CRMCORE_POSTGRES_TIMEOUT", 5*time.Second),
		AutoMigrate: getEnvBool("CRMCORE_AUTO_MIGRATE", true),
	}
}

func loadRedisConfig() postgres.RedisConfig {
	return postgres.RedisConfig{
		URL:        getEnv("CRMCORE_REDIS_URL", ""),
		Password:   getEnv("CRMCORE_REDIS_PASSWORD", ""),
		DB:         getEnvInt("CRMCORE_REDIS_DB", 0),
		MaxRetries: getEnvInt("CRMCORE_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("CRMCORE_REDIS_POOL_SIZE", 10),
	}
}

func loadBillingConfig() BillingConfig {
	return BillingConfig{
		PlanCatalogPath: getEnv("CRMCORE_PLAN_CATALOG", ""),
		WatchCatalog:    getEnvBool("CRMCORE_PLAN_CATALOG_WATCH", true),
		TrialPlan:       getEnv("CRMCORE_TRIAL_PLAN", "starter"),
		BalanceCacheTTL: getEnvDuration("CRMCORE_BALANCE_CACHE_TTL", 0),
		BalanceL1Size:   getEnvInt("CRMCORE_BALANCE_L1_SIZE", 1024),
		InvitationTTL:   getEnvDuration("CRMCORE_INVITATION_TTL", 7*24*time.Hour),
		TrialPeriod:     getEnvDuration("CRMCORE_TRIAL_PERIOD", 14*24*time.Hour),
	}
}

func loadJobsConfig() JobsConfig {
	return JobsConfig{
		GrantSchedule:         getEnv("CRMCORE_GRANT_SCHEDULE", "0 0 1 * *"),
		InviteCleanupSchedule: getEnv("CRMCORE_INVITE_CLEANUP_SCHEDULE", "@hourly"),
		Workers:               getEnvInt("CRMCORE_JOB_WORKERS", 4),
		TaskTimeout:           getEnvDuration("CRMCORE_JOB_TASK_TIMEOUT", 30*time.Second),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("CRMCORE_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("CRMCORE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("CRMCORE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("CRMCORE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("CRMCORE_OTEL_SERVICE_NAME", "crmcore"),
		OTelServiceVersion: getEnv("CRMCORE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("CRMCORE_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	dialect, err := storage.ParseDialect(string(c.Database.Dialect))
	if err != nil {
		return err
	}
	c.Database.Dialect = dialect
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required (CRMCORE_POSTGRES_URL)")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database max conns must be at least 1")
	}

	if c.Billing.TrialPlan == "" {
		return fmt.Errorf("trial plan is required")
	}
	if c.Billing.BalanceCacheTTL < 0 {
		return fmt.Errorf("balance cache TTL must not be negative")
	}
	if c.Billing.InvitationTTL <= 0 {
		return fmt.Errorf("invitation TTL must be positive")
	}

	if c.Jobs.Workers < 1 {
		return fmt.Errorf("job workers must be at least 1")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// Addr returns the API listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the health and metrics listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
