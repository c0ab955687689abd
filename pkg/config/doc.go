// Package config provides application configuration management from environment variables.
//
// # Overview
//
// LoadConfig reads CRMCORE_* environment variables, applies defaults and validates
// the result.
//
// # Configuration Structure
//
// Server settings:
//
//	CRMCORE_HOST="0.0.0.0"
//	CRMCORE_PORT="8080"
//	CRMCORE_HEALTH_PORT="9090"
//	CRMCORE_READ_TIMEOUT="15s"
//	CRMCORE_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	CRMCORE_DB_DIALECT="postgres"  # postgres or sqlite3
//	CRMCORE_POSTGRES_URL="postgres://localhost/crm?sslmode=disable"
//	CRMCORE_POSTGRES_REPLICA_URLS="postgres://replica1/crm,postgres://replica2/crm"
//	CRMCORE_POSTGRES_MAX_CONNS="20"
//	CRMCORE_AUTO_MIGRATE="true"
//
// Redis (optional, only used by the balance cache):
//
//	CRMCORE_REDIS_URL="redis://localhost:6379/0"
//	CRMCORE_REDIS_POOL_SIZE="10"
//
// Billing settings:
//
//	CRMCORE_PLAN_CATALOG="/etc/crmcore/plans.yaml"  # built-in plans when empty
//	CRMCORE_TRIAL_PLAN="starter"
//	CRMCORE_BALANCE_CACHE_TTL="0s"                  # 0 disables the balance cache
//	CRMCORE_INVITATION_TTL="168h"
//
// Jobs:
//
//	CRMCORE_GRANT_SCHEDULE="0 0 1 * *"
//	CRMCORE_INVITE_CLEANUP_SCHEDULE="@hourly"
//	CRMCORE_JOB_WORKERS="4"
//
// Observability:
//
//	CRMCORE_LOG_LEVEL="info"
//	CRMCORE_METRICS_ENABLED="true"
//	CRMCORE_OTEL_ENABLED="false"
//	CRMCORE_OTEL_ENDPOINT="localhost:4317"
//
// # Validation
//
// Validate rejects a missing or shared port, an unknown dialect, a missing database URL,
// an empty trial plan and fewer than one job worker.
package config
