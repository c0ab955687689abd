package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema migrations for dialect, in order
func GetMigrations(d Dialect) []Migration {
	ts := d.TimestampType()
	js := d.JSONType()
	r := strings.NewReplacer("{ts}", ts, "{json}", js)

	return []Migration{
		{
			Version:     1,
			Description: "Create tenants and memberships tables",
			SQL: r.Replace(`
				CREATE TABLE IF NOT EXISTS tenants (
					id TEXT PRIMARY KEY,
					slug TEXT NOT NULL UNIQUE,
					name TEXT NOT NULL,
					trial_ends_at {ts},
					created_at {ts} NOT NULL
				);

				CREATE TABLE IF NOT EXISTS memberships (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					user_id TEXT,
					email TEXT,
					role TEXT NOT NULL,
					status TEXT NOT NULL,
					invite_token TEXT UNIQUE,
					invited_by TEXT,
					expires_at {ts},
					created_at {ts} NOT NULL,
					accepted_at {ts},
					UNIQUE (tenant_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_memberships_user_id ON memberships(user_id);
				CREATE INDEX IF NOT EXISTS idx_memberships_status ON memberships(tenant_id, status);
			`),
		},
		{
			Version:     2,
			Description: "Create subscription and plan override tables",
			SQL: r.Replace(`
				CREATE TABLE IF NOT EXISTS subscriptions (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL UNIQUE REFERENCES tenants(id) ON DELETE CASCADE,
					plan TEXT NOT NULL,
					status TEXT NOT NULL,
					external_id TEXT,
					current_period_start {ts},
					current_period_end {ts},
					created_at {ts} NOT NULL,
					updated_at {ts} NOT NULL
				);

				CREATE TABLE IF NOT EXISTS plan_overrides (
					tenant_id TEXT PRIMARY KEY REFERENCES tenants(id) ON DELETE CASCADE,
					plan TEXT NOT NULL,
					reason TEXT,
					granted_by TEXT,
					expires_at {ts},
					created_at {ts} NOT NULL
				);
			`),
		},
		{
			Version:     3,
			Description: "Create wallet, ledger and usage tables",
			SQL: r.Replace(`
				CREATE TABLE IF NOT EXISTS wallets (
					tenant_id TEXT PRIMARY KEY REFERENCES tenants(id) ON DELETE CASCADE,
					plan_balance BIGINT NOT NULL DEFAULT 0 CHECK (plan_balance >= 0),
					top_up_balance BIGINT NOT NULL DEFAULT 0 CHECK (top_up_balance >= 0),
					created_at {ts} NOT NULL,
					updated_at {ts} NOT NULL
				);

				CREATE TABLE IF NOT EXISTS wallet_transactions (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES wallets(tenant_id),
					seq BIGINT NOT NULL,
					type TEXT NOT NULL,
					amount BIGINT NOT NULL,
					plan_balance_after BIGINT NOT NULL,
					top_up_balance_after BIGINT NOT NULL,
					description TEXT NOT NULL,
					metadata {json},
					reference TEXT,
					created_at {ts} NOT NULL,
					UNIQUE (tenant_id, seq),
					UNIQUE (tenant_id, reference)
				);

				CREATE TABLE IF NOT EXISTS usage_records (
					tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					year INTEGER NOT NULL,
					month INTEGER NOT NULL,
					action_count BIGINT NOT NULL DEFAULT 0,
					credits_spent BIGINT NOT NULL DEFAULT 0,
					updated_at {ts} NOT NULL,
					PRIMARY KEY (tenant_id, year, month)
				);
			`),
		},
		{
			Version:     4,
			Description: "Create quota-gated CRM record tables",
			SQL: r.Replace(`
				CREATE TABLE IF NOT EXISTS contacts (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					assigned_to TEXT,
					created_at {ts} NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_contacts_tenant ON contacts(tenant_id);

				CREATE TABLE IF NOT EXISTS companies (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					assigned_to TEXT,
					created_at {ts} NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_companies_tenant ON companies(tenant_id);

				CREATE TABLE IF NOT EXISTS deals (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					assigned_to TEXT,
					created_at {ts} NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_deals_tenant ON deals(tenant_id);

				CREATE TABLE IF NOT EXISTS pipelines (
					id TEXT PRIMARY KEY,
					tenant_id TEXT NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
					created_at {ts} NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_pipelines_tenant ON pipelines(tenant_id);
			`),
		},
	}
}

// Migrate applies pending migrations. Each migration runs in its own transaction and is
// recorded in schema_migrations.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at %s NOT NULL
		)
	`, d.TimestampType())
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range GetMigrations(d) {
		if applied[m.Version] {
			continue
		}
		err := RunInTx(ctx, db, nil, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, description, applied_at) VALUES ($1, $2, CURRENT_TIMESTAMP)",
				m.Version, m.Description,
			); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}
