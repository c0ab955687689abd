package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresStore implements Store using PostgreSQL. The queries are portable to SQLite,
// which the tests run them against.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetOverride retrieves the plan override for a tenant, nil when there is none
func (s *PostgresStore) GetOverride(ctx context.Context, tenantID string) (*PlanOverride, error) {
	query := `
		SELECT tenant_id, plan, reason, granted_by, expires_at, created_at
		FROM plan_overrides
		WHERE tenant_id = $1
	`
	o := &PlanOverride{}
	var reason, grantedBy sql.NullString
	var expiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&o.TenantID, &o.PlanKey, &reason, &grantedBy, &expiresAt, &o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan override: %w", err)
	}
	o.Reason = reason.String
	o.GrantedBy = grantedBy.String
	if expiresAt.Valid {
		o.ExpiresAt = &expiresAt.Time
	}
	return o, nil
}

// SetOverride grants an administrative plan override, replacing any existing one
func (s *PostgresStore) SetOverride(ctx context.Context, o *PlanOverride) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO plan_overrides (tenant_id, plan, reason, granted_by, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE
		SET plan = EXCLUDED.plan, reason = EXCLUDED.reason, granted_by = EXCLUDED.granted_by,
		    expires_at = EXCLUDED.expires_at, created_at = EXCLUDED.created_at
	`
	_, err := s.db.ExecContext(ctx, query, o.TenantID, o.PlanKey, nullString(o.Reason),
		nullString(o.GrantedBy), nullTime(o.ExpiresAt), o.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to set plan override: %w", err)
	}
	return nil
}

// ClearOverride removes a tenant's plan override
func (s *PostgresStore) ClearOverride(ctx context.Context, tenantID string) error {
	query := `DELETE FROM plan_overrides WHERE tenant_id = $1`
	if _, err := s.db.ExecContext(ctx, query, tenantID); err != nil {
		return fmt.Errorf("failed to clear plan override: %w", err)
	}
	return nil
}

// GetSubscription retrieves the subscription for a tenant, nil when there is none
func (s *PostgresStore) GetSubscription(ctx context.Context, tenantID string) (*Subscription, error) {
	query := `
		SELECT id, tenant_id, plan, status, external_id,
		       current_period_start, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE tenant_id = $1
	`
	sub := &Subscription{}
	var externalID sql.NullString
	var periodStart, periodEnd sql.NullTime
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&sub.ID, &sub.TenantID, &sub.PlanKey, &sub.Status, &externalID,
		&periodStart, &periodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	sub.ExternalID = externalID.String
	if periodStart.Valid {
		sub.CurrentPeriodStart = &periodStart.Time
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEnd = &periodEnd.Time
	}
	return sub, nil
}

// UpsertSubscription creates or replaces the tenant's subscription record. It is
// driven by the payment provider's webhook handler, which lives outside this module.
func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	now := time.Now().UTC()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	query := `
		INSERT INTO subscriptions (id, tenant_id, plan, status, external_id,
		                           current_period_start, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id) DO UPDATE
		SET plan = EXCLUDED.plan, status = EXCLUDED.status, external_id = EXCLUDED.external_id,
		    current_period_start = EXCLUDED.current_period_start,
		    current_period_end = EXCLUDED.current_period_end,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, sub.ID, sub.TenantID, sub.PlanKey, sub.Status,
		nullString(sub.ExternalID), nullTime(sub.CurrentPeriodStart), nullTime(sub.CurrentPeriodEnd),
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// GetTrialEnd returns the end of the tenant's trial window, nil when it never had one
func (s *PostgresStore) GetTrialEnd(ctx context.Context, tenantID string) (*time.Time, error) {
	query := `SELECT trial_ends_at FROM tenants WHERE id = $1`
	var trialEnd sql.NullTime
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(&trialEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trial end: %w", err)
	}
	if !trialEnd.Valid {
		return nil, nil
	}
	return &trialEnd.Time, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
