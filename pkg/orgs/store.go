package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/crmcore/pkg/auth"
	"github.com/platinummonkey/crmcore/pkg/billing"
	"github.com/platinummonkey/crmcore/pkg/storage"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// featureTables maps record-count quota features to their tenant-scoped table
var featureTables = map[billing.FeatureKey]string{
	billing.FeatureMaxContacts:  "contacts",
	billing.FeatureMaxCompanies: "companies",
	billing.FeatureMaxDeals:     "deals",
	billing.FeatureMaxPipelines: "pipelines",
}

const membershipColumns = `
	m.id, m.tenant_id, m.user_id, m.email, m.role, m.status, m.invite_token,
	m.invited_by, m.expires_at, m.created_at, m.accepted_at`

// SQLStore persists tenants and memberships. Queries are written for Postgres and
// SQLite alike; the dialect only adds row locks.
type SQLStore struct {
	db      *sql.DB
	dialect storage.Dialect
	now     func() time.Time
}

// NewSQLStore creates a new SQLStore
func NewSQLStore(db *sql.DB, dialect storage.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// DB returns the underlying database handle
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) insertTenant(ctx context.Context, q querier, t *Tenant) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO tenants (id, slug, name, trial_ends_at, created_at) VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Slug, t.Name, nullTime(t.TrialEndsAt), t.CreatedAt,
	)
	if storage.IsUniqueViolation(err) {
		return ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

func (s *SQLStore) insertMembership(ctx context.Context, q querier, m *Membership) error {
	query := `
		INSERT INTO memberships (id, tenant_id, user_id, email, role, status, invite_token,
		                         invited_by, expires_at, created_at, accepted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := q.ExecContext(ctx, query,
		m.ID, m.TenantID, nullString(m.UserID), nullString(m.Email), string(m.Role), string(m.Status),
		nullString(m.InviteToken), nullString(m.InvitedBy), nullTime(m.ExpiresAt), m.CreatedAt,
		nullTime(m.AcceptedAt),
	)
	if storage.IsUniqueViolation(err) {
		return ErrAlreadyMember
	}
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// GetTenant retrieves a tenant by id or slug
func (s *SQLStore) GetTenant(ctx context.Context, ref string) (*Tenant, error) {
	query := `
		SELECT id, slug, name, trial_ends_at, created_at
		FROM tenants
		WHERE id = $1 OR slug = $1
	`
	t := &Tenant{}
	var trialEnds sql.NullTime
	err := s.db.QueryRowContext(ctx, query, ref).Scan(&t.ID, &t.Slug, &t.Name, &trialEnds, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	if trialEnds.Valid {
		t.TrialEndsAt = &trialEnds.Time
	}
	return t, nil
}

// ListTenantIDs returns the ids of every tenant
func (s *SQLStore) ListTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tenants ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindMembership retrieves userID's membership in the tenant identified by id or slug,
// whatever its status
func (s *SQLStore) FindMembership(ctx context.Context, tenantRef, userID string) (*Membership, error) {
	query := `
		SELECT` + membershipColumns + `
		FROM memberships m
		JOIN tenants t ON t.id = m.tenant_id
		WHERE (t.id = $1 OR t.slug = $1) AND m.user_id = $2
	`
	return scanMembership(s.db.QueryRowContext(ctx, query, tenantRef, userID))
}

func (s *SQLStore) getMemberForUpdate(ctx context.Context, q querier, tenantID, userID string) (*Membership, error) {
	query := `
		SELECT` + membershipColumns + `
		FROM memberships m
		WHERE m.tenant_id = $1 AND m.user_id = $2 AND m.status = $3` + s.dialect.ForUpdate()
	return scanMembership(q.QueryRowContext(ctx, query, tenantID, userID, string(auth.MembershipAccepted)))
}

func (s *SQLStore) getInvitationByToken(ctx context.Context, q querier, token string) (*Membership, error) {
	query := `
		SELECT` + membershipColumns + `
		FROM memberships m
		WHERE m.invite_token = $1` + s.dialect.ForUpdate()
	m, err := scanMembership(q.QueryRowContext(ctx, query, token))
	if errors.Is(err, ErrMembershipNotFound) {
		return nil, ErrInvitationNotFound
	}
	return m, err
}

// FindPendingByEmail returns the outstanding invitation for email in a tenant
func (s *SQLStore) FindPendingByEmail(ctx context.Context, tenantID, email string) (*Membership, error) {
	return s.findPendingByEmail(ctx, s.db, tenantID, email)
}

func (s *SQLStore) findPendingByEmail(ctx context.Context, q querier, tenantID, email string) (*Membership, error) {
	query := `
		SELECT` + membershipColumns + `
		FROM memberships m
		WHERE m.tenant_id = $1 AND m.email = $2 AND m.status = $3
	`
	m, err := scanMembership(q.QueryRowContext(ctx, query, tenantID, email, string(auth.MembershipPending)))
	if errors.Is(err, ErrMembershipNotFound) {
		return nil, ErrInvitationNotFound
	}
	return m, err
}

// ListMembers returns every membership of a tenant, accepted and pending
func (s *SQLStore) ListMembers(ctx context.Context, tenantID string) ([]*Membership, error) {
	query := `
		SELECT` + membershipColumns + `
		FROM memberships m
		WHERE m.tenant_id = $1
		ORDER BY m.created_at ASC, m.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *SQLStore) refreshInvitation(ctx context.Context, q querier, m *Membership) error {
	_, err := q.ExecContext(ctx,
		`UPDATE memberships SET role = $1, invite_token = $2, invited_by = $3, expires_at = $4 WHERE id = $5`,
		string(m.Role), m.InviteToken, nullString(m.InvitedBy), nullTime(m.ExpiresAt), m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to refresh invitation: %w", err)
	}
	return nil
}

func (s *SQLStore) acceptInvitation(ctx context.Context, q querier, id, userID string, at time.Time) error {
	_, err := q.ExecContext(ctx, `
		UPDATE memberships
		SET user_id = $1, status = $2, accepted_at = $3, invite_token = NULL, expires_at = NULL
		WHERE id = $4
	`, userID, string(auth.MembershipAccepted), at, id)
	if storage.IsUniqueViolation(err) {
		return ErrAlreadyMember
	}
	if err != nil {
		return fmt.Errorf("failed to accept invitation: %w", err)
	}
	return nil
}

func (s *SQLStore) updateRole(ctx context.Context, q querier, tenantID, userID string, role auth.Role) error {
	res, err := q.ExecContext(ctx,
		`UPDATE memberships SET role = $1 WHERE tenant_id = $2 AND user_id = $3`,
		string(role), tenantID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return expectOneRow(res, ErrMembershipNotFound)
}

func (s *SQLStore) deleteMember(ctx context.Context, q querier, tenantID, userID string) error {
	res, err := q.ExecContext(ctx,
		`DELETE FROM memberships WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return expectOneRow(res, ErrMembershipNotFound)
}

// DeleteInvitation revokes a pending invitation of a tenant
func (s *SQLStore) DeleteInvitation(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE tenant_id = $1 AND id = $2 AND status = $3`,
		tenantID, id, string(auth.MembershipPending),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	return expectOneRow(res, ErrInvitationNotFound)
}

// DeleteExpiredInvitations removes pending invitations whose expiry is before now
func (s *SQLStore) DeleteExpiredInvitations(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE status = $1 AND expires_at IS NOT NULL AND expires_at <= $2`,
		string(auth.MembershipPending), now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired invitations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// lockTenant takes the tenant row lock that serializes quota-checked creations. On
// SQLite the immediate transaction already holds the database write lock.
func (s *SQLStore) lockTenant(ctx context.Context, q querier, tenantID string) error {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM tenants WHERE id = $1`+s.dialect.ForUpdate(), tenantID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTenantNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock tenant: %w", err)
	}
	return nil
}

// CountResources returns the live number of resources counted against feature.
// Members count accepted memberships plus invitations that can still be accepted.
func (s *SQLStore) CountResources(ctx context.Context, tenantID string, feature billing.FeatureKey) (int64, error) {
	return s.countResources(ctx, s.db, tenantID, feature)
}

// txCounter counts through an open transaction
type txCounter struct {
	store *SQLStore
	q     querier
}

func (c txCounter) CountResources(ctx context.Context, tenantID string, feature billing.FeatureKey) (int64, error) {
	return c.store.countResources(ctx, c.q, tenantID, feature)
}

func (s *SQLStore) countResources(ctx context.Context, q querier, tenantID string, feature billing.FeatureKey) (int64, error) {
	var (
		query string
		args  []any
	)
	if feature == billing.FeatureMaxMembers {
		query = `
			SELECT COUNT(*) FROM memberships
			WHERE tenant_id = $1
			  AND (status = $2 OR (status = $3 AND (expires_at IS NULL OR expires_at > $4)))
		`
		args = []any{tenantID, string(auth.MembershipAccepted), string(auth.MembershipPending), s.now().UTC()}
	} else {
		table, ok := featureTables[feature]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrUnknownFeature, feature)
		}
		query = `SELECT COUNT(*) FROM ` + table + ` WHERE tenant_id = $1`
		args = []any{tenantID}
	}

	var count int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", feature, err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMembership(row rowScanner) (*Membership, error) {
	m := &Membership{}
	var (
		userID, email, token, invitedBy sql.NullString
		role, status                    string
		expiresAt, acceptedAt           sql.NullTime
	)
	err := row.Scan(&m.ID, &m.TenantID, &userID, &email, &role, &status, &token,
		&invitedBy, &expiresAt, &m.CreatedAt, &acceptedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMembershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan membership: %w", err)
	}
	m.UserID = userID.String
	m.Email = email.String
	m.Role = auth.Role(role)
	m.Status = auth.MembershipStatus(status)
	m.InviteToken = token.String
	m.InvitedBy = invitedBy.String
	if expiresAt.Valid {
		m.ExpiresAt = &expiresAt.Time
	}
	if acceptedAt.Valid {
		m.AcceptedAt = &acceptedAt.Time
	}
	return m, nil
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
