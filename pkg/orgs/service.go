package orgs

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/crmcore/pkg/auth"
	"github.com/platinummonkey/crmcore/pkg/billing"
	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/platinummonkey/crmcore/pkg/rbac"
	"github.com/platinummonkey/crmcore/pkg/storage"
)

const (
	defaultInvitationTTL = 7 * 24 * time.Hour
	defaultTrialPeriod   = 14 * 24 * time.Hour
)

// WalletProvisioner opens a tenant's credit wallet inside the tenant creation transaction
type WalletProvisioner interface {
	CreateWalletTx(ctx context.Context, tx *sql.Tx, tenantID string, planBalance int64) error
}

// TrialPlanSource supplies the plan new tenants start their trial on
type TrialPlanSource interface {
	TrialPlan() (billing.Plan, error)
}

// ServiceOptions configures a Service. Quotas is required; the rest have defaults.
type ServiceOptions struct {
	Checker       *rbac.Checker
	Quotas        *QuotaEnforcer
	Wallets       WalletProvisioner
	Plans         TrialPlanSource
	InvitationTTL time.Duration
	TrialPeriod   time.Duration
	Logger        *observability.Logger
	Now           func() time.Time
}

// Service manages tenants, memberships and invitations. Every member-management
// operation runs its permission and membership checks before any write.
type Service struct {
	store         *SQLStore
	checker       *rbac.Checker
	quotas        *QuotaEnforcer
	wallets       WalletProvisioner
	plans         TrialPlanSource
	invitationTTL time.Duration
	trialPeriod   time.Duration
	logger        *observability.Logger
	now           func() time.Time
}

// NewService creates a new Service
func NewService(store *SQLStore, opts ServiceOptions) *Service {
	s := &Service{
		store:         store,
		checker:       opts.Checker,
		quotas:        opts.Quotas,
		wallets:       opts.Wallets,
		plans:         opts.Plans,
		invitationTTL: opts.InvitationTTL,
		trialPeriod:   opts.TrialPeriod,
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if s.checker == nil {
		s.checker = rbac.DefaultChecker()
	}
	if s.invitationTTL <= 0 {
		s.invitationTTL = defaultInvitationTTL
	}
	if s.trialPeriod <= 0 {
		s.trialPeriod = defaultTrialPeriod
	}
	if s.logger == nil {
		s.logger = observability.NewLogger(observability.InfoLevel, os.Stdout)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Store returns the underlying tenant store
func (s *Service) Store() *SQLStore {
	return s.store
}

// Quotas returns the quota enforcer
func (s *Service) Quotas() *QuotaEnforcer {
	return s.quotas
}

// CreateTenant creates a tenant with ownerUserID as its owner, opens its trial window and
// its credit wallet. All three are written in one transaction.
func (s *Service) CreateTenant(ctx context.Context, req CreateTenantRequest, ownerUserID string) (*Tenant, *Membership, error) {
	if ownerUserID == "" {
		return nil, nil, auth.ErrMissingUserID
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, nil, ErrInvalidTenantFields
	}
	slug := req.Slug
	if slug == "" {
		slug = name
	}
	slug = generateSlug(slug)
	if slug == "" {
		return nil, nil, ErrInvalidTenantFields
	}

	var startingCredits int64
	if s.plans != nil {
		plan, err := s.plans.TrialPlan()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get trial plan: %w", err)
		}
		startingCredits = plan.MonthlyCredits
	}

	now := s.now().UTC()
	trialEnd := now.Add(s.trialPeriod)
	tenant := &Tenant{
		ID:          uuid.NewString(),
		Slug:        slug,
		Name:        name,
		TrialEndsAt: &trialEnd,
		CreatedAt:   now,
	}
	owner := &Membership{
		ID:         uuid.NewString(),
		TenantID:   tenant.ID,
		UserID:     ownerUserID,
		Role:       auth.RoleOwner,
		Status:     auth.MembershipAccepted,
		CreatedAt:  now,
		AcceptedAt: &now,
	}

	err := storage.RunInTx(ctx, s.store.db, nil, func(tx *sql.Tx) error {
		if err := s.store.insertTenant(ctx, tx, tenant); err != nil {
			return err
		}
		if err := s.store.insertMembership(ctx, tx, owner); err != nil {
			return err
		}
		if s.wallets != nil {
			if err := s.wallets.CreateWalletTx(ctx, tx, tenant.ID, startingCredits); err != nil {
				return fmt.Errorf("failed to create wallet: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	observability.FromContextOr(ctx, s.logger).WithFields(map[string]interface{}{
		"tenant_id": tenant.ID,
		"slug":      tenant.Slug,
		"owner":     ownerUserID,
	}).Info("Tenant created")
	return tenant, owner, nil
}

// GetTenant retrieves a tenant by id or slug
func (s *Service) GetTenant(ctx context.Context, ref string) (*Tenant, error) {
	return s.store.GetTenant(ctx, ref)
}

// ValidateMembership resolves userID's accepted membership in the tenant identified by
// tenantRef (id or slug) into an AuthContext. Missing, pending and unknown-role
// memberships all return ErrMembershipNotFound.
func (s *Service) ValidateMembership(ctx context.Context, userID, tenantRef string) (auth.AuthContext, error) {
	if userID == "" || tenantRef == "" {
		return auth.AuthContext{}, ErrMembershipNotFound
	}

	m, err := s.store.FindMembership(ctx, tenantRef, userID)
	if err != nil {
		return auth.AuthContext{}, err
	}
	if m.Status != auth.MembershipAccepted {
		return auth.AuthContext{}, ErrMembershipNotFound
	}

	ac, err := auth.NewAuthContext(m.UserID, m.TenantID, m.Role)
	if err != nil {
		s.logger.WithError(err).WithField("membership_id", m.ID).Warn("Stored membership is invalid")
		return auth.AuthContext{}, ErrMembershipNotFound
	}
	return ac, nil
}

// InviteMember creates a pending membership for req.Email. Re-inviting an address with
// an outstanding invitation refreshes its token, role and expiry.
func (s *Service) InviteMember(ctx context.Context, ac auth.AuthContext, req InviteMemberRequest) (*Membership, error) {
	if err := s.checker.CanInviteWithRole(ac, req.Role); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.invitationTTL)

	var m *Membership
	err = storage.RunInTx(ctx, s.store.db, nil, func(tx *sql.Tx) error {
		if err := s.store.lockTenant(ctx, tx, ac.TenantID()); err != nil {
			return err
		}
		counter := txCounter{store: s.store, q: tx}

		existing, err := s.store.findPendingByEmail(ctx, tx, ac.TenantID(), email)
		switch {
		case err == nil:
			// An expired invitation no longer holds a seat, so reviving it must fit the quota.
			if existing.ExpiredAt(now) {
				if err := s.quotas.requireQuota(ctx, ac.TenantID(), billing.FeatureMaxMembers, counter); err != nil {
					return err
				}
			}
			existing.Role = req.Role
			existing.InviteToken = token
			existing.InvitedBy = ac.UserID()
			existing.ExpiresAt = &expiresAt
			if err := s.store.refreshInvitation(ctx, tx, existing); err != nil {
				return err
			}
			m = existing
			return nil
		case !errors.Is(err, ErrInvitationNotFound):
			return err
		}

		if err := s.quotas.requireQuota(ctx, ac.TenantID(), billing.FeatureMaxMembers, counter); err != nil {
			return err
		}
		m = &Membership{
			ID:          uuid.NewString(),
			TenantID:    ac.TenantID(),
			Email:       email,
			Role:        req.Role,
			Status:      auth.MembershipPending,
			InviteToken: token,
			InvitedBy:   ac.UserID(),
			ExpiresAt:   &expiresAt,
			CreatedAt:   now,
		}
		return s.store.insertMembership(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}

	observability.FromContextOr(ctx, s.logger).WithFields(map[string]interface{}{
		"invitation_id": m.ID,
		"role":          m.Role,
	}).Info("Member invited")
	return m, nil
}

// AcceptInvitation turns the pending membership identified by token into userID's
// accepted membership. Token, status and expiry are checked under the row lock.
func (s *Service) AcceptInvitation(ctx context.Context, token, userID string) (*Membership, error) {
	if userID == "" {
		return nil, auth.ErrMissingUserID
	}
	if token == "" {
		return nil, ErrInvitationNotFound
	}

	var accepted *Membership
	err := storage.RunInTx(ctx, s.store.db, nil, func(tx *sql.Tx) error {
		m, err := s.store.getInvitationByToken(ctx, tx, token)
		if err != nil {
			return err
		}
		if !m.IsPending() {
			return ErrInvitationNotFound
		}
		now := s.now().UTC()
		if m.ExpiredAt(now) {
			return ErrInvitationExpired
		}
		if err := s.store.acceptInvitation(ctx, tx, m.ID, userID, now); err != nil {
			return err
		}

		m.UserID = userID
		m.Status = auth.MembershipAccepted
		m.AcceptedAt = &now
		m.InviteToken = ""
		m.ExpiresAt = nil
		accepted = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.FromContextOr(ctx, s.logger).WithFields(map[string]interface{}{
		"tenant_id": accepted.TenantID,
		"user_id":   userID,
		"role":      accepted.Role,
	}).Info("Invitation accepted")
	return accepted, nil
}

// UpdateMemberRole changes targetUserID's role in the actor's tenant
func (s *Service) UpdateMemberRole(ctx context.Context, ac auth.AuthContext, targetUserID string, role auth.Role) (*Membership, error) {
	var updated *Membership
	err := storage.RunInTx(ctx, s.store.db, nil, func(tx *sql.Tx) error {
		target, err := s.store.getMemberForUpdate(ctx, tx, ac.TenantID(), targetUserID)
		if err != nil {
			return err
		}
		if err := s.checker.CanChangeMemberRole(ac, rbac.MemberRef{UserID: target.UserID, Role: target.Role}, role); err != nil {
			return err
		}
		if err := s.store.updateRole(ctx, tx, ac.TenantID(), targetUserID, role); err != nil {
			return err
		}
		target.Role = role
		updated = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.FromContextOr(ctx, s.logger).WithFields(map[string]interface{}{
		"target_user_id": targetUserID,
		"role":           role,
	}).Info("Member role updated")
	return updated, nil
}

// RemoveMember removes targetUserID from the actor's tenant. Actors may always remove
// themselves unless they are the owner.
func (s *Service) RemoveMember(ctx context.Context, ac auth.AuthContext, targetUserID string) error {
	err := storage.RunInTx(ctx, s.store.db, nil, func(tx *sql.Tx) error {
		target, err := s.store.getMemberForUpdate(ctx, tx, ac.TenantID(), targetUserID)
		if err != nil {
			return err
		}
		if err := s.checker.CanRemoveMember(ac, rbac.MemberRef{UserID: target.UserID, Role: target.Role}); err != nil {
			return err
		}
		return s.store.deleteMember(ctx, tx, ac.TenantID(), targetUserID)
	})
	if err != nil {
		return err
	}

	observability.FromContextOr(ctx, s.logger).WithField("target_user_id", targetUserID).Info("Member removed")
	return nil
}

// RevokeInvitation deletes a pending invitation of the actor's tenant
func (s *Service) RevokeInvitation(ctx context.Context, ac auth.AuthContext, invitationID string) error {
	if err := s.checker.Authorize(ac, rbac.ResourceInvitation, rbac.ActionDelete); err != nil {
		return err
	}
	return s.store.DeleteInvitation(ctx, ac.TenantID(), invitationID)
}

// ListMembers returns the accepted members of the actor's tenant
func (s *Service) ListMembers(ctx context.Context, ac auth.AuthContext) ([]*Membership, error) {
	if err := s.checker.Authorize(ac, rbac.ResourceMember, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.listByStatus(ctx, ac.TenantID(), auth.MembershipAccepted)
}

// ListInvitations returns the pending invitations of the actor's tenant, expired ones
// included until the cleanup job removes them
func (s *Service) ListInvitations(ctx context.Context, ac auth.AuthContext) ([]*Membership, error) {
	if err := s.checker.Authorize(ac, rbac.ResourceInvitation, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.listByStatus(ctx, ac.TenantID(), auth.MembershipPending)
}

func (s *Service) listByStatus(ctx context.Context, tenantID string, status auth.MembershipStatus) ([]*Membership, error) {
	all, err := s.store.ListMembers(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*Membership, 0, len(all))
	for _, m := range all {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

// CleanupExpiredInvitations deletes every pending invitation that has expired
func (s *Service) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredInvitations(ctx, s.now())
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	return strings.ToLower(addr.Address), nil
}

// generateSlug lowercases name and keeps only [a-z0-9-]
func generateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	return strings.Trim(slug, "-")
}

// generateToken generates a random invitation token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
