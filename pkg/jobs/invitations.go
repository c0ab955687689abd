package jobs

import (
	"context"
	"time"

	"github.com/platinummonkey/crmcore/pkg/observability"
)

// JobInvitationCleanup is the job name used in logs and metrics
const JobInvitationCleanup = "invitation_cleanup"

// InvitationPurger deletes pending invitations past their expiry
type InvitationPurger interface {
	CleanupExpiredInvitations(ctx context.Context) (int64, error)
}

// InvitationCleaner removes expired invitations
type InvitationCleaner struct {
	purger  InvitationPurger
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewInvitationCleaner creates a new invitation cleaner
func NewInvitationCleaner(purger InvitationPurger, metrics *observability.Metrics, logger *observability.Logger) *InvitationCleaner {
	return &InvitationCleaner{purger: purger, metrics: metrics, logger: logger}
}

// Run deletes expired invitations and returns how many were removed
func (c *InvitationCleaner) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := c.purger.CleanupExpiredInvitations(ctx)
	c.metrics.RecordJobRun(JobInvitationCleanup, err, time.Since(start))
	if err != nil {
		c.logger.WithError(err).Error("Invitation cleanup failed")
		return 0, err
	}
	if n > 0 {
		c.logger.WithField("deleted", n).Info("Expired invitations deleted")
	}
	return n, nil
}
