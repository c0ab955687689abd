package policy

import (
	"github.com/platinummonkey/crmcore/pkg/billing"
	"github.com/platinummonkey/crmcore/pkg/rbac"
)

var quotaFeatures = map[rbac.Resource]billing.FeatureKey{
	rbac.ResourceContact:    billing.FeatureMaxContacts,
	rbac.ResourceCompany:    billing.FeatureMaxCompanies,
	rbac.ResourceDeal:       billing.FeatureMaxDeals,
	rbac.ResourcePipeline:   billing.FeatureMaxPipelines,
	rbac.ResourceInvitation: billing.FeatureMaxMembers,
}

// QuotaFeature returns the plan feature that caps how many of resource a tenant may
// hold. Tasks and notes are not quota-gated. Members are added through invitations, so
// the member ceiling is checked on invitation:create.
func QuotaFeature(resource rbac.Resource) (billing.FeatureKey, bool) {
	feature, ok := quotaFeatures[resource]
	return feature, ok
}
