package billing

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// FeatureKey names a quota-gated resource count in a plan
type FeatureKey string

const (
	FeatureMaxContacts  FeatureKey = "max_contacts"
	FeatureMaxCompanies FeatureKey = "max_companies"
	FeatureMaxDeals     FeatureKey = "max_deals"
	FeatureMaxMembers   FeatureKey = "max_members"
	FeatureMaxPipelines FeatureKey = "max_pipelines"
)

// FeatureKeys returns every known feature key in a stable order
func FeatureKeys() []FeatureKey {
	return []FeatureKey{
		FeatureMaxContacts,
		FeatureMaxCompanies,
		FeatureMaxDeals,
		FeatureMaxMembers,
		FeatureMaxPipelines,
	}
}

// Valid reports whether f is a known feature key
func (f FeatureKey) Valid() bool {
	for _, k := range FeatureKeys() {
		if k == f {
			return true
		}
	}
	return false
}

// Built-in plan keys
const (
	PlanStarter = "starter"
	PlanGrowth  = "growth"
	PlanScale   = "scale"
)

var (
	// ErrUnknownPlan is returned when a plan key is not in the catalog
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrInvalidCatalog is returned when a catalog definition is unusable
	ErrInvalidCatalog = errors.New("invalid plan catalog")
)

// Plan describes the limits and monthly credit allowance of a subscription plan
type Plan struct {
	Key            string               `json:"key" yaml:"key"`
	DisplayName    string               `json:"display_name" yaml:"display_name"`
	Rank           int                  `json:"rank" yaml:"rank"`
	Limits         map[FeatureKey]int64 `json:"limits" yaml:"limits"`
	MonthlyCredits int64                `json:"monthly_credits" yaml:"monthly_credits"`
}

// Limit returns the ceiling for feature. Features the plan does not configure have a
// ceiling of 0.
func (p Plan) Limit(feature FeatureKey) int64 {
	limit, ok := p.Limits[feature]
	if !ok || limit < 0 {
		return 0
	}
	return limit
}

// DefaultPlans returns the built-in plan definitions
func DefaultPlans() []Plan {
	return []Plan{
		{
			Key:         PlanStarter,
			DisplayName: "Starter",
			Rank:        1,
			Limits: map[FeatureKey]int64{
				FeatureMaxContacts:  500,
				FeatureMaxCompanies: 100,
				FeatureMaxDeals:     50,
				FeatureMaxMembers:   3,
				FeatureMaxPipelines: 1,
			},
			MonthlyCredits: 100,
		},
		{
			Key:         PlanGrowth,
			DisplayName: "Growth",
			Rank:        2,
			Limits: map[FeatureKey]int64{
				FeatureMaxContacts:  10000,
				FeatureMaxCompanies: 2500,
				FeatureMaxDeals:     1000,
				FeatureMaxMembers:   15,
				FeatureMaxPipelines: 5,
			},
			MonthlyCredits: 1000,
		},
		{
			Key:         PlanScale,
			DisplayName: "Scale",
			Rank:        3,
			Limits: map[FeatureKey]int64{
				FeatureMaxContacts:  250000,
				FeatureMaxCompanies: 50000,
				FeatureMaxDeals:     25000,
				FeatureMaxMembers:   100,
				FeatureMaxPipelines: 25,
			},
			MonthlyCredits: 10000,
		},
	}
}

// Catalog is the set of plans a tenant can be placed on. It is safe for concurrent use
// and can be swapped atomically by a CatalogWatcher.
type Catalog struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewCatalog builds a catalog from plans
func NewCatalog(plans []Plan) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Replace(plans); err != nil {
		return nil, err
	}
	return c, nil
}

// DefaultCatalog returns a catalog holding the built-in plans
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultPlans())
	if err != nil {
		panic(fmt.Sprintf("built-in plan catalog is invalid: %v", err))
	}
	return c
}

// Replace swaps the catalog contents. The catalog is left untouched when plans is invalid.
func (c *Catalog) Replace(plans []Plan) error {
	m, err := indexPlans(plans)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.plans = m
	c.mu.Unlock()
	return nil
}

func indexPlans(plans []Plan) (map[string]Plan, error) {
	if len(plans) == 0 {
		return nil, fmt.Errorf("%w: no plans defined", ErrInvalidCatalog)
	}
	m := make(map[string]Plan, len(plans))
	for _, p := range plans {
		if p.Key == "" {
			return nil, fmt.Errorf("%w: plan with empty key", ErrInvalidCatalog)
		}
		if _, dup := m[p.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate plan %q", ErrInvalidCatalog, p.Key)
		}
		if p.MonthlyCredits < 0 {
			return nil, fmt.Errorf("%w: plan %q has negative monthly credits", ErrInvalidCatalog, p.Key)
		}
		for feature, limit := range p.Limits {
			if !feature.Valid() {
				return nil, fmt.Errorf("%w: plan %q has unknown feature %q", ErrInvalidCatalog, p.Key, feature)
			}
			if limit < 0 {
				return nil, fmt.Errorf("%w: plan %q has negative limit for %s", ErrInvalidCatalog, p.Key, feature)
			}
		}
		m[p.Key] = p
	}
	return m, nil
}

// Get returns the plan with key
func (c *Catalog) Get(key string) (Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.plans[key]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, key)
	}
	return p, nil
}

// Plans returns all plans ordered by rank, lowest first
func (c *Catalog) Plans() []Plan {
	c.mu.RLock()
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// TopPlan returns the highest-ranked plan
func (c *Catalog) TopPlan() Plan {
	plans := c.Plans()
	if len(plans) == 0 {
		return Plan{}
	}
	return plans[len(plans)-1]
}

// ValidateTrialPlan checks that key exists and is not the top plan. Trials must get a
// bounded quota.
func (c *Catalog) ValidateTrialPlan(key string) error {
	if _, err := c.Get(key); err != nil {
		return err
	}
	plans := c.Plans()
	if len(plans) > 1 && plans[len(plans)-1].Key == key {
		return fmt.Errorf("%w: trial plan %q is the top plan", ErrInvalidCatalog, key)
	}
	return nil
}

// catalogFile is the on-disk YAML layout
type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// ParseCatalog decodes a YAML catalog definition
func ParseCatalog(data []byte) ([]Plan, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}
	if _, err := indexPlans(f.Plans); err != nil {
		return nil, err
	}
	return f.Plans, nil
}

// LoadCatalogFile reads a YAML catalog from path
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}
	plans, err := ParseCatalog(data)
	if err != nil {
		return nil, err
	}
	return NewCatalog(plans)
}
