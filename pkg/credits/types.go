package credits

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrWalletNotFound = errors.New("wallet not found")
	ErrInvalidAmount  = errors.New("credit amount must be positive")
	ErrLedgerMismatch = errors.New("ledger does not reconcile")
)

// TransactionType classifies a ledger row. Each type moves credits between the
// wallet's buckets in one fixed way.
type TransactionType string

const (
	// TransactionPlanGrant sets the plan bucket; Amount is the signed change
	TransactionPlanGrant TransactionType = "plan_grant"
	// TransactionTopUp adds purchased credits to the top-up bucket
	TransactionTopUp TransactionType = "top_up"
	// TransactionDebit spends credits, plan bucket first
	TransactionDebit TransactionType = "debit"
)

// Balance is a point-in-time view of a wallet
type Balance struct {
	TenantID     string `json:"tenant_id"`
	Available    int64  `json:"available"`
	PlanBalance  int64  `json:"plan_balance"`
	TopUpBalance int64  `json:"top_up_balance"`
}

func newBalance(tenantID string, plan, topUp int64) Balance {
	return Balance{TenantID: tenantID, Available: plan + topUp, PlanBalance: plan, TopUpBalance: topUp}
}

// Transaction is one append-only ledger row. The balance fields are the wallet's
// buckets after this row was applied.
type Transaction struct {
	ID                string                 `json:"id"`
	TenantID          string                 `json:"tenant_id"`
	Seq               int64                  `json:"seq"`
	Type              TransactionType        `json:"type"`
	Amount            int64                  `json:"amount"`
	PlanBalanceAfter  int64                  `json:"plan_balance_after"`
	TopUpBalanceAfter int64                  `json:"top_up_balance_after"`
	Description       string                 `json:"description"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	Reference         string                 `json:"reference,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

// Snapshot returns the balances recorded by the transaction
func (t Transaction) Snapshot() Snapshot {
	return Snapshot{Seq: t.Seq, PlanBalance: t.PlanBalanceAfter, TopUpBalance: t.TopUpBalanceAfter}
}

// Period is a calendar month
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// PeriodOf returns the UTC calendar month containing t
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: int(t.Month())}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// grantReference is the ledger reference that makes plan grants idempotent per period
func (p Period) grantReference() string {
	return "plan_grant:" + p.String()
}

// UsageRecord is a tenant's metered usage for one calendar month
type UsageRecord struct {
	TenantID     string    `json:"tenant_id"`
	Year         int       `json:"year"`
	Month        int       `json:"month"`
	ActionCount  int64     `json:"action_count"`
	CreditsSpent int64     `json:"credits_spent"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// Period returns the month the record covers
func (u UsageRecord) Period() Period {
	return Period{Year: u.Year, Month: u.Month}
}
