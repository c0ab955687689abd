package credits

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/platinummonkey/crmcore/pkg/storage"
)

// errInsufficient aborts a debit transaction; DebitCredits reports it as false
var errInsufficient = errors.New("insufficient credits")

// initialGrantReference marks the plan grant written when a wallet is opened
const initialGrantReference = "plan_grant:initial"

// Option configures a Service
type Option func(*Service)

// WithCache enables the balance read cache
func WithCache(cache BalanceCache) Option {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithLogger sets the service logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReader routes ledger and usage history reads through reader, typically a
// replica picker. Balance reads and writes always use the primary.
func WithReader(reader func() *sql.DB) Option {
	return func(s *Service) {
		if reader != nil {
			s.reader = reader
		}
	}
}

// PlanChecker reports whether a plan currently applies to a tenant
type PlanChecker interface {
	HasActivePlan(ctx context.Context, tenantID string) (bool, error)
}

// WithPlanChecker gates spending on the tenant having a plan. Without one, balances
// report 0 available and debits are refused.
func WithPlanChecker(plans PlanChecker) Option {
	return func(s *Service) {
		s.plans = plans
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service implements the credit wallet, its ledger and the monthly usage rollup.
//
// Every balance change locks the wallet row, updates it, and appends exactly one ledger
// row in the same transaction. Ledger rows are never updated or deleted.
type Service struct {
	db      *sql.DB
	reader  func() *sql.DB
	dialect storage.Dialect
	cache   BalanceCache
	plans   PlanChecker
	logger  *observability.Logger
	now     func() time.Time
}

// NewService creates a new credit service
func NewService(db *sql.DB, dialect storage.Dialect, opts ...Option) *Service {
	s := &Service{
		db:      db,
		dialect: dialect,
		cache:   noopCache{},
		logger:  observability.NewLogger(observability.InfoLevel, os.Stdout),
		now:     time.Now,
	}
	s.reader = func() *sql.DB { return s.db }
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateWallet opens a wallet for tenantID with planBalance plan credits. Opening an
// existing wallet is a no-op.
func (s *Service) CreateWallet(ctx context.Context, tenantID string, planBalance int64) error {
	return storage.RunInTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		return s.CreateWalletTx(ctx, tx, tenantID, planBalance)
	})
}

// CreateWalletTx is CreateWallet inside a caller-owned transaction
func (s *Service) CreateWalletTx(ctx context.Context, tx *sql.Tx, tenantID string, planBalance int64) error {
	if planBalance < 0 {
		return ErrInvalidAmount
	}
	now := s.now().UTC()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (tenant_id, plan_balance, top_up_balance, created_at, updated_at)
		VALUES ($1, 0, 0, $2, $2)
		ON CONFLICT (tenant_id) DO NOTHING
	`, tenantID, now)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return nil
	}

	if planBalance == 0 {
		return nil
	}
	_, err = s.applyTx(ctx, tx, tenantID, Snapshot{}, pendingTx{
		typ:         TransactionPlanGrant,
		amount:      planBalance,
		description: "Initial plan credits",
		reference:   initialGrantReference,
	})
	return err
}

// CheckBalance returns the tenant's current balance. It is read-only and may be served
// from the balance cache.
func (s *Service) CheckBalance(ctx context.Context, tenantID string) (Balance, error) {
	b, ok := s.cache.Get(ctx, tenantID)
	if !ok {
		snap, err := s.loadWallet(ctx, s.db, tenantID, false)
		if err != nil {
			return Balance{}, err
		}
		b = newBalance(tenantID, snap.PlanBalance, snap.TopUpBalance)
		s.cache.Set(ctx, b)
	}

	active, err := s.hasActivePlan(ctx, tenantID)
	if err != nil {
		return Balance{}, err
	}
	if !active {
		b.Available = 0
	}
	return b, nil
}

// hasActivePlan is true when no plan checker is configured
func (s *Service) hasActivePlan(ctx context.Context, tenantID string) (bool, error) {
	if s.plans == nil {
		return true, nil
	}
	active, err := s.plans.HasActivePlan(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve plan: %w", err)
	}
	return active, nil
}

// DebitCredits spends amount credits, plan credits first and top-up credits for the
// remainder, records a debit ledger row and adds to the month's usage, all in one
// transaction. It returns false with a nil error when the balance is insufficient;
// nothing is written in that case.
func (s *Service) DebitCredits(ctx context.Context, tenantID string, amount int64, description string, metadata map[string]interface{}) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}

	active, err := s.hasActivePlan(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if !active {
		observability.FromContextOr(ctx, s.logger).WithField("tenant_id", tenantID).
			Debug("Debit refused: no active plan")
		return false, nil
	}

	var debited *Transaction
	err = storage.RunInTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		prev, err := s.loadWallet(ctx, tx, tenantID, true)
		if err != nil {
			return err
		}
		if prev.Available() < amount {
			return errInsufficient
		}

		debited, err = s.applyTx(ctx, tx, tenantID, prev, pendingTx{
			typ:         TransactionDebit,
			amount:      -amount,
			description: description,
			metadata:    metadata,
		})
		if err != nil {
			return err
		}
		return s.recordUsage(ctx, tx, tenantID, amount, debited.CreatedAt)
	})
	if errors.Is(err, errInsufficient) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.cache.Invalidate(context.WithoutCancel(ctx), tenantID)
	observability.FromContextOr(ctx, s.logger).WithFields(map[string]interface{}{
		"tenant_id":      tenantID,
		"amount":         amount,
		"seq":            debited.Seq,
		"plan_balance":   debited.PlanBalanceAfter,
		"top_up_balance": debited.TopUpBalanceAfter,
	}).Debug("Credits debited")
	return true, nil
}

// TopUp adds purchased credits to the tenant's top-up bucket
func (s *Service) TopUp(ctx context.Context, tenantID string, amount int64, description string, metadata map[string]interface{}) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var topUp *Transaction
	err := storage.RunInTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		prev, err := s.loadWallet(ctx, tx, tenantID, true)
		if err != nil {
			return err
		}
		topUp, err = s.applyTx(ctx, tx, tenantID, prev, pendingTx{
			typ:         TransactionTopUp,
			amount:      amount,
			description: description,
			metadata:    metadata,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(context.WithoutCancel(ctx), tenantID)
	observability.FromContextOr(ctx, s.logger).WithFields(map[string]interface{}{
		"tenant_id": tenantID,
		"amount":    amount,
	}).Info("Credits topped up")
	return topUp, nil
}

// GrantPlanCredits resets the tenant's plan bucket to amount for period. Unused plan
// credits from the previous period expire; top-up credits are untouched. A period is
// granted at most once: repeated calls return (nil, false, nil).
func (s *Service) GrantPlanCredits(ctx context.Context, tenantID string, amount int64, period Period) (*Transaction, bool, error) {
	if amount < 0 {
		return nil, false, ErrInvalidAmount
	}
	reference := period.grantReference()

	var grant *Transaction
	err := storage.RunInTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		prev, err := s.loadWallet(ctx, tx, tenantID, true)
		if err != nil {
			return err
		}

		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT 1 FROM wallet_transactions WHERE tenant_id = $1 AND reference = $2`,
			tenantID, reference,
		).Scan(&exists)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check grant reference: %w", err)
		}

		grant, err = s.applyTx(ctx, tx, tenantID, prev, pendingTx{
			typ:         TransactionPlanGrant,
			amount:      amount - prev.PlanBalance,
			description: fmt.Sprintf("Plan credits for %s", period),
			metadata:    map[string]interface{}{"period": period.String(), "allowance": amount},
			reference:   reference,
		})
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if grant == nil {
		return nil, false, nil
	}

	s.cache.Invalidate(context.WithoutCancel(ctx), tenantID)
	return grant, true, nil
}

// ListTransactions returns up to limit ledger rows for the tenant, newest first
func (s *Service) ListTransactions(ctx context.Context, tenantID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + transactionColumns + `
		FROM wallet_transactions
		WHERE tenant_id = $1
		ORDER BY seq DESC
		LIMIT $2
	`
	return s.queryTransactions(ctx, query, tenantID, limit)
}

// ReconcileWallet replays the tenant's full ledger and checks that it reconciles and
// that its final snapshot equals the live wallet row
func (s *Service) ReconcileWallet(ctx context.Context, tenantID string) (Snapshot, error) {
	var final Snapshot
	err := storage.RunInTx(ctx, s.db, &sql.TxOptions{ReadOnly: s.dialect == storage.DialectPostgres}, func(tx *sql.Tx) error {
		wallet, err := s.loadWallet(ctx, tx, tenantID, false)
		if err != nil {
			return err
		}
		query := `
			SELECT ` + transactionColumns + `
			FROM wallet_transactions
			WHERE tenant_id = $1
			ORDER BY seq ASC
		`
		txs, err := s.queryTransactionsIn(ctx, tx, query, tenantID)
		if err != nil {
			return err
		}
		final, err = VerifyLedger(Snapshot{}, txs)
		if err != nil {
			return err
		}
		if final.PlanBalance != wallet.PlanBalance || final.TopUpBalance != wallet.TopUpBalance {
			return fmt.Errorf("%w: ledger ends at %d/%d, wallet holds %d/%d", ErrLedgerMismatch,
				final.PlanBalance, final.TopUpBalance, wallet.PlanBalance, wallet.TopUpBalance)
		}
		return nil
	})
	return final, err
}

// GetUsage returns the tenant's usage for period. A period without usage returns a zero
// record.
func (s *Service) GetUsage(ctx context.Context, tenantID string, period Period) (UsageRecord, error) {
	u := UsageRecord{TenantID: tenantID, Year: period.Year, Month: period.Month}
	err := s.db.QueryRowContext(ctx, `
		SELECT action_count, credits_spent, updated_at
		FROM usage_records
		WHERE tenant_id = $1 AND year = $2 AND month = $3
	`, tenantID, period.Year, period.Month).Scan(&u.ActionCount, &u.CreditsSpent, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return UsageRecord{}, fmt.Errorf("failed to get usage: %w", err)
	}
	return u, nil
}

// UsageHistory returns up to limit monthly usage records, most recent month first
func (s *Service) UsageHistory(ctx context.Context, tenantID string, limit int) ([]UsageRecord, error) {
	if limit <= 0 {
		limit = 12
	}
	rows, err := s.reader().QueryContext(ctx, `
		SELECT tenant_id, year, month, action_count, credits_spent, updated_at
		FROM usage_records
		WHERE tenant_id = $1
		ORDER BY year DESC, month DESC
		LIMIT $2
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var u UsageRecord
		if err := rows.Scan(&u.TenantID, &u.Year, &u.Month, &u.ActionCount, &u.CreditsSpent, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		records = append(records, u)
	}
	return records, rows.Err()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// loadWallet reads the wallet buckets; forUpdate locks the row on Postgres. The
// returned snapshot carries the wallet's latest ledger seq.
func (s *Service) loadWallet(ctx context.Context, q querier, tenantID string, forUpdate bool) (Snapshot, error) {
	query := `SELECT plan_balance, top_up_balance FROM wallets WHERE tenant_id = $1`
	if forUpdate {
		query += s.dialect.ForUpdate()
	}

	var snap Snapshot
	err := q.QueryRowContext(ctx, query, tenantID).Scan(&snap.PlanBalance, &snap.TopUpBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrWalletNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load wallet: %w", err)
	}

	if forUpdate {
		err = q.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM wallet_transactions WHERE tenant_id = $1`,
			tenantID,
		).Scan(&snap.Seq)
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to read ledger position: %w", err)
		}
	}
	return snap, nil
}

type pendingTx struct {
	typ         TransactionType
	amount      int64
	description string
	metadata    map[string]interface{}
	reference   string
}

// applyTx applies p to prev, writes the wallet row and appends the ledger row. It must
// run in the transaction that locked the wallet.
func (s *Service) applyTx(ctx context.Context, tx *sql.Tx, tenantID string, prev Snapshot, p pendingTx) (*Transaction, error) {
	next, ok := prev.apply(p.typ, p.amount)
	if !ok {
		return nil, fmt.Errorf("%w: %s of %d cannot apply to balance %d/%d",
			ErrInvalidAmount, p.typ, p.amount, prev.PlanBalance, prev.TopUpBalance)
	}
	now := s.now().UTC()

	_, err := tx.ExecContext(ctx,
		`UPDATE wallets SET plan_balance = $1, top_up_balance = $2, updated_at = $3 WHERE tenant_id = $4`,
		next.PlanBalance, next.TopUpBalance, now, tenantID,
	)
	if storage.IsCheckViolation(err) {
		return nil, fmt.Errorf("%w: wallet balance would go negative", ErrInvalidAmount)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update wallet: %w", err)
	}

	t := &Transaction{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		Seq:               next.Seq,
		Type:              p.typ,
		Amount:            p.amount,
		PlanBalanceAfter:  next.PlanBalance,
		TopUpBalanceAfter: next.TopUpBalance,
		Description:       p.description,
		Metadata:          p.metadata,
		Reference:         p.reference,
		CreatedAt:         now,
	}

	var metadata sql.NullString
	if len(t.Metadata) > 0 {
		data, err := json.Marshal(t.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, tenant_id, seq, type, amount, plan_balance_after,
		                                 top_up_balance_after, description, metadata, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, t.ID, t.TenantID, t.Seq, string(t.Type), t.Amount, t.PlanBalanceAfter, t.TopUpBalanceAfter,
		t.Description, metadata, sql.NullString{String: t.Reference, Valid: t.Reference != ""}, t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return t, nil
}

func (s *Service) recordUsage(ctx context.Context, tx *sql.Tx, tenantID string, amount int64, at time.Time) error {
	period := PeriodOf(at)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO usage_records (tenant_id, year, month, action_count, credits_spent, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (tenant_id, year, month) DO UPDATE
		SET action_count = usage_records.action_count + 1,
		    credits_spent = usage_records.credits_spent + EXCLUDED.credits_spent,
		    updated_at = EXCLUDED.updated_at
	`, tenantID, period.Year, period.Month, amount, at)
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

const transactionColumns = `id, tenant_id, seq, type, amount, plan_balance_after, top_up_balance_after,
		       description, metadata, reference, created_at`

func (s *Service) queryTransactions(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	return s.queryTransactionsIn(ctx, s.reader(), query, args...)
}

func (s *Service) queryTransactionsIn(ctx context.Context, q querier, query string, args ...any) ([]Transaction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var (
			t         Transaction
			typ       string
			metadata  sql.NullString
			reference sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.TenantID, &t.Seq, &typ, &t.Amount, &t.PlanBalanceAfter,
			&t.TopUpBalanceAfter, &t.Description, &metadata, &reference, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.Type = TransactionType(typ)
		t.Reference = reference.String
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &t.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
