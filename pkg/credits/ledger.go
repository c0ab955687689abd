package credits

import "fmt"

// Snapshot is the wallet state after a given ledger row. The zero Snapshot is the state
// of a wallet before its first row.
type Snapshot struct {
	Seq          int64
	PlanBalance  int64
	TopUpBalance int64
}

// Available returns the total spendable balance
func (s Snapshot) Available() int64 {
	return s.PlanBalance + s.TopUpBalance
}

// apply returns the snapshot that results from applying a transaction of typ and signed
// amount to s. It returns false when the row cannot be applied, such as a debit larger
// than the balance or a positive debit.
func (s Snapshot) apply(typ TransactionType, amount int64) (Snapshot, bool) {
	next := Snapshot{Seq: s.Seq + 1, PlanBalance: s.PlanBalance, TopUpBalance: s.TopUpBalance}

	switch typ {
	case TransactionDebit:
		spend := -amount
		if spend <= 0 || spend > s.Available() {
			return s, false
		}
		fromPlan := min(spend, s.PlanBalance)
		next.PlanBalance -= fromPlan
		next.TopUpBalance -= spend - fromPlan
	case TransactionTopUp:
		if amount <= 0 {
			return s, false
		}
		next.TopUpBalance += amount
	case TransactionPlanGrant:
		next.PlanBalance += amount
		if next.PlanBalance < 0 {
			return s, false
		}
	default:
		return s, false
	}
	return next, true
}

// VerifyLedger checks that txs, in ascending Seq order, follow on from prev: each row's
// sequence number is the next one and its balance snapshot equals the previous snapshot
// with the row's amount applied by the rules of its type. It returns the final snapshot,
// or an error wrapping ErrLedgerMismatch naming the first row that does not reconcile.
func VerifyLedger(prev Snapshot, txs []Transaction) (Snapshot, error) {
	for _, tx := range txs {
		if tx.Seq != prev.Seq+1 {
			return prev, fmt.Errorf("%w: transaction %s has seq %d, expected %d",
				ErrLedgerMismatch, tx.ID, tx.Seq, prev.Seq+1)
		}
		want, ok := prev.apply(tx.Type, tx.Amount)
		if !ok {
			return prev, fmt.Errorf("%w: transaction %s (%s %d) cannot apply to balance %d/%d",
				ErrLedgerMismatch, tx.ID, tx.Type, tx.Amount, prev.PlanBalance, prev.TopUpBalance)
		}
		if got := tx.Snapshot(); got != want {
			return prev, fmt.Errorf("%w: transaction %s records %d/%d, expected %d/%d",
				ErrLedgerMismatch, tx.ID, got.PlanBalance, got.TopUpBalance, want.PlanBalance, want.TopUpBalance)
		}
		prev = want
	}
	return prev, nil
}
