// Package credits implements the per-tenant credit wallet.
//
// A wallet holds two buckets: plan credits, reset every billing period by
// GrantPlanCredits, and purchased top-up credits, which never expire. DebitCredits
// always spends plan credits first.
//
// # Ledger
//
// Every balance change appends one Transaction recording the signed amount and the
// balances after it. Rows carry a per-tenant sequence number and are never updated, so
// the wallet can be rebuilt from its ledger alone; VerifyLedger and ReconcileWallet
// check exactly that.
//
// # Debits
//
//	ok, err := wallets.DebitCredits(ctx, tenantID, 5, "AI email draft", map[string]interface{}{
//		"model": "draft-v2",
//	})
//	if err != nil {
//		return err
//	}
//	if !ok {
//		// out of credits: skip the billable step
//	}
//
// The wallet row is locked (SELECT ... FOR UPDATE on Postgres, an immediate
// transaction on SQLite) for the whole read-check-write, so concurrent debits cannot
// both spend the same credits. The month's UsageRecord is updated in the same
// transaction.
//
// # Caching
//
// CheckBalance may be served from a BalanceCache (Redis with an optional in-process
// LRU). Caching is off unless WithCache is given. Debits never read the cache.
package credits
