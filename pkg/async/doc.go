// Package async provides safe concurrent execution primitives for background tasks.
//
// # Overview
//
// This package handles goroutine lifecycle management with panic recovery, timeout
// enforcement, context cancellation, and error collection.
//
// # Key Functions
//
// SafeGo: fire-and-forget with panic recovery and a deadline. Used for audit writes so
// a slow or failing audit sink never blocks or fails a policy decision:
//
//	async.SafeGo(context.WithoutCancel(ctx), 5*time.Second, "audit denial", func(ctx context.Context) error {
//		return auditor.Log(ctx, event)
//	})
//
// Batch: bounded fan-out over a slice, collecting one error per failed item. Used by
// the plan credit grant job:
//
//	errs := async.Batch(ctx, tenants, 8, "plan credit grant", 30*time.Second, grantOne)
//	for _, err := range errs {
//		log.WithError(err).Warn("grant failed")
//	}
//
// Errors and panics are logged through the logger set with SetLogger.
package async
