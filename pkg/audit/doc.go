// Package audit records security-relevant decisions: denied permission, ownership and
// quota checks, credit movements and membership changes.
//
// # Usage
//
//	logger := audit.NewLogrusLogger(nil)
//
//	event := audit.NewEvent(ctx, audit.EventTypeQuotaExceeded, audit.EventStatusDenied)
//	event.ResourceType = "max_contacts"
//	event.WithMetadata("limit", 500)
//	_ = logger.Log(ctx, event)
//
// NewEvent copies the tenant, user, role and request id from the request context.
// Callers on a request path dispatch audit writes with async.SafeGo so a slow sink
// never delays the response.
package audit
