package async

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/crmcore/pkg/observability"
)

// NoTimeout disables the per-task deadline in SafeGo
const NoTimeout time.Duration = 0

var logger atomic.Pointer[observability.Logger]

func init() {
	logger.Store(observability.NewLogger(observability.InfoLevel, os.Stderr))
}

// SetLogger replaces the logger used to report task errors and panics
func SetLogger(l *observability.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

// SafeGo executes a function in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement (unless timeout is NoTimeout)
// - Error logging
//
// Use this instead of bare `go func()` to prevent goroutine leaks and crashes. Work that
// must outlive an HTTP request should pass context.WithoutCancel(r.Context()).
//
// Example:
//
//	SafeGo(context.WithoutCancel(r.Context()), 5*time.Second, "audit denial", func(ctx context.Context) error {
//	    return auditor.Log(ctx, event)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		var ctx context.Context
		var cancel context.CancelFunc
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(parentCtx, timeout)
		} else {
			ctx, cancel = context.WithCancel(parentCtx)
		}
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.Load().WithFields(map[string]interface{}{
					"task":  taskName,
					"panic": fmt.Sprint(r),
					"stack": string(debug.Stack()),
				}).Error("Recovered panic in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.Load().WithField("task", taskName).WithError(err).Warn("Background task failed")
		}
	}()
}

// SafeGoNoError is like SafeGo but for functions that don't return errors.
// Still provides panic recovery and context support.
func SafeGoNoError(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context)) {
	SafeGo(parentCtx, timeout, taskName, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// ItemError is the error Batch reports for a single item
type ItemError[T any] struct {
	Item T
	Err  error
}

func (e *ItemError[T]) Error() string {
	return fmt.Sprintf("%v: %v", e.Item, e.Err)
}

func (e *ItemError[T]) Unwrap() error {
	return e.Err
}

// Batch processes items concurrently with at most workers goroutines and returns one
// *ItemError per failed item. Items not yet started when ctx is cancelled fail with
// the context error. A panicking item is reported as an error and does not stop the
// batch.
//
// Example:
//
//	errs := Batch(ctx, tenantIDs, 5, "plan credit grant", 10*time.Second, func(ctx context.Context, id string) error {
//	    return grant(ctx, id)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers < 1 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	record := func(item T, err error) {
		mu.Lock()
		errs = append(errs, &ItemError[T]{Item: item, Err: err})
		mu.Unlock()
	}

	work := make(chan T)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				if err := ctx.Err(); err != nil {
					record(item, err)
					continue
				}
				if err := runItem(ctx, timeout, item, fn); err != nil {
					record(item, err)
				}
			}
		}()
	}

	for _, item := range items {
		work <- item
	}
	close(work)
	wg.Wait()

	if len(errs) > 0 {
		logger.Load().WithFields(map[string]interface{}{
			"task":   taskName,
			"items":  len(items),
			"failed": len(errs),
		}).Warn("Batch completed with errors")
	}
	return errs
}

func runItem[T any](ctx context.Context, timeout time.Duration, item T, fn func(context.Context, T) error) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, item)
}
