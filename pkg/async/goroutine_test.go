package async

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/platinummonkey/crmcore/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	SetLogger(observability.NewLogger(observability.ErrorLevel, io.Discard))
}

func TestSafeGo_Success(t *testing.T) {
	executed := atomic.Bool{}

	SafeGo(context.Background(), 1*time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	})

	assert.Eventually(t, executed.Load, time.Second, 5*time.Millisecond)
}

func TestSafeGo_WithError(t *testing.T) {
	executed := atomic.Bool{}

	SafeGo(context.Background(), 1*time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return errors.New("test error")
	})

	assert.Eventually(t, executed.Load, time.Second, 5*time.Millisecond)
}

func TestSafeGo_Timeout(t *testing.T) {
	done := make(chan error, 1)

	SafeGo(context.Background(), 50*time.Millisecond, "test task", func(ctx context.Context) error {
		select {
		case <-time.After(2 * time.Second):
			done <- nil
		case <-ctx.Done():
			done <- ctx.Err()
		}
		return nil
	})

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("task was not cancelled by timeout")
	}
}

func TestSafeGo_NoTimeout(t *testing.T) {
	hasDeadline := make(chan bool, 1)

	SafeGo(context.Background(), NoTimeout, "test task", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		hasDeadline <- ok
		return nil
	})

	assert.False(t, <-hasDeadline)
}

func TestSafeGo_PanicRecovery(t *testing.T) {
	executed := atomic.Bool{}

	SafeGo(context.Background(), 1*time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		panic("test panic")
	})

	assert.Eventually(t, executed.Load, time.Second, 5*time.Millisecond)
}

func TestSafeGo_DetachedFromRequest(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)

	SafeGo(context.WithoutCancel(parent), time.Second, "audit", func(ctx context.Context) error {
		done <- ctx.Err()
		return nil
	})

	assert.NoError(t, <-done)
}

func TestSafeGoNoError(t *testing.T) {
	executed := atomic.Bool{}

	SafeGoNoError(context.Background(), 1*time.Second, "test task", func(ctx context.Context) {
		executed.Store(true)
	})

	assert.Eventually(t, executed.Load, time.Second, 5*time.Millisecond)
}

func TestBatch(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	executed := atomic.Int32{}

	errs := Batch(context.Background(), items, 2, "test batch", 1*time.Second, func(ctx context.Context, item int) error {
		executed.Add(1)
		return nil
	})

	assert.Empty(t, errs)
	assert.Equal(t, int32(5), executed.Load())
}

func TestBatch_WithErrors(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	errEven := errors.New("even number error")

	errs := Batch(context.Background(), items, 2, "test batch", 1*time.Second, func(ctx context.Context, item int) error {
		if item%2 == 0 {
			return errEven
		}
		return nil
	})

	require.Len(t, errs, 2)
	failed := map[int]bool{}
	for _, err := range errs {
		assert.ErrorIs(t, err, errEven)
		var itemErr *ItemError[int]
		require.ErrorAs(t, err, &itemErr)
		failed[itemErr.Item] = true
	}
	assert.Equal(t, map[int]bool{2: true, 4: true}, failed)
}

func TestBatch_KeepsEveryError(t *testing.T) {
	items := make([]int, 500)
	for i := range items {
		items[i] = i
	}

	errs := Batch(context.Background(), items, 4, "test batch", time.Second, func(ctx context.Context, item int) error {
		return errors.New("fail")
	})

	assert.Len(t, errs, 500)
}

func TestBatch_PanicIsError(t *testing.T) {
	errs := Batch(context.Background(), []string{"a", "b"}, 2, "test batch", time.Second, func(ctx context.Context, item string) error {
		if item == "b" {
			panic("boom")
		}
		return nil
	})

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "panic: boom")
}

func TestBatch_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	executed := atomic.Int32{}

	errs := Batch(ctx, []int{1, 2, 3, 4, 5}, 2, "test batch", 1*time.Second, func(ctx context.Context, item int) error {
		executed.Add(1)
		return nil
	})

	assert.Equal(t, int32(0), executed.Load())
	require.Len(t, errs, 5)
	assert.ErrorIs(t, errs[0], context.Canceled)
}
