// internal/browser/context_utils_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineContext(t *testing.T) {
	type ctxKey string
	const key ctxKey = "target"

	t.Run("InheritsValuesFromTab", func(t *testing.T) {
		tabCtx := context.WithValue(context.Background(), key, "tab-1")

		combined, cancel := CombineContext(tabCtx, context.Background())
		defer cancel()

		assert.Equal(t, "tab-1", combined.Value(key))
		assert.NoError(t, combined.Err())
	})

	t.Run("CancelledByTab", func(t *testing.T) {
		tabCtx, cancelTab := context.WithCancel(context.Background())
		combined, cancel := CombineContext(tabCtx, context.Background())
		defer cancel()

		cancelTab()
		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("CancelledByOperation", func(t *testing.T) {
		opCtx, cancelOp := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), opCtx)
		defer cancel()

		cancelOp()
		assert.Eventually(t, func() bool {
			return combined.Err() != nil
		}, 100*time.Millisecond, 5*time.Millisecond)
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})

	t.Run("DeadlineFromTab", func(t *testing.T) {
		deadline := time.Now().Add(50 * time.Millisecond)
		tabCtx, cancelTab := context.WithDeadline(context.Background(), deadline)
		defer cancelTab()

		combined, cancel := CombineContext(tabCtx, context.Background())
		defer cancel()

		got, ok := combined.Deadline()
		require.True(t, ok)
		assert.Equal(t, deadline, got)

		<-combined.Done()
		assert.ErrorIs(t, combined.Err(), context.DeadlineExceeded)
	})

	t.Run("ExplicitCancellation", func(t *testing.T) {
		combined, cancel := CombineContext(context.Background(), context.Background())
		cancel()
		assert.ErrorIs(t, combined.Err(), context.Canceled)
	})
}
