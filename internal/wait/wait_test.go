// File: internal/wait/wait_test.go
package wait

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/parley-cli/internal/browser"
	"github.com/xkilldash9x/parley-cli/internal/browser/browsertest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testInterval = 5 * time.Millisecond

func newTestWaiter(t *testing.T, page browser.Page) *Waiter {
	t.Helper()
	return New(page, testInterval, zaptest.NewLogger(t))
}

func TestUntil_SatisfiedImmediately(t *testing.T) {
	page := browsertest.NewPage()
	page.SetState("#email-input", browsertest.Ready)

	state, err := newTestWaiter(t, page).Until(context.Background(), Present("#email-input", time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, state.Count)
}

func TestUntil_SatisfiedAfterSeveralProbes(t *testing.T) {
	page := browsertest.NewPage()
	page.SetProbe("div.markdown", func(n int) (browser.ElementState, error) {
		return browser.ElementState{Count: n, LastText: "partial"}, nil
	})

	state, err := newTestWaiter(t, page).Until(context.Background(), CountAbove("div.markdown", 3, time.Second))
	require.NoError(t, err)
	assert.Equal(t, 4, state.Count)
}

func TestUntil_TimeoutIsBounded(t *testing.T) {
	page := browsertest.NewPage()
	timeout := 60 * time.Millisecond

	start := time.Now()
	_, err := newTestWaiter(t, page).Until(context.Background(), Visible("#missing", timeout))
	elapsed := time.Since(start)

	var timeoutErr *browser.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, timeout, timeoutErr.Timeout)
	assert.Contains(t, timeoutErr.Condition, "#missing")
	assert.True(t, browser.IsRecoverable(err))
	assert.GreaterOrEqual(t, elapsed, timeout)
	// Generous slack for loaded CI machines; the bound is timeout + one interval.
	assert.Less(t, elapsed, timeout+testInterval+200*time.Millisecond)
}

func TestUntil_TransientProbeErrorsAreNotYet(t *testing.T) {
	page := browsertest.NewPage()
	destroyed := errors.New("execution context was destroyed")
	page.SetProbe("#chat", func(n int) (browser.ElementState, error) {
		if n < 3 {
			return browser.ElementState{}, destroyed
		}
		return browsertest.Ready, nil
	})

	_, err := newTestWaiter(t, page).Until(context.Background(), Visible("#chat", time.Second))
	assert.NoError(t, err)
}

func TestUntil_TimeoutKeepsLastProbeError(t *testing.T) {
	page := browsertest.NewPage()
	destroyed := errors.New("execution context was destroyed")
	page.SetProbe("#chat", func(int) (browser.ElementState, error) {
		return browser.ElementState{}, destroyed
	})

	_, err := newTestWaiter(t, page).Until(context.Background(), Visible("#chat", 30*time.Millisecond))
	var timeoutErr *browser.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.ErrorIs(t, timeoutErr.Last, destroyed)
}

func TestUntil_EnvironmentErrorPropagates(t *testing.T) {
	page := browsertest.NewPage()
	calls := 0
	page.SetProbe("#chat", func(int) (browser.ElementState, error) {
		calls++
		return browser.ElementState{}, &browser.EnvironmentError{Op: "probe", Err: errors.New("target closed")}
	})

	_, err := newTestWaiter(t, page).Until(context.Background(), Visible("#chat", time.Second))
	var envErr *browser.EnvironmentError
	require.ErrorAs(t, err, &envErr)
	assert.Equal(t, 1, calls, "environment failures must not be polled again")
}

func TestUntil_ParentCancellation(t *testing.T) {
	page := browsertest.NewPage()
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := newTestWaiter(t, page).Until(ctx, Present("#never", 5*time.Second))
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, browser.IsRecoverable(err))
}

func TestConditionConstructors(t *testing.T) {
	hidden := browser.ElementState{Count: 1}
	visibleDisabled := browser.ElementState{Count: 1, Visible: true}
	ready := browsertest.Ready

	tests := []struct {
		name  string
		cond  Condition
		state browser.ElementState
		want  bool
	}{
		{"present on empty", Present("x", time.Second), browser.ElementState{}, false},
		{"present on hidden", Present("x", time.Second), hidden, true},
		{"visible on hidden", Visible("x", time.Second), hidden, false},
		{"visible on disabled", Visible("x", time.Second), visibleDisabled, true},
		{"interactive on disabled", Interactive("x", time.Second), visibleDisabled, false},
		{"interactive on ready", Interactive("x", time.Second), ready, true},
		{"count above equal", CountAbove("x", 1, time.Second), hidden, false},
		{"count above more", CountAbove("x", 0, time.Second), hidden, true},
		{"custom", Custom("has text", "x", time.Second, func(s browser.ElementState) bool {
			return s.LastText != ""
		}), browser.ElementState{Count: 1, LastText: "hi"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Satisfied(tt.state))
			assert.Equal(t, "x", tt.cond.Selector)
		})
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	w := New(browsertest.NewPage(), 0, nil)
	assert.Equal(t, DefaultInterval, w.interval)
}
