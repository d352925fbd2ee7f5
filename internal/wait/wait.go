// File: internal/wait/wait.go
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/parley-cli/internal/browser"
)

// DefaultInterval is the polling period used when none is configured.
const DefaultInterval = 250 * time.Millisecond

// Condition is a predicate over the current matches of Selector. Evaluating
// it never mutates the page.
type Condition struct {
	Description string
	Selector    string
	Timeout     time.Duration
	Satisfied   func(browser.ElementState) bool
}

// Present holds once at least one element matches.
func Present(selector string, timeout time.Duration) Condition {
	return Condition{
		Description: fmt.Sprintf("presence of %s", selector),
		Selector:    selector,
		Timeout:     timeout,
		Satisfied:   browser.ElementState.Present,
	}
}

// Visible holds once the first match is rendered.
func Visible(selector string, timeout time.Duration) Condition {
	return Condition{
		Description: fmt.Sprintf("visibility of %s", selector),
		Selector:    selector,
		Timeout:     timeout,
		Satisfied: func(s browser.ElementState) bool {
			return s.Count > 0 && s.Visible
		},
	}
}

// Interactive holds once the first match is visible and enabled.
func Interactive(selector string, timeout time.Duration) Condition {
	return Condition{
		Description: fmt.Sprintf("%s to be clickable", selector),
		Selector:    selector,
		Timeout:     timeout,
		Satisfied:   browser.ElementState.Interactive,
	}
}

// CountAbove holds once more than n elements match.
func CountAbove(selector string, n int, timeout time.Duration) Condition {
	return Condition{
		Description: fmt.Sprintf("more than %d matches of %s", n, selector),
		Selector:    selector,
		Timeout:     timeout,
		Satisfied: func(s browser.ElementState) bool {
			return s.Count > n
		},
	}
}

// Custom wraps an arbitrary predicate.
func Custom(description, selector string, timeout time.Duration, fn func(browser.ElementState) bool) Condition {
	return Condition{Description: description, Selector: selector, Timeout: timeout, Satisfied: fn}
}

// Waiter polls a page at a fixed interval.
type Waiter struct {
	page     browser.Page
	interval time.Duration
	logger   *zap.Logger
}

// New returns a Waiter for page. A non-positive interval uses DefaultInterval.
func New(page browser.Page, interval time.Duration, logger *zap.Logger) *Waiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Waiter{page: page, interval: interval, logger: logger.Named("wait")}
}

// Until blocks until cond holds and returns the state that satisfied it.
// Every probe runs under the condition's deadline, so the call returns within
// cond.Timeout plus one interval. Expiry yields a *browser.TimeoutError; a dead
// browser yields the probe's *browser.EnvironmentError; cancelling ctx yields ctx.Err().
func (w *Waiter) Until(ctx context.Context, cond Condition) (browser.ElementState, error) {
	waitCtx, cancel := context.WithTimeout(ctx, cond.Timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last error
	for {
		state, err := w.page.Probe(waitCtx, cond.Selector)
		if err == nil {
			if cond.Satisfied(state) {
				return state, nil
			}
		} else {
			var envErr *browser.EnvironmentError
			if errors.As(err, &envErr) {
				return browser.ElementState{}, err
			}
			if ctx.Err() != nil {
				return browser.ElementState{}, ctx.Err()
			}
			if waitCtx.Err() == nil {
				// Navigation tears down the JS context; that is simply "not yet".
				last = err
				w.logger.Debug("Probe failed, polling again.", zap.String("condition", cond.Description), zap.Error(err))
			}
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return browser.ElementState{}, ctx.Err()
			}
			return browser.ElementState{}, &browser.TimeoutError{Condition: cond.Description, Timeout: cond.Timeout, Last: last}
		case <-ticker.C:
		}
	}
}
