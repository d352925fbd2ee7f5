// File: internal/retry/retry.go
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/xkilldash9x/parley-cli/internal/browser"
)

// ErrExhausted matches any *ExhaustedError via errors.Is.
var ErrExhausted = errors.New("retry budget exhausted")

// Policy is a fixed attempt budget with a constant delay between attempts.
// The delay never grows.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// ExhaustedError is returned once every attempt failed recoverably.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Operation is one attempt. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

type options struct {
	onFailure func(attempt int, err error)
	between   func(ctx context.Context, attempt int) error
}

// Option customizes a single Do call.
type Option func(*options)

// OnFailure runs after every recoverable failure, including the last one.
func OnFailure(fn func(attempt int, err error)) Option {
	return func(o *options) { o.onFailure = fn }
}

// BetweenAttempts runs after a recoverable failure when another attempt remains,
// before the delay. A non-recoverable error from fn aborts the loop.
func BetweenAttempts(fn func(ctx context.Context, attempt int) error) Option {
	return func(o *options) { o.between = fn }
}

// Do runs op until it succeeds, fails non-recoverably, or the budget runs out.
// It returns the number of attempts made. Non-recoverable errors (see
// browser.IsRecoverable) are returned unchanged; exhaustion yields *ExhaustedError.
func (p Policy) Do(ctx context.Context, op Operation, opts ...Option) (int, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if !browser.IsRecoverable(err) {
			return backoff.Permanent(err)
		}

		if o.onFailure != nil {
			o.onFailure(attempt, err)
		}
		if attempt >= maxAttempts {
			return backoff.Permanent(&ExhaustedError{Attempts: attempt, Last: err})
		}
		if o.between != nil {
			if herr := o.between(ctx, attempt); herr != nil && !browser.IsRecoverable(herr) {
				return backoff.Permanent(herr)
			}
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(maxAttempts-1)),
		ctx,
	)
	err := backoff.Retry(operation, b)
	return attempt, err
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
