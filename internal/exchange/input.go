// File: internal/exchange/input.go
package exchange

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/parley-cli/internal/browser"
)

// InputStrategy decides how prompt text reaches the composer.
type InputStrategy interface {
	Enter(ctx context.Context, page browser.Page, selector, text string) error
}

// PacedInput types one character at a time, at most one per Delay.
type PacedInput struct {
	Delay time.Duration
}

func (p PacedInput) Enter(ctx context.Context, page browser.Page, selector, text string) error {
	limit := rate.Inf
	if p.Delay > 0 {
		limit = rate.Every(p.Delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, r := range text {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		if err := page.TypeText(ctx, selector, string(r)); err != nil {
			return fmt.Errorf("typing prompt: %w", err)
		}
	}
	return nil
}

// AtomicInput sets the whole prompt in one step.
type AtomicInput struct{}

func (AtomicInput) Enter(ctx context.Context, page browser.Page, selector, text string) error {
	if err := page.SetText(ctx, selector, text); err != nil {
		return fmt.Errorf("setting prompt: %w", err)
	}
	return nil
}

// NewInputStrategy maps the configured input mode onto a strategy.
func NewInputStrategy(mode string, charDelay time.Duration) (InputStrategy, error) {
	switch mode {
	case "", "paced":
		return PacedInput{Delay: charDelay}, nil
	case "atomic":
		return AtomicInput{}, nil
	default:
		return nil, fmt.Errorf("unknown input mode %q", mode)
	}
}
