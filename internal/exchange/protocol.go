// File: internal/exchange/protocol.go
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/parley-cli/internal/browser"
	"github.com/xkilldash9x/parley-cli/internal/config"
	"github.com/xkilldash9x/parley-cli/internal/conversation"
	"github.com/xkilldash9x/parley-cli/internal/retry"
	"github.com/xkilldash9x/parley-cli/internal/wait"
)

// Result describes the outcome of one prompt.
type Result struct {
	OK       bool
	Text     string
	Reason   string
	Attempts int
}

// Protocol sends a prompt, waits for the reply to start and finish, and
// extracts it. Only a fully successful exchange touches the conversation log.
type Protocol struct {
	page      browser.Page
	waiter    *wait.Waiter
	log       *conversation.Log
	input     InputStrategy
	oracle    CompletionOracle
	reader    ResponseReader
	selectors config.SelectorsConfig
	cfg       config.ExchangeConfig
	logger    *zap.Logger
}

// Option overrides one of the pluggable parts of a Protocol.
type Option func(*Protocol)

func WithInputStrategy(s InputStrategy) Option { return func(p *Protocol) { p.input = s } }
func WithOracle(o CompletionOracle) Option     { return func(p *Protocol) { p.oracle = o } }
func WithReader(r ResponseReader) Option       { return func(p *Protocol) { p.reader = r } }

// NewProtocol builds a Protocol whose input strategy and reader follow cfg.
func NewProtocol(
	page browser.Page,
	waiter *wait.Waiter,
	log *conversation.Log,
	selectors config.SelectorsConfig,
	cfg config.ExchangeConfig,
	logger *zap.Logger,
	opts ...Option,
) (*Protocol, error) {
	input, err := NewInputStrategy(cfg.InputMode, cfg.CharDelay)
	if err != nil {
		return nil, err
	}
	reader, err := NewResponseReader(cfg.ReaderMode)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Protocol{
		page:      page,
		waiter:    waiter,
		log:       log,
		input:     input,
		oracle:    AffordanceOracle{Selector: selectors.CompletionMarker},
		reader:    reader,
		selectors: selectors,
		cfg:       cfg,
		logger:    logger.Named("exchange"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// SendPrompt runs the exchange under policy. Exhausting the policy is reported
// through Result; the error return is reserved for fatal conditions.
func (p *Protocol) SendPrompt(ctx context.Context, text string, policy retry.Policy, responseTimeout time.Duration) (Result, error) {
	if responseTimeout <= 0 {
		responseTimeout = p.cfg.ResponseTimeout
	}
	p.logger.Info("Preparing to send prompt.", zap.String("prompt", preview(text)))

	var reply string
	attempts, err := policy.Do(ctx,
		func(ctx context.Context, attempt int) error {
			var aerr error
			reply, aerr = p.attempt(ctx, text, responseTimeout)
			return aerr
		},
		retry.OnFailure(func(attempt int, err error) {
			p.logger.Error("Error sending prompt.", zap.Int("attempt", attempt), zap.Error(err))
		}),
	)

	var exhausted *retry.ExhaustedError
	switch {
	case err == nil:
		return Result{OK: true, Text: reply, Attempts: attempts}, nil
	case errors.As(err, &exhausted):
		p.logger.Error("All attempts to get a response failed.", zap.Int("attempts", attempts))
		return Result{OK: false, Reason: exhausted.Last.Error(), Attempts: attempts}, nil
	default:
		return Result{}, err
	}
}

func (p *Protocol) attempt(ctx context.Context, text string, responseTimeout time.Duration) (string, error) {
	sel := p.selectors

	before, err := p.probe(ctx, sel.Response)
	if err != nil {
		return "", err
	}
	p.logger.Debug("Counted existing responses.", zap.Int("count", before.Count))

	if _, err := p.waiter.Until(ctx, wait.Interactive(sel.PromptInput, p.cfg.ControlTimeout)); err != nil {
		return "", err
	}
	if err := p.page.Clear(ctx, sel.PromptInput); err != nil {
		return "", err
	}
	if err := p.input.Enter(ctx, p.page, sel.PromptInput, text); err != nil {
		return "", err
	}

	if _, err := p.waiter.Until(ctx, wait.Interactive(sel.SendButton, p.cfg.ControlTimeout)); err != nil {
		return "", err
	}
	if err := p.page.Click(ctx, sel.SendButton); err != nil {
		return "", err
	}
	p.logger.Info("Prompt sent, waiting for response.")

	if _, err := p.waiter.Until(ctx, wait.CountAbove(sel.Response, before.Count, responseTimeout)); err != nil {
		return "", err
	}
	p.logger.Info("New response detected, waiting for it to complete.")

	if _, err := p.waiter.Until(ctx, p.oracle.Done(responseTimeout)); err != nil {
		return "", err
	}

	// Give the last chunk time to render.
	if err := retry.Sleep(ctx, p.cfg.SettleDelay); err != nil {
		return "", err
	}

	after, err := p.probe(ctx, sel.Response)
	if err != nil {
		return "", err
	}
	if after.Count == 0 {
		return "", &browser.EmptyResponseError{Selector: sel.Response}
	}
	reply, err := p.reader.Read(after)
	if err != nil {
		p.logger.Warn("Could not extract response.", zap.Error(err))
		return "", &browser.EmptyResponseError{Selector: sel.Response}
	}
	if strings.TrimSpace(reply) == "" {
		return "", &browser.EmptyResponseError{Selector: sel.Response}
	}

	p.log.AppendExchange(text, reply)
	p.logger.Info("Response received.", zap.Int("characters", len(reply)))
	return reply, nil
}

// probe reads a selector once. Transient script failures count as a missing element.
func (p *Protocol) probe(ctx context.Context, selector string) (browser.ElementState, error) {
	state, err := p.page.Probe(ctx, selector)
	if err == nil {
		return state, nil
	}
	var envErr *browser.EnvironmentError
	if errors.As(err, &envErr) || ctx.Err() != nil {
		return browser.ElementState{}, err
	}
	return browser.ElementState{}, &browser.ElementNotFoundError{Selector: selector, Err: err}
}

func preview(s string) string {
	const limit = 50
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return fmt.Sprintf("%s...", string(r[:limit]))
}
