// File: internal/browser/cdp_page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	defaultActionTimeout     = 10 * time.Second
	defaultNavigationTimeout = 60 * time.Second
)

// CDPPage drives a single Chrome tab over the DevTools protocol.
type CDPPage struct {
	// tabCtx carries the chromedp target; it is cancelled when the browser goes away.
	tabCtx        context.Context
	logger        *zap.Logger
	actionTimeout time.Duration
	navTimeout    time.Duration
}

var _ Page = (*CDPPage)(nil)

// NewCDPPage wraps a chromedp tab context. A non-positive actionTimeout falls
// back to ten seconds.
func NewCDPPage(tabCtx context.Context, logger *zap.Logger, actionTimeout time.Duration) *CDPPage {
	if actionTimeout <= 0 {
		actionTimeout = defaultActionTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CDPPage{
		tabCtx:        tabCtx,
		logger:        logger.Named("page"),
		actionTimeout: actionTimeout,
		navTimeout:    defaultNavigationTimeout,
	}
}

// runActions executes actions on the tab, bounded by both the operation context
// and the optional timeout. Context errors are prioritized: a dead tab is an
// EnvironmentError, a cancelled caller gets its own ctx.Err() back.
func (p *CDPPage) runActions(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) (timedOut bool, err error) {
	opCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	runCtx, cancel := CombineContext(p.tabCtx, opCtx)
	defer cancel()

	err = chromedp.Run(runCtx, actions...)
	if err == nil {
		return false, nil
	}
	if p.tabCtx.Err() != nil {
		return false, &EnvironmentError{Op: op, Err: p.tabCtx.Err()}
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return true, err
	}
	if isDisconnected(err) {
		return false, &EnvironmentError{Op: op, Err: err}
	}
	return false, err
}

func isDisconnected(err error) bool {
	if errors.Is(err, chromedp.ErrInvalidContext) || errors.Is(err, chromedp.ErrChannelClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "target closed") || strings.Contains(msg, "websocket: close")
}

func queryOption(selector string) chromedp.QueryOption {
	if IsXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func evalOptions(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithReturnByValue(true).WithSilent(true)
}

// Navigate loads url. A navigation that does not finish in time is reported
// as a TimeoutError so the caller may retry it.
func (p *CDPPage) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))
	timedOut, err := p.runActions(ctx, "navigate", p.navTimeout, chromedp.Navigate(url))
	if timedOut {
		return &TimeoutError{Condition: "navigation to " + url, Timeout: p.navTimeout, Last: err}
	}
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *CDPPage) Reload(ctx context.Context) error {
	timedOut, err := p.runActions(ctx, "reload", p.navTimeout, chromedp.Reload())
	if timedOut {
		return &TimeoutError{Condition: "page reload", Timeout: p.navTimeout, Last: err}
	}
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

func (p *CDPPage) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if _, err := p.runActions(ctx, "location", p.actionTimeout, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("could not read current url: %w", err)
	}
	return url, nil
}

// Probe runs a side-effect free script. Errors are returned unclassified
// unless the tab is gone, which lets waiters treat them as "not yet".
func (p *CDPPage) Probe(ctx context.Context, selector string) (ElementState, error) {
	var state ElementState
	_, err := p.runActions(ctx, "probe", 0, chromedp.Evaluate(probeScript(selector), &state, evalOptions))
	if err != nil {
		return ElementState{}, err
	}
	return state, nil
}

func (p *CDPPage) Click(ctx context.Context, selector string) error {
	p.logger.Debug("Clicking element.", zap.String("selector", selector))
	timedOut, err := p.runActions(ctx, "click", p.actionTimeout, chromedp.Click(selector, queryOption(selector)))
	return p.actionError(selector, timedOut, err)
}

func (p *CDPPage) Clear(ctx context.Context, selector string) error {
	var ok bool
	timedOut, err := p.runActions(ctx, "clear", p.actionTimeout, chromedp.Evaluate(clearScript(selector), &ok, evalOptions))
	if err := p.actionError(selector, timedOut, err); err != nil {
		return err
	}
	if !ok {
		return &ElementNotFoundError{Selector: selector, Err: errors.New("element missing, disabled or read-only")}
	}
	return nil
}

func (p *CDPPage) TypeText(ctx context.Context, selector, text string) error {
	timedOut, err := p.runActions(ctx, "type", p.actionTimeout, chromedp.SendKeys(selector, text, queryOption(selector)))
	return p.actionError(selector, timedOut, err)
}

func (p *CDPPage) SetText(ctx context.Context, selector, text string) error {
	var ok bool
	timedOut, err := p.runActions(ctx, "set_text", p.actionTimeout, chromedp.Evaluate(setTextScript(selector, text), &ok, evalOptions))
	if err := p.actionError(selector, timedOut, err); err != nil {
		return err
	}
	if !ok {
		return &ElementNotFoundError{Selector: selector, Err: errors.New("element missing, disabled or read-only")}
	}
	return nil
}

func (p *CDPPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if _, err := p.runActions(ctx, "screenshot", p.actionTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// actionError maps a failed element action onto the error taxonomy.
func (p *CDPPage) actionError(selector string, timedOut bool, err error) error {
	if err == nil {
		return nil
	}
	if timedOut {
		return &ElementNotFoundError{Selector: selector, Err: fmt.Errorf("no usable element within %v: %w", p.actionTimeout, err)}
	}
	var envErr *EnvironmentError
	if errors.As(err, &envErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &ElementNotFoundError{Selector: selector, Err: err}
}
