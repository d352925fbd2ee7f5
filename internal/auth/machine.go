// File: internal/auth/machine.go
package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/parley-cli/internal/browser"
	"github.com/xkilldash9x/parley-cli/internal/config"
	"github.com/xkilldash9x/parley-cli/internal/retry"
	"github.com/xkilldash9x/parley-cli/internal/wait"
)

// Credentials are used once per attempt and never logged.
type Credentials struct {
	Email    string
	Password string
}

// Result describes how the login flow ended.
type Result struct {
	Settled      bool
	Reason       string
	ArtifactPath string
	Attempts     int
}

// ArtifactRecorder captures diagnostics after a failed attempt.
type ArtifactRecorder interface {
	Capture(ctx context.Context, attempt int) (string, error)
}

// Machine walks the login flow and restarts it from the login page after
// every recoverable failure.
type Machine struct {
	page      browser.Page
	waiter    *wait.Waiter
	recorder  ArtifactRecorder
	cfg       config.AuthConfig
	selectors config.SelectorsConfig
	logger    *zap.Logger
	observer  func(Step)
}

// Option configures a Machine.
type Option func(*Machine)

// WithObserver receives every step as it is entered, including the terminal one.
func WithObserver(fn func(Step)) Option {
	return func(m *Machine) { m.observer = fn }
}

func NewMachine(
	page browser.Page,
	waiter *wait.Waiter,
	recorder ArtifactRecorder,
	cfg config.AuthConfig,
	selectors config.SelectorsConfig,
	logger *zap.Logger,
	opts ...Option,
) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		page:      page,
		waiter:    waiter,
		recorder:  recorder,
		cfg:       cfg,
		selectors: selectors,
		logger:    logger.Named("auth"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type transition struct {
	step Step
	run  func(ctx context.Context, creds Credentials) error
}

func (m *Machine) transitions() []transition {
	sel, t := m.selectors, m.cfg.Timeouts
	return []transition{
		{StepNavigateToLogin, func(ctx context.Context, _ Credentials) error {
			return m.page.Navigate(ctx, m.cfg.LoginURL)
		}},
		{StepAwaitLoginButton, m.await(wait.Interactive(sel.LoginButton, t.LoginButton))},
		{StepClickLogin, func(ctx context.Context, _ Credentials) error {
			return m.page.Click(ctx, sel.LoginButton)
		}},
		{StepAwaitLoginFormVisible, m.await(wait.Visible(sel.LoginForm, t.LoginForm))},
		{StepEnterEmail, func(ctx context.Context, c Credentials) error {
			return m.typeInto(ctx, wait.Present(sel.EmailInput, t.EmailInput), c.Email)
		}},
		{StepClickContinue, m.clickWhenReady(wait.Interactive(sel.ContinueBtn, t.Continue))},
		{StepAwaitPasswordPageVisible, m.await(wait.Visible(sel.PasswordPage, t.PasswordPage))},
		{StepEnterPassword, func(ctx context.Context, c Credentials) error {
			return m.typeInto(ctx, wait.Present(sel.PasswordInput, t.PasswordInput), c.Password)
		}},
		{StepClickSubmit, m.clickWhenReady(wait.Interactive(sel.SubmitBtn, t.Submit))},
		{StepAwaitChatInterfaceVisible, m.await(wait.Visible(sel.ChatInterface, t.ChatInterface))},
	}
}

func (m *Machine) await(cond wait.Condition) func(context.Context, Credentials) error {
	return func(ctx context.Context, _ Credentials) error {
		_, err := m.waiter.Until(ctx, cond)
		return err
	}
}

func (m *Machine) clickWhenReady(cond wait.Condition) func(context.Context, Credentials) error {
	return func(ctx context.Context, _ Credentials) error {
		if _, err := m.waiter.Until(ctx, cond); err != nil {
			return err
		}
		return m.page.Click(ctx, cond.Selector)
	}
}

func (m *Machine) typeInto(ctx context.Context, cond wait.Condition, text string) error {
	if _, err := m.waiter.Until(ctx, cond); err != nil {
		return err
	}
	return m.page.TypeText(ctx, cond.Selector, text)
}

func (m *Machine) enter(step Step) {
	m.logger.Debug("Entering step.", zap.Stringer("step", step))
	if m.observer != nil {
		m.observer(step)
	}
}

// attempt runs every step once, from the login page to the chat interface.
func (m *Machine) attempt(ctx context.Context, creds Credentials) error {
	for _, tr := range m.transitions() {
		m.enter(tr.step)
		if err := tr.run(ctx, creds); err != nil {
			return fmt.Errorf("login step %s failed: %w", tr.step, err)
		}
	}
	return nil
}

// Run drives the flow until it settles or the attempt budget is spent. An
// exhausted budget is reported through Result, not as an error; the error is
// reserved for fatal conditions (dead browser, cancelled context).
func (m *Machine) Run(ctx context.Context, creds Credentials) (Result, error) {
	policy := retry.Policy{MaxAttempts: m.cfg.MaxAttempts, Delay: m.cfg.RetryDelay}
	m.logger.Info("Starting login process.", zap.Int("max_attempts", policy.MaxAttempts))

	var lastArtifact string
	attempts, err := policy.Do(ctx,
		func(ctx context.Context, attempt int) error {
			m.logger.Info("Login attempt.", zap.Int("attempt", attempt), zap.Int("max_attempts", policy.MaxAttempts))
			return m.attempt(ctx, creds)
		},
		retry.OnFailure(func(attempt int, err error) {
			m.logger.Error("Login attempt failed.", zap.Int("attempt", attempt), zap.Error(err))
			if path := m.captureArtifact(ctx, attempt); path != "" {
				lastArtifact = path
			}
			if url, uerr := m.page.CurrentURL(ctx); uerr == nil {
				m.logger.Info("Page at failure.", zap.String("url", url))
			}
		}),
		retry.BetweenAttempts(func(ctx context.Context, attempt int) error {
			m.logger.Info("Retrying login.", zap.Int("next_attempt", attempt+1))
			return m.resetPage(ctx)
		}),
	)

	var exhausted *retry.ExhaustedError
	switch {
	case err == nil:
		m.enter(StepSettled)
		m.logger.Info("Logged in, chat interface loaded.", zap.Int("attempts", attempts))
		if serr := retry.Sleep(ctx, m.cfg.SettleDelay); serr != nil {
			return Result{}, serr
		}
		return Result{Settled: true, Attempts: attempts}, nil
	case errors.As(err, &exhausted):
		m.enter(StepAborted)
		m.logger.Error("All login attempts failed.", zap.Int("attempts", attempts), zap.String("artifact", lastArtifact))
		return Result{
			Settled:      false,
			Reason:       exhausted.Last.Error(),
			ArtifactPath: lastArtifact,
			Attempts:     attempts,
		}, nil
	default:
		m.enter(StepAborted)
		return Result{}, err
	}
}

func (m *Machine) captureArtifact(ctx context.Context, attempt int) string {
	if m.recorder == nil {
		return ""
	}
	path, err := m.recorder.Capture(ctx, attempt)
	if err != nil {
		m.logger.Warn("Could not save failure screenshot.", zap.Int("attempt", attempt), zap.Error(err))
		return ""
	}
	return path
}

// resetPage soft-reloads, falling back to a fresh navigation. Only fatal
// failures are returned; anything else is logged and the next attempt
// starts from the login page anyway.
func (m *Machine) resetPage(ctx context.Context) error {
	err := m.page.Reload(ctx)
	if err == nil {
		return nil
	}
	if isFatal(ctx, err) {
		return err
	}
	m.logger.Warn("Failed to refresh page, navigating to login page instead.", zap.Error(err))

	if err := m.page.Navigate(ctx, m.cfg.LoginURL); err != nil {
		if isFatal(ctx, err) {
			return err
		}
		m.logger.Error("Failed to reload login page.", zap.Error(err))
	}
	return nil
}

func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return true
	}
	var envErr *browser.EnvironmentError
	return errors.As(err, &envErr)
}
