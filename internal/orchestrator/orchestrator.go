// File: internal/orchestrator/orchestrator.go
// Description: Drives one conversation run. The session, auth, exchange and
// persistence components are built per run from configuration; the browser
// session and the transcript store are injected through constructors so tests
// can substitute fakes.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/parley-cli/internal/artifacts"
	"github.com/xkilldash9x/parley-cli/internal/auth"
	"github.com/xkilldash9x/parley-cli/internal/browser"
	"github.com/xkilldash9x/parley-cli/internal/config"
	"github.com/xkilldash9x/parley-cli/internal/conversation"
	"github.com/xkilldash9x/parley-cli/internal/exchange"
	"github.com/xkilldash9x/parley-cli/internal/retry"
	"github.com/xkilldash9x/parley-cli/internal/session"
	"github.com/xkilldash9x/parley-cli/internal/store"
	"github.com/xkilldash9x/parley-cli/internal/transcript"
	"github.com/xkilldash9x/parley-cli/internal/wait"
)

const defaultCloseTimeout = 10 * time.Second

// ErrAuthenticationFailed is returned when every login attempt was used up.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Session is the part of session.Session the run depends on.
type Session interface {
	ID() string
	Page() browser.Page
	Log() *conversation.Log
	Close(ctx context.Context) error
}

// SessionOpener starts a browser session.
type SessionOpener func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Session, error)

// TranscriptStore persists a finished conversation.
type TranscriptStore interface {
	EnsureSchema(ctx context.Context) error
	SaveTranscript(ctx context.Context, sessionID string, turns []conversation.Turn) error
}

// StoreConnector opens a TranscriptStore and returns a function releasing it.
type StoreConnector func(ctx context.Context, url string, logger *zap.Logger) (TranscriptStore, func(), error)

// PromptSource yields the next prompt. previous is nil for the first prompt.
// An empty prompt ends the conversation.
type PromptSource func(ctx context.Context, previous *ExchangeOutcome) (string, error)

// ExchangeOutcome records one prompt and how it went.
type ExchangeOutcome struct {
	Prompt string
	Result exchange.Result
}

// Report summarises a run.
type Report struct {
	SessionID      string
	Auth           auth.Result
	Exchanges      []ExchangeOutcome
	TranscriptPath string
	ExportErr      error
	Stored         bool
}

// Orchestrator runs the login, the prompt loop and the transcript hand-off.
type Orchestrator struct {
	cfg          config.Interface
	logger       *zap.Logger
	open         SessionOpener
	connectStore StoreConnector
	onReply      func(ExchangeOutcome)
	now          func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithSessionOpener(fn SessionOpener) Option {
	return func(o *Orchestrator) { o.open = fn }
}

func WithStoreConnector(fn StoreConnector) Option {
	return func(o *Orchestrator) { o.connectStore = fn }
}

// WithReplyHandler is called after every successful exchange.
func WithReplyHandler(fn func(ExchangeOutcome)) Option {
	return func(o *Orchestrator) { o.onReply = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator backed by real Chrome sessions and PostgreSQL.
func New(cfg config.Interface, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if cfg == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	o := &Orchestrator{
		cfg:          cfg,
		logger:       logger.Named("orchestrator"),
		open:         openChrome,
		connectStore: connectPostgres,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func openChrome(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Session, error) {
	s, err := session.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func connectPostgres(ctx context.Context, url string, logger *zap.Logger) (TranscriptStore, func(), error) {
	s, release, err := store.Connect(ctx, url, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, release, nil
}

// Run executes one conversation. The browser session is closed on every
// path, including cancellation. A failed exchange is recorded in the report
// and the prompt source decides whether to continue.
func (o *Orchestrator) Run(ctx context.Context, creds auth.Credentials, prompts PromptSource) (Report, error) {
	var report Report

	sess, err := o.open(ctx, o.cfg.Browser(), o.logger)
	if err != nil {
		return report, fmt.Errorf("failed to open browser session: %w", err)
	}
	report.SessionID = sess.ID()
	defer o.closeSession(ctx, sess)

	logger := o.logger.With(zap.String("session_id", report.SessionID))
	page := sess.Page()
	waiter := wait.New(page, o.cfg.Browser().PollInterval, logger)

	recorder := artifacts.NewScreenshotRecorder(page, o.cfg.Auth().ArtifactDir, logger)
	machine := auth.NewMachine(page, waiter, recorder, o.cfg.Auth(), o.cfg.Selectors(), logger)
	report.Auth, err = machine.Run(ctx, creds)
	if err != nil {
		return report, fmt.Errorf("login aborted: %w", err)
	}
	if !report.Auth.Settled {
		return report, fmt.Errorf("%w after %d attempts: %s (screenshot: %s)",
			ErrAuthenticationFailed, report.Auth.Attempts, report.Auth.Reason, orNone(report.Auth.ArtifactPath))
	}

	exCfg := o.cfg.Exchange()
	protocol, err := exchange.NewProtocol(page, waiter, sess.Log(), o.cfg.Selectors(), exCfg, logger)
	if err != nil {
		return report, err
	}
	policy := retry.Policy{MaxAttempts: exCfg.MaxAttempts, Delay: exCfg.RetryDelay}

	var previous *ExchangeOutcome
	for {
		prompt, err := prompts(ctx, previous)
		if err != nil {
			return report, fmt.Errorf("failed to read prompt: %w", err)
		}
		if strings.TrimSpace(prompt) == "" {
			break
		}

		res, err := protocol.SendPrompt(ctx, prompt, policy, exCfg.ResponseTimeout)
		if err != nil {
			return report, fmt.Errorf("exchange %d aborted: %w", len(report.Exchanges)+1, err)
		}
		outcome := ExchangeOutcome{Prompt: prompt, Result: res}
		report.Exchanges = append(report.Exchanges, outcome)
		previous = &report.Exchanges[len(report.Exchanges)-1]

		if !res.OK {
			logger.Warn("No response received.", zap.Int("exchange", len(report.Exchanges)), zap.String("reason", res.Reason))
			continue
		}
		if o.onReply != nil {
			o.onReply(outcome)
		}
	}

	o.persist(ctx, logger, sess, &report)
	return report, nil
}

// persist exports the transcript and, when configured, stores it. Failures
// are reported but never undo a completed conversation.
func (o *Orchestrator) persist(ctx context.Context, logger *zap.Logger, sess Session, report *Report) {
	turns := sess.Log().All()
	exportCfg := o.cfg.Export()
	exporter := transcript.NewExporter(exportCfg.AssistantLabel, logger)

	path, err := exporter.Export(turns, exportCfg.Output, exportCfg.ResolvedFormat(), o.now())
	switch {
	case err == nil:
		report.TranscriptPath = path
	case errors.Is(err, transcript.ErrEmptyTranscript):
	default:
		report.ExportErr = err
		logger.Error("Failed to export conversation.", zap.Error(err))
	}

	url := o.cfg.Database().URL
	if url == "" || len(turns) == 0 {
		return
	}
	st, release, err := o.connectStore(ctx, url, logger)
	if err != nil {
		logger.Error("Transcript store unavailable.", zap.Error(err))
		return
	}
	defer release()

	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("Failed to prepare transcript store.", zap.Error(err))
		return
	}
	if err := st.SaveTranscript(ctx, report.SessionID, turns); err != nil {
		logger.Error("Failed to store transcript.", zap.Error(err))
		return
	}
	report.Stored = true
}

// closeSession runs on a context detached from ctx so an interrupt still
// gets a bounded, graceful shutdown.
func (o *Orchestrator) closeSession(ctx context.Context, sess Session) {
	timeout := o.cfg.Browser().CloseTimeout
	if timeout <= 0 {
		timeout = defaultCloseTimeout
	}
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := sess.Close(closeCtx); err != nil {
		o.logger.Warn("Session close reported an error.", zap.Error(err))
	}
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
