// File: internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/parley-cli/internal/browser"
	"github.com/xkilldash9x/parley-cli/internal/config"
	"github.com/xkilldash9x/parley-cli/internal/conversation"
)

const defaultStartTimeout = 30 * time.Second

// Session owns one Chrome process, its disposable profile directory and the
// conversation recorded through it. Close releases all of it exactly once.
type Session struct {
	id         string
	page       browser.Page
	log        *conversation.Log
	profileDir string
	logger     *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	closeOnce sync.Once
	// terminate asks the browser to shut down gracefully; nil after a partial Open.
	terminate     func(ctx context.Context) error
	removeProfile func(path string) error
}

// Open creates a fresh profile directory and starts Chrome with it. Any
// failure releases what was created and is reported as an EnvironmentError.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New().String()
	s := &Session{
		id:            id,
		log:           conversation.NewLog(),
		logger:        logger.Named("session").With(zap.String("session_id", id)),
		removeProfile: os.RemoveAll,
	}

	dir, err := makeProfileDir(cfg.ProfileBaseDir)
	if err != nil {
		return nil, &browser.EnvironmentError{Op: "create profile directory", Err: err}
	}
	s.profileDir = dir
	s.logger.Debug("Created browser profile directory.", zap.String("path", dir))

	// The browser must outlive an interrupt long enough for Close to shut it down.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocatorOptions(cfg, dir)...)
	s.allocCancel = allocCancel

	sugar := s.logger.Named("cdp").Sugar()
	s.browserCtx, s.browserCancel = chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	if err := s.start(ctx, cfg.StartTimeout); err != nil {
		_ = s.Close(context.Background())
		return nil, &browser.EnvironmentError{Op: "start browser", Err: err}
	}

	s.terminate = s.gracefulTerminate
	s.attachPage(cfg.ActionTimeout)
	s.logger.Info("Browser session started.", zap.Bool("headless", cfg.Headless))
	return s, nil
}

// attachPage binds the page to the browser tab. Page logs carry the session id.
func (s *Session) attachPage(actionTimeout time.Duration) {
	s.page = browser.NewCDPPage(s.browserCtx, s.logger, actionTimeout)
}

// start launches the browser. The first Run must use the browser context
// itself, so the start timeout is enforced from the outside.
func (s *Session) start(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultStartTimeout
	}
	errCh := make(chan error, 1)
	go func() { errCh <- chromedp.Run(s.browserCtx) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("browser did not start within %v", timeout)
	}
}

func makeProfileDir(base string) (string, error) {
	if base != "" {
		expanded, err := homedir.Expand(base)
		if err != nil {
			return "", fmt.Errorf("expanding profile base dir: %w", err)
		}
		if err := os.MkdirAll(expanded, 0700); err != nil {
			return "", err
		}
		base = expanded
	}
	return os.MkdirTemp(base, "parley-profile-")
}

// chromeFlags returns the command-line switches passed to Chrome, keyed
// without their leading dashes. Extra args may be "name" or "name=value".
func chromeFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"no-sandbox":                  true,
		"disable-dev-shm-usage":       true,
		"disable-gpu":                 true,
		"disable-extensions":          true,
		"disable-software-rasterizer": true,
		// chromedp's defaults are headless; a false value drops the switch.
		"headless": cfg.Headless,
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
		if arg == "" {
			continue
		}
		if key, value, ok := strings.Cut(arg, "="); ok {
			flags[key] = value
			continue
		}
		flags[arg] = true
	}
	return flags
}

func allocatorOptions(cfg config.BrowserConfig, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range chromeFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return append(opts, chromedp.UserDataDir(profileDir))
}

func (s *Session) ID() string             { return s.id }
func (s *Session) Page() browser.Page     { return s.page }
func (s *Session) Log() *conversation.Log { return s.log }
func (s *Session) ProfileDir() string     { return s.profileDir }

func (s *Session) gracefulTerminate(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.browserCtx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("graceful browser shutdown: %w", ctx.Err())
	}
}

// Close shuts the browser down and deletes the profile directory. It is
// nil-safe, idempotent and works after a partial Open. Failures are logged,
// never returned, so callers can always defer it.
func (s *Session) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.logger.Info("Closing browser session.")

		if s.terminate != nil {
			if err := s.terminate(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("Graceful browser shutdown failed, forcing.", zap.Error(err))
			}
		}
		if s.browserCancel != nil {
			s.browserCancel()
		}
		// Cancelling the allocator kills the process and waits for it to exit.
		if s.allocCancel != nil {
			s.allocCancel()
		}

		if s.profileDir != "" && s.removeProfile != nil {
			if err := s.removeProfile(s.profileDir); err != nil {
				s.logger.Warn("Failed to remove browser profile directory.", zap.String("path", s.profileDir), zap.Error(err))
			} else {
				s.logger.Debug("Removed browser profile directory.", zap.String("path", s.profileDir))
			}
		}
	})
	return nil
}
