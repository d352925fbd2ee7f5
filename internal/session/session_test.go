// File: internal/session/session_test.go
package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/parley-cli/internal/browser"
	"github.com/xkilldash9x/parley-cli/internal/config"
	"github.com/xkilldash9x/parley-cli/internal/conversation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newFakeSession builds a session with a real profile directory but no browser.
func newFakeSession(t *testing.T, logger *zap.Logger) (*Session, *int) {
	t.Helper()
	dir, err := os.MkdirTemp(t.TempDir(), "parley-profile-")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cookies"), []byte("x"), 0600))

	terminated := 0
	return &Session{
		id:            "test-session",
		log:           conversation.NewLog(),
		profileDir:    dir,
		logger:        logger,
		removeProfile: os.RemoveAll,
		terminate: func(context.Context) error {
			terminated++
			return nil
		},
	}, &terminated
}

func TestClose_RemovesProfileAndIsIdempotent(t *testing.T) {
	s, terminated := newFakeSession(t, zaptest.NewLogger(t))
	allocCancelled := 0
	s.allocCancel = func() { allocCancelled++ }

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, 1, *terminated)
	assert.Equal(t, 1, allocCancelled)
	_, err := os.Stat(s.ProfileDir())
	assert.True(t, os.IsNotExist(err), "profile directory must be gone")
}

func TestClose_NilSession(t *testing.T) {
	var s *Session
	assert.NoError(t, s.Close(context.Background()))
}

func TestClose_AfterPartialOpen(t *testing.T) {
	s, _ := newFakeSession(t, zaptest.NewLogger(t))
	s.terminate = nil

	assert.NoError(t, s.Close(context.Background()))
	_, err := os.Stat(s.ProfileDir())
	assert.True(t, os.IsNotExist(err))
}

func TestClose_FailuresAreLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s, _ := newFakeSession(t, zap.New(core))
	s.terminate = func(context.Context) error { return errors.New("browser hung") }
	s.removeProfile = func(string) error { return errors.New("permission denied") }

	assert.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 1, logs.FilterMessage("Graceful browser shutdown failed, forcing.").Len())
	assert.Equal(t, 1, logs.FilterMessage("Failed to remove browser profile directory.").Len())
}

func TestClose_RemovesProfileEvenWhenTerminationFails(t *testing.T) {
	s, _ := newFakeSession(t, zaptest.NewLogger(t))
	s.terminate = func(context.Context) error { return errors.New("websocket gone") }

	assert.NoError(t, s.Close(context.Background()))
	_, err := os.Stat(s.ProfileDir())
	assert.True(t, os.IsNotExist(err))
}

func TestMakeProfileDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "profiles")

	first, err := makeProfileDir(base)
	require.NoError(t, err)
	second, err := makeProfileDir(base)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "every session gets its own profile")
	assert.Equal(t, base, filepath.Dir(first))
	assert.Contains(t, filepath.Base(first), "parley-profile-")
}

func TestChromeFlags(t *testing.T) {
	cfg := config.NewDefaultConfig().Browser()
	cfg.Args = []string{"--lang=en-US", "mute-audio", "  ", "--proxy-server=socks5://127.0.0.1:9050"}

	flags := chromeFlags(cfg)
	for _, name := range []string{"no-sandbox", "disable-dev-shm-usage", "disable-gpu", "disable-extensions", "disable-software-rasterizer", "mute-audio"} {
		assert.Equal(t, true, flags[name], name)
	}
	assert.Equal(t, false, flags["headless"])
	assert.Equal(t, "en-US", flags["lang"])
	assert.Equal(t, "socks5://127.0.0.1:9050", flags["proxy-server"])
	assert.NotContains(t, flags, "")

	cfg.Headless = true
	assert.Equal(t, true, chromeFlags(cfg)["headless"])
}

func TestAttachPage_LogsCarrySessionID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s, _ := newFakeSession(t, zap.New(core).With(zap.String("session_id", "test-session")))
	s.browserCtx = context.Background()
	s.attachPage(time.Second)

	// Without a browser behind the tab the navigation fails, but it is logged first.
	require.Error(t, s.Page().Navigate(context.Background(), "about:blank"))

	entries := logs.FilterMessage("Navigating.").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "test-session", entries[0].ContextMap()["session_id"])
}

// TestOpen_RealChrome exercises the full lifecycle against an installed Chrome.
func TestOpen_RealChrome(t *testing.T) {
	if os.Getenv("PARLEY_CHROME_TESTS") != "1" {
		t.Skip("set PARLEY_CHROME_TESTS=1 to run against a local Chrome")
	}

	cfg := config.NewDefaultConfig().Browser()
	cfg.Headless = true
	cfg.ProfileBaseDir = t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s, err := Open(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())

	require.NoError(t, s.Page().Navigate(ctx, "data:text/html,<body><p id='x'>hi</p></body>"))
	state, err := s.Page().Probe(ctx, "#x")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Count)
	assert.Equal(t, "hi", state.LastText)

	xpath, err := s.Page().Probe(ctx, "//p")
	require.NoError(t, err)
	assert.Equal(t, 1, xpath.Count)

	require.NoError(t, s.Close(ctx))
	_, err = os.Stat(s.ProfileDir())
	assert.True(t, os.IsNotExist(err))

	_, err = s.Page().Probe(ctx, "#x")
	var envErr *browser.EnvironmentError
	assert.ErrorAs(t, err, &envErr, "a closed session reports a dead environment")
}
