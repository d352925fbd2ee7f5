// File: internal/exchange/protocol_test.go
package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/parley-cli/internal/browser"
	"github.com/xkilldash9x/parley-cli/internal/browser/browsertest"
	"github.com/xkilldash9x/parley-cli/internal/config"
	"github.com/xkilldash9x/parley-cli/internal/conversation"
	"github.com/xkilldash9x/parley-cli/internal/retry"
	"github.com/xkilldash9x/parley-cli/internal/wait"
)

const responseTimeout = 60 * time.Millisecond

var policy = retry.Policy{MaxAttempts: 2}

type fixture struct {
	page     *browsertest.Page
	log      *conversation.Log
	protocol *Protocol
	sel      config.SelectorsConfig
}

func newFixture(t *testing.T, mutate func(*config.ExchangeConfig), opts ...Option) *fixture {
	t.Helper()
	cfg := config.NewDefaultConfig()
	ex := cfg.Exchange()
	ex.ControlTimeout = 50 * time.Millisecond
	ex.SettleDelay = 0
	ex.RetryDelay = 0
	ex.CharDelay = 0
	if mutate != nil {
		mutate(&ex)
	}
	sel := cfg.Selectors()

	page := browsertest.NewPage()
	page.SetState(sel.PromptInput, browsertest.Ready)
	page.SetState(sel.SendButton, browsertest.Ready)

	logger := zaptest.NewLogger(t)
	log := conversation.NewLog()
	p, err := NewProtocol(page, wait.New(page, 5*time.Millisecond, logger), log, sel, ex, logger, opts...)
	require.NoError(t, err)
	return &fixture{page: page, log: log, protocol: p, sel: sel}
}

// replyOnSend makes the page answer with text, and finish streaming, when the prompt is sent.
func (f *fixture) replyOnSend(text string) {
	f.page.On("click:"+f.sel.SendButton, func(p *browsertest.Page) {
		p.SetState(f.sel.Response, browser.ElementState{Count: 1, Visible: true, LastText: text, LastHTML: "<div><p>" + text + "</p></div>"})
		p.SetState(f.sel.CompletionMarker, browsertest.Ready)
	})
}

func TestSendPrompt_Success(t *testing.T) {
	f := newFixture(t, nil)
	f.replyOnSend("Hi there")

	res, err := f.protocol.SendPrompt(context.Background(), "Hello", policy, responseTimeout)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "Hi there", res.Text)
	assert.Equal(t, 1, res.Attempts)

	want := []conversation.Turn{
		{Role: conversation.RoleUser, Content: "Hello"},
		{Role: conversation.RoleAssistant, Content: "Hi there"},
	}
	if diff := cmp.Diff(want, f.log.All()); diff != "" {
		t.Errorf("log mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Hello", f.page.Text(f.sel.PromptInput))
	assert.Equal(t, 1, f.page.Count("clear:"+f.sel.PromptInput))
	assert.Equal(t, len("Hello"), f.page.Count("type:"+f.sel.PromptInput), "paced input types one character at a time")
}

func TestSendPrompt_StalledStreamNeverSucceeds(t *testing.T) {
	f := newFixture(t, nil)
	// The reply starts but the completion affordance never appears.
	f.page.On("click:"+f.sel.SendButton, func(p *browsertest.Page) {
		p.SetState(f.sel.Response, browser.ElementState{Count: 1, LastText: "Partial answ"})
	})

	res, err := f.protocol.SendPrompt(context.Background(), "Hello", policy, responseTimeout)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, 2, res.Attempts)
	assert.Contains(t, res.Reason, "reply completion")
	assert.Equal(t, 0, f.log.Len(), "a failed exchange appends nothing")
}

func TestSendPrompt_NoNewResponseTimesOut(t *testing.T) {
	f := newFixture(t, nil)
	f.page.SetState(f.sel.Response, browser.ElementState{Count: 2, LastText: "old reply"})
	f.page.SetState(f.sel.CompletionMarker, browsertest.Ready)

	res, err := f.protocol.SendPrompt(context.Background(), "Hello", policy, responseTimeout)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "more than 2 matches")
	assert.Equal(t, 2, f.page.Count("click:"+f.sel.SendButton))
	assert.Equal(t, 0, f.log.Len())
}

func TestSendPrompt_BlankReplyIsEmptyResponse(t *testing.T) {
	f := newFixture(t, nil)
	f.replyOnSend("   ")

	res, err := f.protocol.SendPrompt(context.Background(), "Hello", policy, responseTimeout)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "no response text found")
	assert.Equal(t, 0, f.log.Len())
}

func TestSendPrompt_RetrySucceeds(t *testing.T) {
	f := newFixture(t, nil)
	sends := 0
	f.page.On("click:"+f.sel.SendButton, func(p *browsertest.Page) {
		sends++
		if sends == 2 {
			p.SetState(f.sel.Response, browser.ElementState{Count: 1, LastText: "Second time lucky"})
			p.SetState(f.sel.CompletionMarker, browsertest.Ready)
		}
	})

	res, err := f.protocol.SendPrompt(context.Background(), "Hello", policy, responseTimeout)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 2, f.log.Len(), "exactly one pair despite the retry")
	assert.Equal(t, "Hello", f.page.Text(f.sel.PromptInput), "the composer is cleared before retyping")
}

func TestSendPrompt_DisabledSendButton(t *testing.T) {
	f := newFixture(t, nil)
	f.page.SetState(f.sel.SendButton, browser.ElementState{Count: 1, Visible: true})

	res, err := f.protocol.SendPrompt(context.Background(), "Hello", policy, responseTimeout)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Zero(t, f.page.Count("click:"+f.sel.SendButton))
}

func TestSendPrompt_EnvironmentErrorIsFatal(t *testing.T) {
	f := newFixture(t, nil)
	dead := &browser.EnvironmentError{Op: "probe", Err: errors.New("target closed")}
	f.page.SetProbe(f.sel.Response, func(int) (browser.ElementState, error) { return browser.ElementState{}, dead })

	res, err := f.protocol.SendPrompt(context.Background(), "Hello", policy, responseTimeout)
	assert.ErrorIs(t, err, dead)
	assert.Equal(t, Result{}, res)
}

func TestSendPrompt_ProbeScriptFailureIsRecoverable(t *testing.T) {
	f := newFixture(t, nil)
	f.replyOnSend("Hi there")
	f.page.SetProbe(f.sel.Response, func(int) (browser.ElementState, error) {
		return browser.ElementState{}, errors.New("execution context was destroyed")
	})

	res, err := f.protocol.SendPrompt(context.Background(), "Hello", retry.Policy{MaxAttempts: 3}, responseTimeout)
	require.NoError(t, err)
	assert.False(t, res.OK, "every attempt fails at its first probe")
	assert.Equal(t, 3, res.Attempts)
}

func TestSendPrompt_AtomicInputAndMarkdownReader(t *testing.T) {
	f := newFixture(t, func(c *config.ExchangeConfig) {
		c.InputMode = "atomic"
		c.ReaderMode = "markdown"
	})
	f.page.On("click:"+f.sel.SendButton, func(p *browsertest.Page) {
		p.SetState(f.sel.Response, browser.ElementState{Count: 1, LastHTML: "<div><p>Use <code>go test</code></p></div>"})
		p.SetState(f.sel.CompletionMarker, browsertest.Ready)
	})

	res, err := f.protocol.SendPrompt(context.Background(), "How do I test?", policy, responseTimeout)
	require.NoError(t, err)
	assert.Equal(t, "Use `go test`", res.Text)
	assert.Equal(t, 1, f.page.Count("set:"+f.sel.PromptInput))
	assert.Zero(t, f.page.Count("type:"+f.sel.PromptInput))
}

type fixedOracle struct{ selector string }

func (o fixedOracle) Done(timeout time.Duration) wait.Condition {
	return wait.Present(o.selector, timeout)
}

func TestSendPrompt_CustomOracle(t *testing.T) {
	f := newFixture(t, nil, WithOracle(fixedOracle{selector: "#done"}))
	f.page.On("click:"+f.sel.SendButton, func(p *browsertest.Page) {
		p.SetState(f.sel.Response, browser.ElementState{Count: 1, LastText: "ok"})
		p.SetState("#done", browsertest.Ready)
	})

	res, err := f.protocol.SendPrompt(context.Background(), "ping", policy, responseTimeout)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestNewProtocol_RejectsUnknownModes(t *testing.T) {
	cfg := config.NewDefaultConfig()
	ex := cfg.Exchange()
	ex.InputMode = "telepathy"
	_, err := NewProtocol(browsertest.NewPage(), nil, conversation.NewLog(), cfg.Selectors(), ex, nil)
	assert.Error(t, err)

	ex = cfg.Exchange()
	ex.ReaderMode = "pdf"
	_, err = NewProtocol(browsertest.NewPage(), nil, conversation.NewLog(), cfg.Selectors(), ex, nil)
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))
	long := "0123456789012345678901234567890123456789012345678901234"
	assert.Equal(t, long[:50]+"...", preview(long))
}
