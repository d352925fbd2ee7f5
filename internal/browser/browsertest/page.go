// Package browsertest provides a scripted, in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"sync"

	"github.com/xkilldash9x/parley-cli/internal/browser"
)

// Ready is the state of a single visible, enabled element.
var Ready = browser.ElementState{Count: 1, Visible: true, Enabled: true}

// ProbeFunc computes the state of a selector; n counts probes of that selector, starting at 1.
type ProbeFunc func(n int) (browser.ElementState, error)

// Page is a deterministic browser.Page. Unknown selectors match nothing.
// Actions are recorded as "navigate:<url>", "reload", "click:<selector>",
// "clear:<selector>", "type:<selector>", "set:<selector>", "screenshot" and "url".
type Page struct {
	mu     sync.Mutex
	states map[string]browser.ElementState
	probes map[string]ProbeFunc
	probeN map[string]int
	hooks  map[string][]func(*Page)
	errs   map[string]error
	text   map[string]string
	url    string
	calls  []string

	// PNG is returned by Screenshot.
	PNG []byte
}

var _ browser.Page = (*Page)(nil)

func NewPage() *Page {
	return &Page{
		states: make(map[string]browser.ElementState),
		probes: make(map[string]ProbeFunc),
		probeN: make(map[string]int),
		hooks:  make(map[string][]func(*Page)),
		errs:   make(map[string]error),
		text:   make(map[string]string),
		PNG:    []byte("\x89PNG\r\n\x1a\n"),
	}
}

// SetState fixes what Probe reports for selector.
func (p *Page) SetState(selector string, state browser.ElementState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.probes, selector)
	p.states[selector] = state
}

// SetProbe installs a dynamic probe for selector, replacing any fixed state.
func (p *Page) SetProbe(selector string, fn ProbeFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes[selector] = fn
}

// On registers fn to run after the named action succeeds, e.g. On("click:#login", ...).
func (p *Page) On(action string, fn func(*Page)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks[action] = append(p.hooks[action], fn)
}

// Fail makes the named action return err until cleared with a nil err.
// "navigate" and "reload" match regardless of URL.
func (p *Page) Fail(action string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.errs, action)
		return
	}
	p.errs[action] = err
}

// SetURL changes what CurrentURL reports.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

// Calls returns a copy of every recorded action, in order.
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

// Count returns how many times the recorded action occurred.
func (p *Page) Count(call string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

// Text returns what was typed or set into selector.
func (p *Page) Text(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text[selector]
}

// act records call, checks for an injected failure and runs hooks.
func (p *Page) act(ctx context.Context, errKey, call string, mutate func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.calls = append(p.calls, call)
	if err, ok := p.errs[errKey]; ok {
		p.mu.Unlock()
		return err
	}
	if mutate != nil {
		mutate()
	}
	hooks := append([]func(*Page){}, p.hooks[call]...)
	if errKey != call {
		hooks = append(hooks, p.hooks[errKey]...)
	}
	p.mu.Unlock()

	for _, fn := range hooks {
		fn(p)
	}
	return nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.act(ctx, "navigate", "navigate:"+url, func() { p.url = url })
}

func (p *Page) Reload(ctx context.Context) error {
	return p.act(ctx, "reload", "reload", nil)
}

func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	if err := p.act(ctx, "url", "url", nil); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Probe(ctx context.Context, selector string) (browser.ElementState, error) {
	if err := ctx.Err(); err != nil {
		return browser.ElementState{}, err
	}
	p.mu.Lock()
	p.probeN[selector]++
	n := p.probeN[selector]
	fn, dynamic := p.probes[selector]
	state := p.states[selector]
	p.mu.Unlock()

	if dynamic {
		return fn(n)
	}
	return state, nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	key := "click:" + selector
	return p.act(ctx, key, key, nil)
}

func (p *Page) Clear(ctx context.Context, selector string) error {
	key := "clear:" + selector
	return p.act(ctx, key, key, func() { p.text[selector] = "" })
}

func (p *Page) TypeText(ctx context.Context, selector, text string) error {
	key := "type:" + selector
	return p.act(ctx, key, key, func() { p.text[selector] += text })
}

func (p *Page) SetText(ctx context.Context, selector, text string) error {
	key := "set:" + selector
	return p.act(ctx, key, key, func() { p.text[selector] = text })
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.act(ctx, "screenshot", "screenshot", nil); err != nil {
		return nil, err
	}
	return p.PNG, nil
}
