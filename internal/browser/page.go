// File: internal/browser/page.go
package browser

import (
	"context"
	"strings"
)

// ElementState is a read-only snapshot of everything a selector currently matches.
// Visible and Enabled describe the first match (the element a locator resolves to);
// LastText and LastHTML describe the last match, which is where the newest reply lives.
type ElementState struct {
	Count    int    `json:"count"`
	Visible  bool   `json:"visible"`
	Enabled  bool   `json:"enabled"`
	LastText string `json:"lastText"`
	LastHTML string `json:"lastHTML"`
}

// Present reports whether at least one element matched.
func (s ElementState) Present() bool { return s.Count > 0 }

// Interactive reports whether the first match can be clicked or typed into.
func (s ElementState) Interactive() bool { return s.Count > 0 && s.Visible && s.Enabled }

// Page is the small slice of a browser tab the engine drives. The chromedp
// implementation is CDPPage; tests use a scripted fake.
type Page interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// Reload performs a soft refresh of the current document.
	Reload(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)

	// Probe evaluates selector without touching the page.
	Probe(ctx context.Context, selector string) (ElementState, error)

	Click(ctx context.Context, selector string) error
	// Clear empties a text input, textarea or contenteditable element.
	Clear(ctx context.Context, selector string) error
	// TypeText dispatches real key events for text into selector.
	TypeText(ctx context.Context, selector, text string) error
	// SetText replaces the content of selector in a single step.
	SetText(ctx context.Context, selector, text string) error

	// Screenshot captures the visible viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
}

// IsXPath reports whether selector should be evaluated as an XPath expression.
func IsXPath(selector string) bool {
	s := strings.TrimSpace(selector)
	return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(")
}
