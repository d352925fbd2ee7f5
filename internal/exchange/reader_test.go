// File: internal/exchange/reader_test.go
package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/parley-cli/internal/browser"
	"github.com/xkilldash9x/parley-cli/internal/browser/browsertest"
)

func TestTextReader(t *testing.T) {
	got, err := TextReader{}.Read(browser.ElementState{LastText: "\n  Hi there \n"})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", got)
}

func TestMarkdownReader(t *testing.T) {
	html := `<div class="markdown prose">
<h2>Steps</h2>
<p>Run the <strong>tests</strong> with <em>care</em>, see <a href="https://go.dev">docs</a>.</p>
<ol><li>Install</li><li>Run</li></ol>
<ul><li>fast</li><li>cheap</li></ul>
<pre><div class="header">go<button>Copy code</button></div><code class="hljs language-go">fmt.Println("hi")
</code></pre>
</div>`

	got, err := MarkdownReader{}.Read(browser.ElementState{LastHTML: html})
	require.NoError(t, err)

	want := "## Steps\n\n" +
		"Run the **tests** with _care_, see [docs](https://go.dev).\n\n" +
		"1. Install\n2. Run\n\n" +
		"- fast\n- cheap\n\n" +
		"```go\nfmt.Println(\"hi\")\n```"
	assert.Equal(t, want, got)
}

func TestMarkdownReader_Empty(t *testing.T) {
	got, err := MarkdownReader{}.Read(browser.ElementState{LastHTML: "  "})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewResponseReader(t *testing.T) {
	r, err := NewResponseReader("markdown")
	require.NoError(t, err)
	assert.IsType(t, MarkdownReader{}, r)

	r, err = NewResponseReader("")
	require.NoError(t, err)
	assert.IsType(t, TextReader{}, r)
}

func TestPacedInput_TypesEachRune(t *testing.T) {
	page := browsertest.NewPage()
	err := PacedInput{Delay: time.Millisecond}.Enter(context.Background(), page, "#box", "héllo")
	require.NoError(t, err)
	assert.Equal(t, "héllo", page.Text("#box"))
	assert.Equal(t, 5, page.Count("type:#box"))
}

func TestPacedInput_StopsOnCancel(t *testing.T) {
	page := browsertest.NewPage()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := PacedInput{Delay: time.Second}.Enter(ctx, page, "#box", "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, page.Text("#box"))
}

func TestAtomicInput(t *testing.T) {
	page := browsertest.NewPage()
	require.NoError(t, AtomicInput{}.Enter(context.Background(), page, "#box", "all at once"))
	assert.Equal(t, "all at once", page.Text("#box"))
	assert.Equal(t, 1, page.Count("set:#box"))
}

func TestAffordanceOracle(t *testing.T) {
	cond := AffordanceOracle{Selector: "button.speech"}.Done(time.Minute)
	assert.Equal(t, "button.speech", cond.Selector)
	assert.Equal(t, time.Minute, cond.Timeout)
	assert.False(t, cond.Satisfied(browser.ElementState{}))
	assert.True(t, cond.Satisfied(browser.ElementState{Count: 1}))
}
