// File: internal/exchange/reader.go
package exchange

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/xkilldash9x/parley-cli/internal/browser"
)

// ResponseReader extracts reply text from the last matching response element.
type ResponseReader interface {
	Read(state browser.ElementState) (string, error)
}

// TextReader returns the rendered text of the element, as a user would see it.
type TextReader struct{}

func (TextReader) Read(state browser.ElementState) (string, error) {
	return strings.TrimSpace(state.LastText), nil
}

// MarkdownReader converts the element's HTML back into Markdown, keeping
// headings, emphasis, lists, links and fenced code blocks.
type MarkdownReader struct{}

var blankLines = regexp.MustCompile(`\n{3,}`)

func (MarkdownReader) Read(state browser.ElementState) (string, error) {
	if strings.TrimSpace(state.LastHTML) == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(state.LastHTML))
	if err != nil {
		return "", fmt.Errorf("parsing response html: %w", err)
	}

	var b strings.Builder
	renderMarkdown(&b, doc.Find("body"))
	return strings.TrimSpace(blankLines.ReplaceAllString(b.String(), "\n\n")), nil
}

func renderMarkdown(b *strings.Builder, s *goquery.Selection) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		switch name := goquery.NodeName(c); name {
		case "#text":
			b.WriteString(c.Text())
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level, _ := strconv.Atoi(name[1:])
			b.WriteString("\n\n" + strings.Repeat("#", level) + " ")
			renderMarkdown(b, c)
			b.WriteString("\n\n")
		case "p", "div", "blockquote":
			b.WriteString("\n\n")
			if name == "blockquote" {
				b.WriteString("> ")
			}
			renderMarkdown(b, c)
			b.WriteString("\n\n")
		case "br":
			b.WriteString("\n")
		case "strong", "b":
			b.WriteString("**")
			renderMarkdown(b, c)
			b.WriteString("**")
		case "em", "i":
			b.WriteString("_")
			renderMarkdown(b, c)
			b.WriteString("_")
		case "code":
			b.WriteString("`" + c.Text() + "`")
		case "pre":
			renderCodeBlock(b, c)
		case "ul", "ol":
			b.WriteString("\n\n")
			c.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
				if name == "ol" {
					b.WriteString(strconv.Itoa(i+1) + ". ")
				} else {
					b.WriteString("- ")
				}
				var item strings.Builder
				renderMarkdown(&item, li)
				b.WriteString(strings.TrimSpace(blankLines.ReplaceAllString(item.String(), "\n\n")))
				b.WriteString("\n")
			})
			b.WriteString("\n")
		case "a":
			href, _ := c.Attr("href")
			b.WriteString("[")
			renderMarkdown(b, c)
			b.WriteString("](" + href + ")")
		case "button", "svg", "script", "style":
			// UI chrome such as "Copy code" buttons.
		default:
			renderMarkdown(b, c)
		}
	})
}

func renderCodeBlock(b *strings.Builder, pre *goquery.Selection) {
	code := pre.Find("code").First()
	if code.Length() == 0 {
		code = pre
	}
	lang := ""
	if class, ok := code.Attr("class"); ok {
		for _, c := range strings.Fields(class) {
			if strings.HasPrefix(c, "language-") {
				lang = strings.TrimPrefix(c, "language-")
				break
			}
		}
	}
	b.WriteString("\n\n```" + lang + "\n")
	b.WriteString(strings.TrimRight(code.Text(), "\n"))
	b.WriteString("\n```\n\n")
}

// NewResponseReader maps the configured reader mode onto a reader.
func NewResponseReader(mode string) (ResponseReader, error) {
	switch mode {
	case "", "text":
		return TextReader{}, nil
	case "markdown":
		return MarkdownReader{}, nil
	default:
		return nil, fmt.Errorf("unknown reader mode %q", mode)
	}
}
