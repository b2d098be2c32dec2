package render

import (
	"bytes"
	"fmt"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// Highlighter renders file content as syntax-highlighted HTML. Markup uses
// CSS classes so one stylesheet covers every rendered file.
type Highlighter struct {
	style     *chroma.Style
	formatter *html.Formatter

	// maxSize caps the content length (in runes) that gets tokenized.
	// Larger files render as plain text to bound CPU per request. Zero
	// means no cap.
	maxSize int
}

// NewHighlighter creates a Highlighter using the named chroma style. An
// unknown style name falls back to the chroma default.
func NewHighlighter(style string, maxSize int) *Highlighter {
	return &Highlighter{
		style: styles.Get(style),
		formatter: html.New(
			html.WithClasses(true),
			html.ClassPrefix("qh-"),
		),
		maxSize: maxSize,
	}
}

// Render implements Renderer.
func (h *Highlighter) Render(content, language string) (*Result, error) {
	lexer := lexers.Get(language)
	if h.maxSize > 0 && len([]rune(content)) > h.maxSize {
		lexer = lexers.Get("plaintext")
	}
	if lexer == nil {
		lexer = lexers.Get("plaintext")
	}

	iterator, err := lexer.Tokenise(nil, content)
	if err != nil {
		return nil, fmt.Errorf("error tokenizing content: %w", err)
	}

	var buf bytes.Buffer
	if err := h.formatter.Format(&buf, h.style, iterator); err != nil {
		return nil, fmt.Errorf("error formatting content: %w", err)
	}

	return &Result{
		HTML:     buf.String(),
		Language: lexer.Config().Name,
	}, nil
}

// CSS implements Renderer.
func (h *Highlighter) CSS() (string, error) {
	var buf bytes.Buffer
	if err := h.formatter.WriteCSS(&buf, h.style); err != nil {
		return "", fmt.Errorf("error writing stylesheet: %w", err)
	}
	return buf.String(), nil
}
