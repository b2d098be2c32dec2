// Package render turns stored file content into display-ready output.
// Rendering is read-side only; stored content is never modified.
package render

import (
	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// Result is one rendered file.
type Result struct {
	// HTML is the markup for the file content. Token classes reference the
	// stylesheet returned by the renderer's CSS method.
	HTML string
	// Language is the resolved language name, never empty.
	Language string
}

// Renderer produces display output for file content. Implementations must
// be safe for concurrent use.
type Renderer interface {
	// Render formats content in the given language. An unknown or empty
	// language falls back to plain text rather than failing.
	Render(content, language string) (*Result, error)

	// CSS returns the stylesheet the rendered markup references. May be
	// empty for renderers that emit self-contained output.
	CSS() (string, error)
}

// DetectLanguage resolves a language name for a file, trying the strongest
// signal first: the client-provided language, then the content type, then
// the file name, then content analysis. Falls back to "plaintext".
func DetectLanguage(language, contentType, fileName, content string) string {
	var lexer chroma.Lexer
	if language != "" {
		lexer = lexers.Get(language)
	}
	if lexer != nil {
		return lexer.Config().Name
	}

	if contentType != "" && contentType != "application/octet-stream" {
		lexer = lexers.MatchMimeType(contentType)
	}
	if lexer != nil {
		return lexer.Config().Name
	}

	if fileName != "" {
		lexer = lexers.Match(fileName)
	}
	if lexer != nil {
		return lexer.Config().Name
	}

	if content != "" {
		lexer = lexers.Analyse(content)
	}
	if lexer != nil {
		return lexer.Config().Name
	}

	return "plaintext"
}
