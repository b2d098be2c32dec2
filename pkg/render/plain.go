package render

import "html"

// Plain renders content as escaped preformatted text with no highlighting.
// Used when the server runs with highlighting disabled.
type Plain struct{}

// Render implements Renderer.
func (Plain) Render(content, language string) (*Result, error) {
	if language == "" {
		language = "plaintext"
	}
	return &Result{
		HTML:     "<pre>" + html.EscapeString(content) + "</pre>",
		Language: language,
	}, nil
}

// CSS implements Renderer.
func (Plain) CSS() (string, error) {
	return "", nil
}
