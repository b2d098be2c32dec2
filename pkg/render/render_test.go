package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		name        string
		language    string
		contentType string
		fileName    string
		content     string
		want        string
	}{
		{
			name:     "explicit language wins",
			language: "go",
			fileName: "script.py",
			want:     "Go",
		},
		{
			name:        "content type",
			contentType: "application/json",
			want:        "JSON",
		},
		{
			name:        "octet-stream ignored",
			contentType: "application/octet-stream",
			fileName:    "main.go",
			want:        "Go",
		},
		{
			name:     "file name",
			fileName: "Makefile",
			want:     "Base Makefile",
		},
		{
			name:    "content analysis",
			content: "#!/bin/bash\necho hi",
			want:    "Bash",
		},
		{
			name: "all empty",
			want: "plaintext",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DetectLanguage(c.language, c.contentType, c.fileName, c.content)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestHighlighter(t *testing.T) {
	h := NewHighlighter("monokai", 0)

	t.Run("renders known language", func(t *testing.T) {
		res, err := h.Render("package main", "Go")
		require.NoError(t, err)
		assert.Equal(t, "Go", res.Language)
		assert.Contains(t, res.HTML, "qh-")
		assert.Contains(t, res.HTML, "main")
	})

	t.Run("unknown language falls back to plaintext", func(t *testing.T) {
		res, err := h.Render("hello", "no-such-language")
		require.NoError(t, err)
		assert.Equal(t, "plaintext", res.Language)
	})

	t.Run("oversized content renders plain", func(t *testing.T) {
		capped := NewHighlighter("monokai", 4)
		res, err := capped.Render("package main", "Go")
		require.NoError(t, err)
		assert.Equal(t, "plaintext", res.Language)
	})

	t.Run("stylesheet is non-empty", func(t *testing.T) {
		css, err := h.CSS()
		require.NoError(t, err)
		assert.Contains(t, css, "qh-")
	})
}

func TestPlain(t *testing.T) {
	res, err := Plain{}.Render("<script>alert(1)</script>", "")
	require.NoError(t, err)
	assert.Equal(t, "plaintext", res.Language)
	assert.True(t, strings.HasPrefix(res.HTML, "<pre>"))
	assert.NotContains(t, res.HTML, "<script>")

	css, err := Plain{}.CSS()
	require.NoError(t, err)
	assert.Empty(t, css)
}
