package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/quill/internal/config"
	intdb "github.com/hashicorp-forge/quill/internal/db"
	"github.com/hashicorp-forge/quill/internal/server"
	"github.com/hashicorp-forge/quill/pkg/document"
	"github.com/hashicorp-forge/quill/pkg/keygen"
	"github.com/hashicorp-forge/quill/pkg/models"
	"github.com/hashicorp-forge/quill/pkg/render"
	"github.com/hashicorp-forge/quill/pkg/storage"
	"github.com/hashicorp-forge/quill/pkg/token"
	"github.com/hashicorp-forge/quill/pkg/webhook"
)

func newTestServer(t *testing.T) (server.Server, http.Handler) {
	t.Helper()

	cfg := config.Default(filepath.Join(t.TempDir(), "quill.db"))
	require.NoError(t, cfg.Validate())

	gormDB, err := intdb.NewDB(cfg.Database)
	require.NoError(t, err)

	tokens, err := token.NewService("test-secret", 0)
	require.NoError(t, err)
	keys, err := keygen.New(cfg.Documents.KeyLength)
	require.NoError(t, err)

	store := storage.New(gormDB, nil)
	hooks := webhook.NewDispatcher(webhook.Config{
		Timeout:        time.Second,
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
	}, nil)

	srv := server.Server{
		Config: cfg,
		DB:     gormDB,
		Documents: document.NewService(store, tokens, keys, hooks, nil, document.Config{
			PublicRead: cfg.Documents.PublicReadEnabled(),
		}),
		Renderer: render.NewHighlighter(cfg.Render.Style, 0),
		Logger:   hclog.NewNullLogger(),
	}
	return srv, New(srv)
}

func do(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// createDocument posts a single python file and returns the response.
func createDocument(t *testing.T, handler http.Handler) DocumentResponse {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/documents?filename=main.py&language=python",
		strings.NewReader("print('hi')"))
	rec := do(handler, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	doc := decodeBody[DocumentResponse](t, rec)
	require.NotEmpty(t, doc.Key)
	require.NotEmpty(t, doc.Token)
	return doc
}

func TestCreateDocument(t *testing.T) {
	_, handler := newTestServer(t)

	doc := createDocument(t, handler)
	assert.Len(t, doc.Key, keygen.DefaultLength)
	assert.Equal(t, int64(0), doc.Version)
	assert.Contains(t, doc.URL, doc.Key)
	require.Len(t, doc.Files, 1)
	assert.Equal(t, "main.py", doc.Files[0].Name)
	assert.Equal(t, "print('hi')", doc.Files[0].Content)
	assert.Equal(t, "Python", doc.Files[0].Language)
	assert.Contains(t, doc.VersionLabel, "(original)")
	assert.NotEmpty(t, doc.VersionTime)

	t.Run("language header sets the language", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader("x = 1"))
		req.Header.Set("Language", "python")
		rec := do(handler, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		got := decodeBody[DocumentResponse](t, rec)
		assert.Equal(t, "Python", got.Files[0].Language)
	})

	t.Run("empty body is rejected", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodPost, "/documents", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("expiry must be in the future", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents?expires=2001-01-01T00:00:00Z",
			strings.NewReader("content"))
		rec := do(handler, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unparseable expiry is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents?expires=whenever",
			strings.NewReader("content"))
		rec := do(handler, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateDocumentMultipart(t *testing.T) {
	_, handler := newTestServer(t)

	var body bytes.Buffer
	mpw := multipart.NewWriter(&body)
	part, err := mpw.CreateFormFile("file-0", "main.go")
	require.NoError(t, err)
	_, _ = part.Write([]byte("package main"))
	part, err = mpw.CreateFormFile("file-1", "README.md")
	require.NoError(t, err)
	_, _ = part.Write([]byte("# readme"))
	require.NoError(t, mpw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	rec := do(handler, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	doc := decodeBody[DocumentResponse](t, rec)
	require.Len(t, doc.Files, 2)
	assert.Equal(t, "main.go", doc.Files[0].Name)
	assert.Equal(t, "Go", doc.Files[0].Language)
	assert.Equal(t, "README.md", doc.Files[1].Name)

	t.Run("duplicate file names are rejected", func(t *testing.T) {
		var body bytes.Buffer
		mpw := multipart.NewWriter(&body)
		for range 2 {
			part, err := mpw.CreateFormFile("file", "same.txt")
			require.NoError(t, err)
			_, _ = part.Write([]byte("x"))
		}
		require.NoError(t, mpw.Close())

		req := httptest.NewRequest(http.MethodPost, "/documents", &body)
		req.Header.Set("Content-Type", mpw.FormDataContentType())
		rec := do(handler, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCreateDocumentSizeLimit(t *testing.T) {
	srv, handler := newTestServer(t)
	srv.Config.Server.MaxDocumentSize = 16

	req := httptest.NewRequest(http.MethodPost, "/documents",
		strings.NewReader(strings.Repeat("a", 64)))
	rec := do(handler, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGetDocument(t *testing.T) {
	_, handler := newTestServer(t)
	doc := createDocument(t, handler)

	t.Run("round trip", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/documents/"+doc.Key, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		got := decodeBody[DocumentResponse](t, rec)
		assert.Equal(t, doc.Key, got.Key)
		assert.Equal(t, "print('hi')", got.Files[0].Content)
		assert.Empty(t, got.Token)
	})

	t.Run("rendered output on request", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/documents/"+doc.Key+"?render=html", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		got := decodeBody[DocumentResponse](t, rec)
		assert.NotEmpty(t, got.Files[0].Formatted)
		assert.NotEmpty(t, got.CSS)
	})

	t.Run("formatter parameter is accepted too", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/documents/"+doc.Key+"?formatter=html", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		got := decodeBody[DocumentResponse](t, rec)
		assert.NotEmpty(t, got.Files[0].Formatted)
	})

	t.Run("forced language overrides detection", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/documents/"+doc.Key+"?language=ruby", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		got := decodeBody[DocumentResponse](t, rec)
		assert.Equal(t, "Ruby", got.Files[0].Language)
	})

	t.Run("missing key", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/documents/nosuchkey1", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed version", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/documents/"+doc.Key+"/versions/latest", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("never-created version", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/documents/"+doc.Key+"/versions/7", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetExpiredDocument(t *testing.T) {
	srv, handler := newTestServer(t)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, srv.DB.Create(&models.Document{Key: "expired123", ExpiresAt: &past}).Error)
	require.NoError(t, srv.DB.Create(&models.Revision{
		DocumentKey: "expired123",
		Version:     0,
		Files:       []models.File{{Name: "a.txt", Content: "gone", Language: "plaintext"}},
	}).Error)

	rec := do(handler, httptest.NewRequest(http.MethodGet, "/documents/expired123", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateDocument(t *testing.T) {
	_, handler := newTestServer(t)
	doc := createDocument(t, handler)

	t.Run("append with root token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/documents/"+doc.Key+"?filename=main.py&language=python",
			strings.NewReader("print('bye')"))
		req.Header.Set("Authorization", "Bearer "+doc.Token)
		rec := do(handler, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		got := decodeBody[DocumentResponse](t, rec)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("old version is preserved", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/documents/"+doc.Key+"/versions/0", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeBody[DocumentResponse](t, rec)
		assert.Equal(t, "print('hi')", got.Files[0].Content)
	})

	t.Run("version history is newest first", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/documents/"+doc.Key+"/versions", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		versions := decodeBody[[]VersionResponse](t, rec)
		require.Len(t, versions, 2)
		assert.Equal(t, int64(1), versions[0].Version)
		assert.Equal(t, int64(0), versions[1].Version)
	})

	t.Run("no token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPatch, "/documents/"+doc.Key, strings.NewReader("x"))
		rec := do(handler, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token without write permission", func(t *testing.T) {
		shareOnly := shareToken(t, handler, doc, "share")

		req := httptest.NewRequest(http.MethodPatch, "/documents/"+doc.Key, strings.NewReader("x"))
		req.Header.Set("Authorization", "Bearer "+shareOnly)
		rec := do(handler, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestDeleteDocument(t *testing.T) {
	_, handler := newTestServer(t)
	doc := createDocument(t, handler)

	t.Run("requires token", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodDelete, "/documents/"+doc.Key, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("delete removes all versions", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/documents/"+doc.Key, nil)
		req.Header.Set("Authorization", "Bearer "+doc.Token)
		rec := do(handler, req)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = do(handler, httptest.NewRequest(http.MethodGet, "/documents/"+doc.Key, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestGetDocumentFile(t *testing.T) {
	_, handler := newTestServer(t)
	doc := createDocument(t, handler)

	t.Run("by name", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/documents/"+doc.Key+"/files/main.py", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		file := decodeBody[FileResponse](t, rec)
		assert.Equal(t, "print('hi')", file.Content)
	})

	t.Run("missing file", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/documents/"+doc.Key+"/files/nope.txt", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRawDocument(t *testing.T) {
	_, handler := newTestServer(t)
	doc := createDocument(t, handler)

	t.Run("single file is plain text", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/raw/"+doc.Key, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "print('hi')", rec.Body.String())
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	})

	t.Run("raw file by name", func(t *testing.T) {
		rec := do(handler, httptest.NewRequest(http.MethodGet, "/raw/"+doc.Key+"/files/main.py", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "print('hi')", rec.Body.String())
		assert.Equal(t, "Python", rec.Header().Get("Language"))
	})

	t.Run("multi-file document is multipart", func(t *testing.T) {
		var body bytes.Buffer
		mpw := multipart.NewWriter(&body)
		for i, name := range []string{"a.txt", "b.txt"} {
			part, err := mpw.CreateFormFile(fmt.Sprintf("file-%d", i), name)
			require.NoError(t, err)
			_, _ = part.Write([]byte("content of " + name))
		}
		require.NoError(t, mpw.Close())

		req := httptest.NewRequest(http.MethodPost, "/documents", &body)
		req.Header.Set("Content-Type", mpw.FormDataContentType())
		rec := do(handler, req)
		require.Equal(t, http.StatusCreated, rec.Code)
		multi := decodeBody[DocumentResponse](t, rec)

		rec = do(handler, httptest.NewRequest(http.MethodGet, "/raw/"+multi.Key, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		mediaType := rec.Header().Get("Content-Type")
		require.Contains(t, mediaType, "multipart/form-data")
		_, params, err := mime.ParseMediaType(mediaType)
		require.NoError(t, err)

		mr := multipart.NewReader(rec.Body, params["boundary"])
		names := []string{}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			names = append(names, part.FileName())
		}
		assert.Equal(t, []string{"a.txt", "b.txt"}, names)
	})
}

func TestShareDocument(t *testing.T) {
	_, handler := newTestServer(t)
	doc := createDocument(t, handler)

	t.Run("derived token carries only requested permissions", func(t *testing.T) {
		writeOnly := shareToken(t, handler, doc, "write")

		req := httptest.NewRequest(http.MethodPatch, "/documents/"+doc.Key, strings.NewReader("updated"))
		req.Header.Set("Authorization", "Bearer "+writeOnly)
		rec := do(handler, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		req = httptest.NewRequest(http.MethodDelete, "/documents/"+doc.Key, nil)
		req.Header.Set("Authorization", "Bearer "+writeOnly)
		rec = do(handler, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("escalation is forbidden", func(t *testing.T) {
		limited := shareToken(t, handler, doc, "share")

		body, _ := json.Marshal(ShareRequest{Permissions: []string{"delete"}})
		req := httptest.NewRequest(http.MethodPost, "/documents/"+doc.Key+"/share", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+limited)
		rec := do(handler, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unknown permission name", func(t *testing.T) {
		body, _ := json.Marshal(ShareRequest{Permissions: []string{"fly"}})
		req := httptest.NewRequest(http.MethodPost, "/documents/"+doc.Key+"/share", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+doc.Token)
		rec := do(handler, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("token is checked before permission names", func(t *testing.T) {
		body, _ := json.Marshal(ShareRequest{Permissions: []string{"fly"}})
		req := httptest.NewRequest(http.MethodPost, "/documents/"+doc.Key+"/share", bytes.NewReader(body))
		rec := do(handler, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed body reports the decode error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/documents/"+doc.Key+"/share", strings.NewReader("{"))
		req.Header.Set("Authorization", "Bearer "+doc.Token)
		rec := do(handler, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "malformed request body")
	})
}

// shareToken derives a token with the given permissions via the share
// endpoint, using the document's root token.
func shareToken(t *testing.T, handler http.Handler, doc DocumentResponse, permissions ...string) string {
	t.Helper()

	body, err := json.Marshal(ShareRequest{Permissions: permissions})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/documents/"+doc.Key+"/share", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+doc.Token)
	rec := do(handler, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	return decodeBody[ShareResponse](t, rec).Token
}

func TestHealth(t *testing.T) {
	_, handler := newTestServer(t)
	rec := do(handler, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStylesheet(t *testing.T) {
	_, handler := newTestServer(t)
	rec := do(handler, httptest.NewRequest(http.MethodGet, "/assets/highlight.css", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
	assert.NotEmpty(t, rec.Body.String())
}
