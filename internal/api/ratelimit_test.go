package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/quill/internal/config"
)

func TestRateLimit(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.Config.Server.RateLimit = &config.RateLimit{Requests: 2, Window: "1m"}
	require.NoError(t, srv.Config.Validate())
	handler := New(srv)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/documents?filename=a.txt", strings.NewReader("content"))
		return do(handler, req)
	}

	assert.Equal(t, http.StatusCreated, post().Code)
	assert.Equal(t, http.StatusCreated, post().Code)

	rec := post()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")

	t.Run("reads are not limited", func(t *testing.T) {
		for range 5 {
			rec := do(handler, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("disabled without configuration", func(t *testing.T) {
		_, handler := newTestServer(t)
		for range 5 {
			req := httptest.NewRequest(http.MethodPost, "/documents?filename=a.txt", strings.NewReader("content"))
			assert.Equal(t, http.StatusCreated, do(handler, req).Code)
		}
	})
}
