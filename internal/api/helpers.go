package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashicorp-forge/quill/internal/server"
	"github.com/hashicorp-forge/quill/pkg/document"
	"github.com/hashicorp-forge/quill/pkg/storage"
)

type errorResponse struct {
	Message string `json:"message"`
}

// respond writes v as a JSON response with the given status. A nil v
// writes only the status.
func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// respondError maps a service error onto its HTTP status and writes it.
// Unexpected errors are logged and hidden behind a generic message.
func respondError(srv server.Server, w http.ResponseWriter, r *http.Request, err error) {
	logArgs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	}

	var maxBytesErr *http.MaxBytesError

	var status int
	switch {
	case errors.Is(err, document.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, document.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, document.ErrInvalidInput),
		errors.Is(err, storage.ErrNoFiles):
		status = http.StatusBadRequest
	case errors.As(err, &maxBytesErr):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, document.ErrKeySpaceExhausted):
		status = http.StatusServiceUnavailable
	default:
		srv.Logger.Error("request failed", logArgs...)
		respond(w, http.StatusInternalServerError, errorResponse{Message: "internal server error"})
		return
	}

	srv.Logger.Debug("request rejected", append(logArgs, "status", status)...)
	respond(w, status, errorResponse{Message: err.Error()})
}

// decodeRequest decodes the JSON request body into v.
func decodeRequest(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", document.ErrInvalidInput, err)
	}
	return nil
}

// bearerToken extracts the document token from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return auth[7:]
	}
	return ""
}

// webhookSecret extracts the webhook secret from the Authorization
// header, which uses the Secret scheme rather than Bearer.
func webhookSecret(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "secret ") {
		return auth[7:]
	}
	return ""
}

// pathVersion parses the optional version path segment. An absent
// segment means the latest version.
func pathVersion(r *http.Request) (*int64, error) {
	raw := r.PathValue("version")
	if raw == "" {
		return nil, nil
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 0 {
		return nil, document.ErrInvalidInput
	}
	return &version, nil
}
