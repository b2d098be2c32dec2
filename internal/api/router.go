// Package api implements the HTTP surface of the server. Handlers parse
// and validate requests, call the document service, and map its errors
// onto status codes; all authorization decisions live in the service.
package api

import (
	"net/http"

	"github.com/hashicorp-forge/quill/internal/server"
)

// New returns the routing handler for the full API.
func New(srv server.Server) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", HealthHandler(srv))
	mux.Handle("GET /assets/highlight.css", StylesheetHandler(srv))

	mux.Handle("POST /documents", CreateDocumentHandler(srv))
	mux.Handle("GET /documents/{key}", GetDocumentHandler(srv))
	mux.Handle("PATCH /documents/{key}", UpdateDocumentHandler(srv))
	mux.Handle("DELETE /documents/{key}", DeleteDocumentHandler(srv))
	mux.Handle("GET /documents/{key}/versions", ListVersionsHandler(srv))
	mux.Handle("GET /documents/{key}/versions/{version}", GetDocumentHandler(srv))
	mux.Handle("GET /documents/{key}/files/{name}", GetDocumentFileHandler(srv))
	mux.Handle("GET /documents/{key}/versions/{version}/files/{name}", GetDocumentFileHandler(srv))
	mux.Handle("POST /documents/{key}/share", ShareDocumentHandler(srv))

	mux.Handle("POST /documents/{key}/webhooks", CreateWebhookHandler(srv))
	mux.Handle("GET /documents/{key}/webhooks/{id}", GetWebhookHandler(srv))
	mux.Handle("PATCH /documents/{key}/webhooks/{id}", UpdateWebhookHandler(srv))
	mux.Handle("DELETE /documents/{key}/webhooks/{id}", DeleteWebhookHandler(srv))

	mux.Handle("GET /raw/{key}", RawDocumentHandler(srv))
	mux.Handle("GET /raw/{key}/versions/{version}", RawDocumentHandler(srv))
	mux.Handle("GET /raw/{key}/files/{name}", RawFileHandler(srv))
	mux.Handle("GET /raw/{key}/versions/{version}/files/{name}", RawFileHandler(srv))

	return rateLimit(srv, mux)
}

// HealthHandler reports server liveness and database reachability.
func HealthHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if srv.DB != nil {
			sqlDB, err := srv.DB.DB()
			if err == nil {
				err = sqlDB.PingContext(r.Context())
			}
			if err != nil {
				srv.Logger.Error("health check failed", "error", err)
				respond(w, http.StatusServiceUnavailable, errorResponse{Message: "database unreachable"})
				return
			}
		}
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// StylesheetHandler serves the stylesheet referenced by rendered
// document markup.
func StylesheetHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		css, err := srv.Renderer.CSS()
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		_, _ = w.Write([]byte(css))
	})
}
