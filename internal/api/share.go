package api

import (
	"net/http"

	"github.com/hashicorp-forge/quill/internal/server"
)

type ShareRequest struct {
	Permissions []string `json:"permissions"`
}

type ShareResponse struct {
	Token string `json:"token"`
}

// ShareDocumentHandler derives a narrowed token for a document. The
// presented token must hold the share permission and every requested
// permission.
func ShareDocumentHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ShareRequest
		if err := decodeRequest(r, &req); err != nil {
			respondError(srv, w, r, err)
			return
		}

		derived, err := srv.Documents.Share(r.Context(), r.PathValue("key"), bearerToken(r), req.Permissions)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		respond(w, http.StatusOK, ShareResponse{Token: derived})
	})
}
