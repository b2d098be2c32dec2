package api

import (
	"net/http"

	"github.com/hashicorp-forge/quill/internal/server"
	"github.com/hashicorp-forge/quill/pkg/models"
)

type WebhookCreateRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

type WebhookUpdateRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

type WebhookResponse struct {
	ID          string   `json:"id"`
	DocumentKey string   `json:"document_key"`
	URL         string   `json:"url"`
	Secret      string   `json:"secret"`
	Events      []string `json:"events"`
}

// CreateWebhookHandler registers a webhook on a document. Requires a
// token with the webhook permission.
func CreateWebhookHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req WebhookCreateRequest
		if err := decodeRequest(r, &req); err != nil {
			respondError(srv, w, r, err)
			return
		}

		wh, err := srv.Documents.CreateWebhook(r.Context(), r.PathValue("key"), bearerToken(r), req.URL, req.Secret, req.Events)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		respond(w, http.StatusCreated, webhookResponse(wh))
	})
}

// GetWebhookHandler returns a webhook registration. Authenticated by
// the webhook secret, not a document token.
func GetWebhookHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wh, err := srv.Documents.GetWebhook(r.Context(), r.PathValue("key"), r.PathValue("id"), webhookSecret(r))
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		respond(w, http.StatusOK, webhookResponse(wh))
	})
}

// UpdateWebhookHandler modifies a webhook registration. Empty fields
// keep their current value.
func UpdateWebhookHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req WebhookUpdateRequest
		if err := decodeRequest(r, &req); err != nil {
			respondError(srv, w, r, err)
			return
		}

		wh, err := srv.Documents.UpdateWebhook(r.Context(), r.PathValue("key"), r.PathValue("id"), webhookSecret(r), req.URL, req.Secret, req.Events)
		if err != nil {
			respondError(srv, w, r, err)
			return
		}
		respond(w, http.StatusOK, webhookResponse(wh))
	})
}

// DeleteWebhookHandler removes a webhook registration.
func DeleteWebhookHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := srv.Documents.DeleteWebhook(r.Context(), r.PathValue("key"), r.PathValue("id"), webhookSecret(r)); err != nil {
			respondError(srv, w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func webhookResponse(wh *models.Webhook) WebhookResponse {
	return WebhookResponse{
		ID:          wh.ID.String(),
		DocumentKey: wh.DocumentKey,
		URL:         wh.URL,
		Secret:      wh.Secret,
		Events:      wh.EventList(),
	}
}
