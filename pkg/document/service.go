// Package document implements the application service tying together key
// allocation, token checks, versioned storage, and webhook events. HTTP
// handlers call into this package and map its errors to status codes.
package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/quill/pkg/models"
	"github.com/hashicorp-forge/quill/pkg/storage"
	"github.com/hashicorp-forge/quill/pkg/token"
	"github.com/hashicorp-forge/quill/pkg/webhook"
)

// defaultMaxKeyAttempts bounds key allocation retries on collision.
const defaultMaxKeyAttempts = 10

// KeyGenerator produces candidate document keys.
type KeyGenerator interface {
	Generate() (string, error)
}

// Config holds service behavior settings.
type Config struct {
	// MaxKeyAttempts is how many generated keys to try before giving up
	// with ErrKeySpaceExhausted. Zero uses the default.
	MaxKeyAttempts int

	// PublicRead makes read operations token-free: anyone holding a
	// document key may read it. When false, reads require a valid token
	// for the document.
	PublicRead bool
}

// Service is the document application service.
type Service struct {
	store  *storage.Store
	tokens *token.Service
	keys   KeyGenerator
	hooks  *webhook.Dispatcher
	logger hclog.Logger
	cfg    Config
}

// NewService wires up a document service.
func NewService(store *storage.Store, tokens *token.Service, keys KeyGenerator, hooks *webhook.Dispatcher, logger hclog.Logger, cfg Config) *Service {
	if cfg.MaxKeyAttempts <= 0 {
		cfg.MaxKeyAttempts = defaultMaxKeyAttempts
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		store:  store,
		tokens: tokens,
		keys:   keys,
		hooks:  hooks,
		logger: logger.Named("document"),
		cfg:    cfg,
	}
}

// Create stores a new document under a freshly allocated key and returns
// its first revision together with the root token, which carries every
// permission. Key collisions are retried with new keys up to the
// configured attempt limit.
func (s *Service) Create(ctx context.Context, files []storage.FileInput, expiresAt *time.Time) (*models.Revision, string, error) {
	for attempt := 0; attempt < s.cfg.MaxKeyAttempts; attempt++ {
		key, err := s.keys.Generate()
		if err != nil {
			return nil, "", fmt.Errorf("error generating key: %w", err)
		}

		rev, err := s.store.Create(ctx, key, files, expiresAt)
		if errors.Is(err, storage.ErrConflict) {
			s.logger.Warn("document key collision", "key", key, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, "", err
		}

		rootToken, err := s.tokens.Issue(key, token.PermissionAll, 0)
		if err != nil {
			return nil, "", fmt.Errorf("error issuing root token: %w", err)
		}
		return rev, rootToken, nil
	}
	return nil, "", ErrKeySpaceExhausted
}

// Update appends a new revision to an existing document. Requires the
// write permission. Subscribed webhooks receive an update event carrying
// the new revision.
func (s *Service) Update(ctx context.Context, key, bearer string, files []storage.FileInput) (*models.Revision, error) {
	if err := s.authorize(bearer, key, token.PermissionWrite); err != nil {
		return nil, err
	}

	rev, err := s.store.Append(ctx, key, files)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, key, webhook.EventUpdate, rev)
	return rev, nil
}

// Read retrieves one revision of a document. A nil version means the
// latest. Reads are public unless the service is configured otherwise.
func (s *Service) Read(ctx context.Context, key string, version *int64, bearer string) (*models.Revision, error) {
	if err := s.authorizeRead(bearer, key); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, key, version)
}

// ReadFile retrieves a single named file within a revision.
func (s *Service) ReadFile(ctx context.Context, key string, version *int64, name, bearer string) (*models.File, error) {
	if err := s.authorizeRead(bearer, key); err != nil {
		return nil, err
	}
	return s.store.GetFile(ctx, key, version, name)
}

// Versions returns a document's version history, latest first.
func (s *Service) Versions(ctx context.Context, key, bearer string) ([]storage.VersionInfo, error) {
	if err := s.authorizeRead(bearer, key); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, key)
}

// Delete removes a document and all its versions. Requires the delete
// permission. Subscribed webhooks receive a delete event carrying the
// last revision before removal.
func (s *Service) Delete(ctx context.Context, key, bearer string) error {
	if err := s.authorize(bearer, key, token.PermissionDelete); err != nil {
		return err
	}

	// Capture the final state and subscriber list before the delete wipes
	// both.
	last, err := s.store.Get(ctx, key, nil)
	if err != nil {
		return err
	}
	hooks, err := s.store.WebhooksForDocument(ctx, key)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}

	s.hooks.Dispatch(ctx, hooks, webhook.EventDelete, revisionPayload(last))
	return nil
}

// Share derives a new token for the document carrying the requested
// permissions. Requires the share permission, and the requested set must
// not exceed what the presented token itself grants.
func (s *Service) Share(ctx context.Context, key, bearer string, permissionNames []string) (string, error) {
	if err := s.authorize(bearer, key, token.PermissionShare); err != nil {
		return "", err
	}

	requested, err := token.ParsePermissions(permissionNames)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	derived, err := s.tokens.Derive(bearer, requested)
	if err != nil {
		if errors.Is(err, token.ErrMissingPermission) {
			return "", fmt.Errorf("%w: %v", ErrForbidden, err)
		}
		return "", err
	}
	return derived, nil
}

// authorize validates the bearer token against the document and required
// permission, folding token failures into the service error taxonomy.
func (s *Service) authorize(bearer, key string, required token.Permission) error {
	if bearer == "" {
		return ErrUnauthorized
	}

	_, err := s.tokens.Validate(bearer, key, required)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, token.ErrInvalidToken), errors.Is(err, token.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	case errors.Is(err, token.ErrWrongDocument), errors.Is(err, token.ErrMissingPermission):
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	default:
		return err
	}
}

// authorizeRead gates read operations. With public reads enabled any
// bearer, including none, may read; a token is only demanded otherwise.
func (s *Service) authorizeRead(bearer, key string) error {
	if s.cfg.PublicRead {
		return nil
	}
	// Any valid token for this document grants reads; no specific
	// permission bit is required.
	return s.authorize(bearer, key, 0)
}

// notify dispatches an event to the document's subscribed webhooks.
// Lookup failures are logged and swallowed; the triggering operation has
// already succeeded.
func (s *Service) notify(ctx context.Context, key, event string, rev *models.Revision) {
	hooks, err := s.store.WebhooksForDocument(ctx, key)
	if err != nil {
		s.logger.Error("failed to load webhooks for event", "key", key, "event", event, "error", err)
		return
	}
	s.hooks.Dispatch(ctx, hooks, event, revisionPayload(rev))
}

func revisionPayload(rev *models.Revision) webhook.Document {
	files := make([]webhook.File, len(rev.Files))
	for i, f := range rev.Files {
		files[i] = webhook.File{
			Name:     f.Name,
			Content:  f.Content,
			Language: f.Language,
		}
	}
	return webhook.Document{
		Key:     rev.DocumentKey,
		Version: rev.Version,
		Files:   files,
	}
}

// CreateWebhook registers a webhook on a document. Requires the webhook
// permission. The URL, secret, and at least one known event are required.
func (s *Service) CreateWebhook(ctx context.Context, key, bearer, url, secret string, events []string) (*models.Webhook, error) {
	if err := validateWebhookFields(url, secret, events, true); err != nil {
		return nil, err
	}
	if err := s.authorize(bearer, key, token.PermissionWebhook); err != nil {
		return nil, err
	}
	return s.store.CreateWebhook(ctx, key, url, secret, events)
}

// GetWebhook retrieves a webhook. Authentication is by webhook secret,
// not by document token.
func (s *Service) GetWebhook(ctx context.Context, key, id, secret string) (*models.Webhook, error) {
	webhookID, err := parseWebhookID(id)
	if err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, ErrUnauthorized
	}
	return s.store.GetWebhook(ctx, key, webhookID, secret)
}

// UpdateWebhook modifies a webhook's URL, secret, or events. At least one
// field must be supplied; empty fields keep their current value.
func (s *Service) UpdateWebhook(ctx context.Context, key, id, secret, newURL, newSecret string, newEvents []string) (*models.Webhook, error) {
	webhookID, err := parseWebhookID(id)
	if err != nil {
		return nil, err
	}
	if secret == "" {
		return nil, ErrUnauthorized
	}
	if newURL == "" && newSecret == "" && len(newEvents) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if err := validateWebhookFields(newURL, newSecret, newEvents, false); err != nil {
		return nil, err
	}
	return s.store.UpdateWebhook(ctx, key, webhookID, secret, newURL, newSecret, newEvents)
}

// DeleteWebhook removes a webhook registration, authenticated by its
// secret.
func (s *Service) DeleteWebhook(ctx context.Context, key, id, secret string) error {
	webhookID, err := parseWebhookID(id)
	if err != nil {
		return err
	}
	if secret == "" {
		return ErrUnauthorized
	}
	return s.store.DeleteWebhook(ctx, key, webhookID, secret)
}

func parseWebhookID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid webhook id", ErrInvalidInput)
	}
	return parsed, nil
}

// validateWebhookFields checks webhook input. With required set, URL,
// secret, and events must all be present; otherwise only provided fields
// are checked for validity.
func validateWebhookFields(url, secret string, events []string, required bool) error {
	urlRules := []validation.Rule{is.URL}
	var secretRules, eventRules []validation.Rule
	if required {
		urlRules = append([]validation.Rule{validation.Required}, urlRules...)
		secretRules = append(secretRules, validation.Required)
		eventRules = append(eventRules, validation.Required)
	}
	eventRules = append(eventRules, validation.Each(validation.In(webhook.EventUpdate, webhook.EventDelete)))

	err := validation.Errors{
		"url":    validation.Validate(url, urlRules...),
		"secret": validation.Validate(secret, secretRules...),
		"events": validation.Validate(events, eventRules...),
	}.Filter()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
