package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/quill/pkg/models"
)

// CreateWebhook registers a webhook on a document. It fails with
// ErrNotFound if the document is absent or expired.
func (s *Store) CreateWebhook(ctx context.Context, key, url, secret string, events []string) (*models.Webhook, error) {
	db := s.db.WithContext(ctx)
	if err := s.checkDocument(db, key); err != nil {
		return nil, err
	}

	webhook := &models.Webhook{
		DocumentKey: key,
		URL:         url,
		Secret:      secret,
		Events:      strings.Join(events, ","),
	}
	if err := db.Create(webhook).Error; err != nil {
		return nil, fmt.Errorf("error creating webhook: %w", err)
	}
	return webhook, nil
}

// GetWebhook retrieves a webhook by document key, ID, and secret. A secret
// mismatch is indistinguishable from an absent webhook.
func (s *Store) GetWebhook(ctx context.Context, key string, id uuid.UUID, secret string) (*models.Webhook, error) {
	var webhook models.Webhook
	err := s.db.WithContext(ctx).
		First(&webhook, "document_key = ? AND id = ? AND secret = ?", key, id, secret).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error loading webhook: %w", err)
	}
	return &webhook, nil
}

// UpdateWebhook modifies a webhook's URL, secret, or events. Empty values
// leave the corresponding field unchanged.
func (s *Store) UpdateWebhook(ctx context.Context, key string, id uuid.UUID, secret, newURL, newSecret string, newEvents []string) (*models.Webhook, error) {
	webhook, err := s.GetWebhook(ctx, key, id, secret)
	if err != nil {
		return nil, err
	}

	if newURL != "" {
		webhook.URL = newURL
	}
	if newSecret != "" {
		webhook.Secret = newSecret
	}
	if len(newEvents) > 0 {
		webhook.Events = strings.Join(newEvents, ",")
	}

	if err := s.db.WithContext(ctx).Save(webhook).Error; err != nil {
		return nil, fmt.Errorf("error updating webhook: %w", err)
	}
	return webhook, nil
}

// DeleteWebhook removes a webhook registration.
func (s *Store) DeleteWebhook(ctx context.Context, key string, id uuid.UUID, secret string) error {
	res := s.db.WithContext(ctx).
		Where("document_key = ? AND id = ? AND secret = ?", key, id, secret).
		Delete(&models.Webhook{})
	if res.Error != nil {
		return fmt.Errorf("error deleting webhook: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// WebhooksForDocument returns all webhooks registered on a document. Used
// by the dispatcher; no expiry check, since delete events fire for
// documents that are already gone.
func (s *Store) WebhooksForDocument(ctx context.Context, key string) ([]models.Webhook, error) {
	var webhooks models.Webhooks
	if err := webhooks.FindByDocument(s.db.WithContext(ctx), key); err != nil {
		return nil, fmt.Errorf("error listing webhooks: %w", err)
	}
	return webhooks, nil
}
