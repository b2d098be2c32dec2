// Package webhook delivers document lifecycle events to registered
// webhook endpoints.
//
// Delivery is fire-and-forget from the caller's point of view: requests
// never block on webhook endpoints, and a slow or failing endpoint only
// affects its own deliveries. Failed deliveries are retried with capped
// exponential backoff and then dropped.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/quill/pkg/models"
)

// Webhook event names.
const (
	EventUpdate = "update"
	EventDelete = "delete"
)

// Events lists all valid webhook event names.
var Events = []string{EventUpdate, EventDelete}

type (
	// Payload is the JSON body POSTed to a webhook endpoint.
	Payload struct {
		WebhookID string    `json:"webhook_id"`
		Event     string    `json:"event"`
		CreatedAt time.Time `json:"created_at"`
		Document  Document  `json:"document"`
	}

	// Document is the document state carried in a payload. For delete
	// events it is the last state before removal.
	Document struct {
		Key     string `json:"key"`
		Version int64  `json:"version"`
		Files   []File `json:"files"`
	}

	// File is one file of the document in a payload.
	File struct {
		Name     string `json:"name"`
		Content  string `json:"content"`
		Language string `json:"language"`
	}
)

// Config configures a Dispatcher.
type Config struct {
	// Timeout bounds one delivery attempt.
	Timeout time.Duration

	// MaxRetries is the number of re-attempts after a failed delivery.
	MaxRetries uint64

	// InitialBackoff is the delay before the first retry. Subsequent
	// retries back off exponentially.
	InitialBackoff time.Duration
}

// Dispatcher delivers webhook events. Create one per server and call
// Close on shutdown to wait for in-flight deliveries.
type Dispatcher struct {
	client *http.Client
	logger hclog.Logger
	cfg    Config

	wg sync.WaitGroup
}

// NewDispatcher creates a Dispatcher. Zero config fields get sensible
// defaults.
func NewDispatcher(cfg Config, logger hclog.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Dispatcher{
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("webhook"),
		cfg:    cfg,
	}
}

// Dispatch delivers event to every webhook subscribed to it and returns
// immediately. Deliveries run in the background and outlive the request
// context that triggered them.
func (d *Dispatcher) Dispatch(ctx context.Context, webhooks []models.Webhook, event string, doc Document) {
	now := time.Now()
	ctx = context.WithoutCancel(ctx)

	for _, wh := range webhooks {
		if !wh.SubscribedTo(event) {
			continue
		}

		payload := Payload{
			WebhookID: wh.ID.String(),
			Event:     event,
			CreatedAt: now,
			Document:  doc,
		}

		d.wg.Add(1)
		go func(url, secret string) {
			defer d.wg.Done()
			d.deliver(ctx, url, secret, payload)
		}(wh.URL, wh.Secret)
	}
}

// Close waits for all in-flight deliveries to finish.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, url, secret string, payload Payload) {
	logger := d.logger.With("webhook_id", payload.WebhookID, "event", payload.Event, "key", payload.Document.Key)

	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to encode webhook payload", "error", err)
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.InitialBackoff

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "quill")
		req.Header.Set("Authorization", "Secret "+secret)

		res, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()

		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return fmt.Errorf("endpoint returned status %d", res.StatusCode)
		}
		return nil
	}

	err = backoff.Retry(attempt, backoff.WithContext(
		backoff.WithMaxRetries(bo, d.cfg.MaxRetries), ctx))
	if err != nil {
		logger.Error("webhook delivery failed", "url", url, "error", err)
		return
	}
	logger.Debug("webhook delivered", "url", url)
}
