package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Webhook is a document-scoped callback registration. When one of the
// subscribed events happens to the document, the dispatcher POSTs the
// event payload to URL, authenticated with the shared secret.
type Webhook struct {
	// ID is the unique webhook identifier (UUID).
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	// CreatedAt is when the webhook was registered.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the webhook was last modified.
	UpdatedAt time.Time `json:"updated_at"`

	// DocumentKey is the document this webhook watches.
	DocumentKey string `gorm:"type:varchar(64);not null;index" json:"document_key"`

	// URL is the callback endpoint.
	URL string `gorm:"type:text;not null" json:"url"`

	// Secret authenticates both directions: it is sent with deliveries and
	// required to read or modify the registration.
	Secret string `gorm:"type:varchar(255);not null" json:"secret"`

	// Events is the comma-joined list of subscribed events
	// ("update", "delete").
	Events string `gorm:"type:varchar(255);not null" json:"-"`
}

// TableName specifies the table name for GORM.
func (Webhook) TableName() string {
	return "webhooks"
}

// BeforeCreate hook to generate the UUID if not set.
func (w *Webhook) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// EventList returns the subscribed events as a slice.
func (w *Webhook) EventList() []string {
	if w.Events == "" {
		return nil
	}
	return strings.Split(w.Events, ",")
}

// SubscribedTo reports whether the webhook subscribes to event.
func (w *Webhook) SubscribedTo(event string) bool {
	for _, e := range w.EventList() {
		if e == event {
			return true
		}
	}
	return false
}

// Webhooks is a slice of webhooks.
type Webhooks []Webhook

// FindByDocument retrieves all webhooks registered on a document.
func (ws *Webhooks) FindByDocument(db *gorm.DB, key string) error {
	return db.Where("document_key = ?", key).Find(ws).Error
}
