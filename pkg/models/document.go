package models

import (
	"time"

	"gorm.io/gorm"
)

// Document is a stored paste identified by a short unique key. Its content
// lives in an append-only sequence of revisions; the document row itself
// only carries identity and expiry.
type Document struct {
	// Key is the short unique identifier, generated at create time.
	Key string `gorm:"type:varchar(64);primaryKey" json:"key"`

	// CreatedAt is when the document (revision 0) was created.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the document becomes unreadable and eligible for
	// removal. Nil means it never expires.
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`

	// Revisions are the document's revisions, oldest first.
	Revisions []Revision `gorm:"foreignKey:DocumentKey;references:Key;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for GORM.
func (Document) TableName() string {
	return "documents"
}

// Expired reports whether the document's expiry has passed at instant now.
func (d *Document) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && now.After(*d.ExpiresAt)
}

// Revision is one immutable snapshot of a document's files. Versions for a
// key are gapless and strictly increasing from 0; updates append a new
// revision and never touch existing rows.
type Revision struct {
	ID uint `gorm:"primaryKey" json:"-"`

	// DocumentKey is the owning document.
	DocumentKey string `gorm:"type:varchar(64);not null;uniqueIndex:idx_revisions_key_version,priority:1" json:"document_key"`

	// Version is the position in the document's revision sequence,
	// starting at 0.
	Version int64 `gorm:"not null;uniqueIndex:idx_revisions_key_version,priority:2" json:"version"`

	// CreatedAt is when the revision was written.
	CreatedAt time.Time `json:"created_at"`

	// Files are the revision's files in submission order. A revision has at
	// least one file.
	Files []File `gorm:"foreignKey:RevisionID;constraint:OnDelete:CASCADE" json:"files"`
}

// TableName specifies the table name for GORM.
func (Revision) TableName() string {
	return "revisions"
}

// File is a named piece of content inside a revision. Names are unique
// within their revision.
type File struct {
	ID uint `gorm:"primaryKey" json:"-"`

	// RevisionID is the owning revision.
	RevisionID uint `gorm:"not null;uniqueIndex:idx_files_revision_name,priority:1" json:"-"`

	// Name is the file name, non-empty and unique within the revision.
	Name string `gorm:"type:varchar(255);not null;uniqueIndex:idx_files_revision_name,priority:2" json:"name"`

	// Content is the raw text content.
	Content string `gorm:"type:text;not null" json:"content"`

	// Language is the syntax hint. "auto" means it was left to detection.
	Language string `gorm:"type:varchar(100);not null;default:'plaintext'" json:"language"`

	// OrderIndex preserves the submission order of files in the revision.
	OrderIndex int `gorm:"not null;default:0" json:"-"`
}

// TableName specifies the table name for GORM.
func (File) TableName() string {
	return "files"
}

// Get retrieves a document by key.
func (d *Document) Get(db *gorm.DB, key string) error {
	return db.First(d, "key = ?", key).Error
}

// LatestRevision retrieves the highest-numbered revision for a document,
// with files preloaded in order.
func LatestRevision(db *gorm.DB, key string) (*Revision, error) {
	var rev Revision
	err := db.
		Preload("Files", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC")
		}).
		Where("document_key = ?", key).
		Order("version DESC").
		First(&rev).Error
	if err != nil {
		return nil, err
	}
	return &rev, nil
}

// RevisionByVersion retrieves one specific revision for a document, with
// files preloaded in order.
func RevisionByVersion(db *gorm.DB, key string, version int64) (*Revision, error) {
	var rev Revision
	err := db.
		Preload("Files", func(db *gorm.DB) *gorm.DB {
			return db.Order("order_index ASC")
		}).
		Where("document_key = ? AND version = ?", key, version).
		First(&rev).Error
	if err != nil {
		return nil, err
	}
	return &rev, nil
}
