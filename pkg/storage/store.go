// Package storage is the version store: durable, ordered storage of
// document revisions keyed by (document key, version number).
//
// Revisions are immutable and append-only. Version numbers for one key are
// gapless and strictly increasing from 0; concurrent appends to the same
// key serialize on a striped per-key lock plus a row lock inside the
// transaction, so two racing appends always yield N and N+1. A revision is
// only visible once its whole file set is committed, so readers never
// observe a partially written revision.
//
// Expiry is lazy: every read treats a document past its expires_at as
// absent. The sweeper (sweep.go) additionally removes expired rows in the
// background, which is an optimization, not a correctness requirement.
package storage

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hashicorp-forge/quill/pkg/models"
)

// lockStripes is the size of the per-key lock table. Appends to different
// keys almost never contend; appends to the same key always serialize.
const lockStripes = 64

// FileInput describes one file of a revision being written.
type FileInput struct {
	Name     string
	Content  string
	Language string
}

// VersionInfo is one entry of a document's version history.
type VersionInfo struct {
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Store implements the version store on top of a GORM database
// (sqlite or postgres).
type Store struct {
	db     *gorm.DB
	logger hclog.Logger

	locks [lockStripes]sync.Mutex

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Store. The database must already be migrated
// (see internal/db).
func New(db *gorm.DB, logger hclog.Logger) *Store {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{
		db:     db,
		logger: logger.Named("storage"),
		now:    time.Now,
	}
}

func (s *Store) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}

// Create creates a new document under key with revision 0. It fails with
// ErrConflict if the key already exists (expired or not; expired rows are
// removed by the sweeper, and the caller retries with a fresh key either
// way).
func (s *Store) Create(ctx context.Context, key string, files []FileInput, expiresAt *time.Time) (*models.Revision, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	rev := &models.Revision{
		DocumentKey: key,
		Version:     0,
		Files:       buildFiles(files),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc := models.Document{
			Key:       key,
			ExpiresAt: expiresAt,
		}
		if err := tx.Create(&doc).Error; err != nil {
			if isDuplicateKey(err) {
				return ErrConflict
			}
			return fmt.Errorf("error creating document: %w", err)
		}
		if err := tx.Create(rev).Error; err != nil {
			return fmt.Errorf("error creating revision: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("created document", "key", key, "files", len(files))
	return rev, nil
}

// Append writes the next revision of an existing document. It fails with
// ErrNotFound if the key is absent or expired. The new version number is
// always exactly one more than the current highest.
func (s *Store) Append(ctx context.Context, key string, files []FileInput) (*models.Revision, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	// Serialize appends per key. The transaction's row lock on the document
	// covers postgres; the striped mutex covers sqlite, which has no row
	// locking.
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	rev := &models.Revision{
		DocumentKey: key,
		Files:       buildFiles(files),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc models.Document
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&doc, "key = ?", key).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("error loading document: %w", err)
		}
		if doc.Expired(s.now()) {
			return ErrNotFound
		}

		var maxVersion int64
		if err := tx.Model(&models.Revision{}).
			Where("document_key = ?", key).
			Select("COALESCE(MAX(version), -1)").
			Scan(&maxVersion).Error; err != nil {
			return fmt.Errorf("error finding latest version: %w", err)
		}

		rev.Version = maxVersion + 1
		if err := tx.Create(rev).Error; err != nil {
			return fmt.Errorf("error creating revision: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("appended revision", "key", key, "version", rev.Version)
	return rev, nil
}

// Get retrieves one revision of a document with its files. A nil version
// means the latest revision. It fails with ErrNotFound if the key is
// absent or expired, or the version was never created.
func (s *Store) Get(ctx context.Context, key string, version *int64) (*models.Revision, error) {
	db := s.db.WithContext(ctx)
	if err := s.checkDocument(db, key); err != nil {
		return nil, err
	}

	var (
		rev *models.Revision
		err error
	)
	if version == nil {
		rev, err = models.LatestRevision(db, key)
	} else {
		rev, err = models.RevisionByVersion(db, key, *version)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error loading revision: %w", err)
	}
	return rev, nil
}

// GetFile retrieves a single named file within a revision. File names
// match case-insensitively. A nil version means the latest revision.
func (s *Store) GetFile(ctx context.Context, key string, version *int64, name string) (*models.File, error) {
	rev, err := s.Get(ctx, key, version)
	if err != nil {
		return nil, err
	}
	for i := range rev.Files {
		if strings.EqualFold(rev.Files[i].Name, name) {
			return &rev.Files[i], nil
		}
	}
	return nil, ErrNotFound
}

// ListVersions returns the document's version history, latest first. It
// fails with ErrNotFound if the key is absent or expired.
func (s *Store) ListVersions(ctx context.Context, key string) ([]VersionInfo, error) {
	db := s.db.WithContext(ctx)
	if err := s.checkDocument(db, key); err != nil {
		return nil, err
	}

	var versions []VersionInfo
	err := db.Model(&models.Revision{}).
		Select("version", "created_at").
		Where("document_key = ?", key).
		Order("version DESC").
		Scan(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("error listing versions: %w", err)
	}
	return versions, nil
}

// Delete removes a document, all its revisions and files, and its webhook
// registrations in one transaction. It fails with ErrNotFound if the key
// is already absent.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteDocument(tx, key)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("deleted document", "key", key)
	return nil
}

// checkDocument verifies the document exists and has not expired.
func (s *Store) checkDocument(db *gorm.DB, key string) error {
	var doc models.Document
	if err := doc.Get(db, key); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("error loading document: %w", err)
	}
	if doc.Expired(s.now()) {
		return ErrNotFound
	}
	return nil
}

// deleteDocument removes one document and everything hanging off it.
// Children go first so the delete also works without cascading foreign
// keys (sqlite has them off by default).
func deleteDocument(tx *gorm.DB, key string) error {
	if err := tx.
		Where("revision_id IN (?)", tx.Model(&models.Revision{}).Select("id").Where("document_key = ?", key)).
		Delete(&models.File{}).Error; err != nil {
		return fmt.Errorf("error deleting files: %w", err)
	}
	if err := tx.Where("document_key = ?", key).Delete(&models.Revision{}).Error; err != nil {
		return fmt.Errorf("error deleting revisions: %w", err)
	}
	if err := tx.Where("document_key = ?", key).Delete(&models.Webhook{}).Error; err != nil {
		return fmt.Errorf("error deleting webhooks: %w", err)
	}

	res := tx.Delete(&models.Document{Key: key})
	if res.Error != nil {
		return fmt.Errorf("error deleting document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func buildFiles(files []FileInput) []models.File {
	out := make([]models.File, len(files))
	for i, f := range files {
		out[i] = models.File{
			Name:       f.Name,
			Content:    f.Content,
			Language:   f.Language,
			OrderIndex: i,
		}
	}
	return out
}

// isDuplicateKey detects unique constraint violations across drivers. The
// database is opened with GORM error translation, which normalizes both
// postgres and sqlite constraint errors to gorm.ErrDuplicatedKey.
func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
