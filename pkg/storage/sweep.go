package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hashicorp-forge/quill/pkg/models"
)

// sweepTimeout bounds one sweep pass so a slow database cannot wedge the
// sweeper goroutine.
const sweepTimeout = 10 * time.Second

// DeleteExpired removes all documents whose expiry has passed, including
// their revisions, files, and webhooks. Returns the number of documents
// removed.
//
// Reads already treat expired documents as absent, so this only reclaims
// space; running it late or never does not change observable behavior.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&models.Document{}).
		Select("key").
		Where("expires_at IS NOT NULL AND expires_at < ?", s.now()).
		Scan(&keys).Error
	if err != nil {
		return 0, fmt.Errorf("error finding expired documents: %w", err)
	}

	removed := 0
	for _, key := range keys {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return deleteDocument(tx, key)
		})
		if err != nil {
			// ErrNotFound means a concurrent delete beat us to it.
			if err == ErrNotFound {
				continue
			}
			return removed, fmt.Errorf("error deleting expired document %q: %w", key, err)
		}
		removed++
	}
	return removed, nil
}

// StartSweeper launches the background expiry sweep and returns a function
// that stops it. An interval of zero or less disables sweeping.
func (s *Store) StartSweeper(interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		s.logger.Info("expiry sweeper started", "interval", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("expiry sweeper stopped")
				return
			case <-ticker.C:
				s.sweepOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *Store) sweepOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	removed, err := s.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("expiry sweep removed documents", "count", removed)
	}
}
