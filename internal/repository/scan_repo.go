package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mirella/binsight/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScanEventRepository handles the append-only scan event log.
type ScanEventRepository struct {
	db *gorm.DB
}

// NewScanEventRepository creates a new ScanEventRepository.
func NewScanEventRepository(db *gorm.DB) *ScanEventRepository {
	return &ScanEventRepository{db: db}
}

// ExistsByScanID checks whether an event with the given idempotency key was
// already persisted.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - scanID: client-supplied idempotency key.
//
// Returns:
//   - bool: true if a record exists.
//   - error: non-nil if the lookup fails.
func (r *ScanEventRepository) ExistsByScanID(ctx context.Context, scanID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ScanEvent{}).
		Where("scan_id = ?", scanID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create appends a scan event. Two concurrent writers can race past the
// existence check with the same non-empty scanId; the unique index makes one
// insert win and the loser's conflict is swallowed, so at most one event per
// scanId ever persists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - event: event to persist; ID is assigned if empty.
//
// Returns:
//   - error: non-nil if the insert fails for any reason other than a scanId
//     conflict.
func (r *ScanEventRepository) Create(ctx context.Context, event *domain.ScanEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		DoNothing: true,
	}).Create(event).Error
}

// CountSince counts events created at or after the given time.
func (r *ScanEventRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.ScanEvent{}).
		Where("created_at >= ?", since).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count scan events: %w", err)
	}
	return count, nil
}
