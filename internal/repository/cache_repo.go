package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mirella/binsight/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheEntryRepository handles cache entry data operations.
type CacheEntryRepository struct {
	db *gorm.DB
}

// NewCacheEntryRepository creates a new CacheEntryRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *CacheEntryRepository: repository instance bound to db.
func NewCacheEntryRepository(db *gorm.DB) *CacheEntryRepository {
	return &CacheEntryRepository{db: db}
}

// Recent retrieves the most recently created entries, newest first. The
// similarity scan is bounded to this window so lookup cost stays flat as the
// table grows.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of entries to return.
//
// Returns:
//   - []domain.CacheEntry: entries ordered by created_at descending.
//   - error: non-nil if the query fails.
func (r *CacheEntryRepository) Recent(ctx context.Context, limit int) ([]domain.CacheEntry, error) {
	var entries []domain.CacheEntry
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent cache entries: %w", err)
	}
	return entries, nil
}

// Insert creates a new cache entry. Two concurrent requests can race to
// insert the same fingerprint; the unique index makes one write win and the
// loser gets (nil, nil) so its caller proceeds with the in-hand result.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: entry to persist; ID is assigned if empty.
//
// Returns:
//   - *domain.CacheEntry: the persisted entry, or nil when the insert lost a
//     fingerprint collision.
//   - error: non-nil if the insert fails for any other reason.
func (r *CacheEntryRepository) Insert(ctx context.Context, entry *domain.CacheEntry) (*domain.CacheEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		DoNothing: true,
	}).Create(entry)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to insert cache entry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return entry, nil
}

// Touch increments the usage counter of an entry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: entry ID.
//
// Returns:
//   - error: non-nil if the update fails.
func (r *CacheEntryRepository) Touch(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&domain.CacheEntry{}).
		Where("id = ?", id).
		UpdateColumn("times_used", gorm.Expr("times_used + 1")).Error
}

// SetTranslation fills in a missing per-language name/instruction pair on an
// existing entry. Best effort: callers treat failure as non-fatal.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: entry ID.
//   - lang: language code to populate.
//   - itemName: localized item name.
//   - instructions: localized disposal instructions.
//
// Returns:
//   - error: non-nil if the read-modify-write fails.
func (r *CacheEntryRepository) SetTranslation(ctx context.Context, id, lang, itemName, instructions string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry domain.CacheEntry
		if err := tx.First(&entry, "id = ?", id).Error; err != nil {
			return err
		}
		if entry.ItemNames == nil {
			entry.ItemNames = domain.LocalizedText{}
		}
		if entry.Instructions == nil {
			entry.Instructions = domain.LocalizedText{}
		}
		entry.ItemNames[lang] = itemName
		entry.Instructions[lang] = instructions
		return tx.Model(&entry).Updates(map[string]interface{}{
			"item_names":   entry.ItemNames,
			"instructions": entry.Instructions,
		}).Error
	})
}

// GetByFingerprint retrieves an entry by exact fingerprint.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fingerprint: 64-bit fingerprint string.
//
// Returns:
//   - *domain.CacheEntry: entry if found.
//   - error: non-nil if lookup fails.
func (r *CacheEntryRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*domain.CacheEntry, error) {
	var entry domain.CacheEntry
	if err := r.db.WithContext(ctx).First(&entry, "fingerprint = ?", fingerprint).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// Count returns the total number of cache entries.
func (r *CacheEntryRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.CacheEntry{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
