package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/mirella/binsight/internal/domain"
	"gorm.io/gorm"
)

// FeedbackRepository handles user feedback records.
type FeedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository creates a new FeedbackRepository.
func NewFeedbackRepository(db *gorm.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Create persists a feedback record.
func (r *FeedbackRepository) Create(ctx context.Context, fb *domain.Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(fb).Error
}

// List retrieves feedback records with pagination, newest first.
func (r *FeedbackRepository) List(ctx context.Context, limit, offset int) ([]domain.Feedback, error) {
	var items []domain.Feedback
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
