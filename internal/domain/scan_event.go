package domain

import "time"

// ScanEvent records one finalized classification outcome for analytics.
// ScanID is a client-supplied idempotency key: at most one persisted event
// per non-empty ScanID, so a network retry never double-counts a scan. The
// partial unique index is the backstop for concurrent writers; events without
// a scanId are excluded from it and always insert.
type ScanEvent struct {
	ID              string    `gorm:"type:text;primaryKey" json:"id"`
	ScanID          string    `gorm:"type:text;uniqueIndex:idx_scan_events_scan_id,where:scan_id <> ''" json:"scan_id,omitempty"`
	SessionID       string    `gorm:"type:text" json:"session_id"`
	AnonymousUserID string    `gorm:"type:text" json:"anonymous_user_id"`
	Category        Category  `gorm:"type:text" json:"category"`
	ItemName        string    `gorm:"type:text" json:"item_name"`
	Confidence      float64   `json:"confidence"`
	Language        string    `gorm:"type:text" json:"language"`
	City            string    `gorm:"type:text" json:"city,omitempty"`
	Latitude        *float64  `json:"latitude,omitempty"`
	Longitude       *float64  `json:"longitude,omitempty"`
	CacheHit        bool      `json:"cache_hit"`
	CityExcluded    bool      `json:"city_excluded"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the database table name for ScanEvent.
func (ScanEvent) TableName() string {
	return "scan_events"
}

// Feedback is a user correction on a classification result.
type Feedback struct {
	ID                string    `gorm:"type:text;primaryKey" json:"id"`
	SessionID         string    `gorm:"type:text" json:"session_id"`
	ItemName          string    `gorm:"type:text" json:"item_name"`
	AssignedCategory  Category  `gorm:"type:text" json:"assigned_category"`
	CorrectedCategory Category  `gorm:"type:text" json:"corrected_category"`
	Comment           string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string {
	return "feedback"
}
