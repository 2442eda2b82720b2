package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// LocalizedText stores per-language strings as JSON in the database.
// Keys are BCP-47-ish language codes ("en", "ja", "de").
type LocalizedText map[string]string

// Value implements the driver.Valuer interface for database serialization.
func (t LocalizedText) Value() (driver.Value, error) {
	if t == nil {
		return "{}", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (t *LocalizedText) Scan(value interface{}) error {
	if value == nil {
		*t = LocalizedText{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan LocalizedText")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, t)
}

// Get returns the text for lang and whether it is populated.
func (t LocalizedText) Get(lang string) (string, bool) {
	if t == nil {
		return "", false
	}
	s, ok := t[lang]
	return s, ok && s != ""
}

// CacheEntry maps a perceptual fingerprint to a previously computed
// classification result. An entry may be only partially localized: the
// category and confidence are always present, but a given display language
// can be missing until a translation backfill fills it in.
type CacheEntry struct {
	ID           string        `gorm:"type:text;primaryKey" json:"id"`
	Fingerprint  string        `gorm:"type:text;not null;uniqueIndex:idx_cache_fingerprint" json:"fingerprint"`
	Category     Category      `gorm:"type:text;not null" json:"category"`
	Confidence   float64       `json:"confidence"`
	ItemNames    LocalizedText `gorm:"type:text" json:"item_names"`
	Instructions LocalizedText `gorm:"type:text" json:"instructions"`
	ThumbnailKey string        `gorm:"type:text" json:"thumbnail_key,omitempty"`
	TimesUsed    int64         `gorm:"default:1" json:"times_used"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TableName returns the database table name for CacheEntry.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// HasLanguage reports whether the entry can be served in lang without a
// translation backfill. Both the name and the instructions must be populated.
func (e *CacheEntry) HasLanguage(lang string) bool {
	if _, ok := e.ItemNames.Get(lang); !ok {
		return false
	}
	_, ok := e.Instructions.Get(lang)
	return ok
}
