package service

import (
	"context"

	"github.com/mirella/binsight/internal/domain"
	"github.com/mirella/binsight/internal/logger"
)

// CacheStore is the narrow persistence interface the similarity cache needs.
// Implemented by repository.CacheEntryRepository; tests use in-memory fakes.
type CacheStore interface {
	Recent(ctx context.Context, limit int) ([]domain.CacheEntry, error)
	Insert(ctx context.Context, entry *domain.CacheEntry) (*domain.CacheEntry, error)
	Touch(ctx context.Context, id string) error
	SetTranslation(ctx context.Context, id, lang, itemName, instructions string) error
}

// Similarity returns the Hamming similarity of two equal-length bit strings:
// 1 - distance/length. Mismatched or empty inputs score 0. Symmetric by
// construction.
func Similarity(a, b string) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	dist := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			dist++
		}
	}
	return 1 - float64(dist)/float64(len(a))
}

// SimilarityCache maps fingerprints to previously computed classification
// results with approximate lookup. It is an optimization, never a source of
// truth: every write path is best-effort and the caller's response does not
// depend on it succeeding.
type SimilarityCache struct {
	store        CacheStore
	recentWindow int
	log          *logger.Logger
}

// SimilarityCacheConfig holds configuration for the similarity cache.
type SimilarityCacheConfig struct {
	// RecentWindow bounds the linear similarity scan to the most recent N
	// entries, trading perfect recall for flat lookup cost.
	RecentWindow int
}

// NewSimilarityCache creates a new SimilarityCache.
func NewSimilarityCache(store CacheStore, log *logger.Logger, cfg *SimilarityCacheConfig) *SimilarityCache {
	window := cfg.RecentWindow
	if window <= 0 {
		window = 1000
	}
	return &SimilarityCache{
		store:        store,
		recentWindow: window,
		log:          log,
	}
}

// FindSimilar scans the recent-entries window and returns the entry with the
// highest similarity at or above threshold, or nil when nothing qualifies.
// Tie-break: the first entry reaching the maximum similarity wins (scan order
// is newest-first). Legacy categories are normalized before the entry is
// returned. A store failure is logged and reported as a miss, since the
// cache must never fail the request.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fingerprint: 64-bit fingerprint of the submitted image.
//   - threshold: minimum similarity in [0,1].
//
// Returns:
//   - *domain.CacheEntry: best matching entry or nil.
//   - float64: similarity of the returned entry, 0 on miss.
func (c *SimilarityCache) FindSimilar(ctx context.Context, fingerprint string, threshold float64) (*domain.CacheEntry, float64) {
	entries, err := c.store.Recent(ctx, c.recentWindow)
	if err != nil {
		c.log.WithError(err).Warn("Cache lookup failed, treating as miss")
		return nil, 0
	}

	var best *domain.CacheEntry
	bestSim := 0.0
	for i := range entries {
		sim := Similarity(fingerprint, entries[i].Fingerprint)
		if sim >= threshold && sim > bestSim {
			best = &entries[i]
			bestSim = sim
		}
	}
	if best == nil {
		return nil, 0
	}

	best.Category = domain.NormalizeCategory(best.Category)
	return best, bestSim
}

// Insert creates a new cache entry with timesUsed=1 for a freshly classified
// item. A fingerprint collision with a concurrent writer is benign: the
// in-hand result is still returned to the caller, so the loss is logged at
// debug level and ignored.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: entry to persist.
//
// Returns:
//   - error: non-nil only on real store failure, for the task queue to log.
func (c *SimilarityCache) Insert(ctx context.Context, entry *domain.CacheEntry) error {
	if entry.TimesUsed == 0 {
		entry.TimesUsed = 1
	}
	created, err := c.store.Insert(ctx, entry)
	if err != nil {
		return err
	}
	if created == nil {
		c.log.WithField(logger.FieldFingerprint, entry.Fingerprint).
			Debug("Cache insert lost fingerprint race, keeping winner's entry")
	}
	return nil
}

// Touch increments an entry's usage counter. Failures are logged and
// swallowed.
func (c *SimilarityCache) Touch(ctx context.Context, id string) {
	if err := c.store.Touch(ctx, id); err != nil {
		c.log.WithError(err).WithField("entry_id", id).Warn("Failed to touch cache entry")
	}
}

// BackfillLanguage fills a missing per-language field on an existing entry.
// Best effort: failure must not abort the calling request.
func (c *SimilarityCache) BackfillLanguage(ctx context.Context, id, lang, itemName, instructions string) {
	if err := c.store.SetTranslation(ctx, id, lang, itemName, instructions); err != nil {
		c.log.WithError(err).WithFields(logger.Fields{
			"entry_id": id,
			"lang":     lang,
		}).Warn("Failed to backfill cache entry language")
	}
}
