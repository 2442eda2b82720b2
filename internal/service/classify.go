package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/mirella/binsight/internal/domain"
	"github.com/mirella/binsight/internal/logger"
)

// ScanEventStore is the narrow persistence interface for the idempotent
// event log. Implemented by repository.ScanEventRepository.
type ScanEventStore interface {
	ExistsByScanID(ctx context.Context, scanID string) (bool, error)
	Create(ctx context.Context, event *domain.ScanEvent) error
}

// ThumbnailStore uploads cache-entry thumbnails. Optional: a nil store
// disables uploads without affecting classification.
type ThumbnailStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// ScanRequest is one classification request. ClientIP is filled in by the
// handler from the connection, never from the body: client-supplied
// identifiers are not trusted for throttle keying.
type ScanRequest struct {
	Image               string                      `json:"image" binding:"required"`
	Language            string                      `json:"language" binding:"required"`
	DemoMode            bool                        `json:"demoMode,omitempty"`
	ClarificationAnswer *domain.ClarificationAnswer `json:"clarificationAnswer,omitempty"`
	ScanID              string                      `json:"scanId,omitempty"`
	SessionID           string                      `json:"sessionId" binding:"required"`
	AnonymousUserID     string                      `json:"anonymousUserId"`
	City                string                      `json:"city,omitempty"`
	Latitude            *float64                    `json:"latitude,omitempty"`
	Longitude           *float64                    `json:"longitude,omitempty"`

	ClientIP string `json:"-"`
}

// ScanResponse is the classification answer returned to the caller.
type ScanResponse struct {
	ItemName              string          `json:"itemName"`
	Category              domain.Category `json:"category"`
	BagColor              string          `json:"bagColor"`
	Instructions          string          `json:"instructions"`
	Confidence            float64         `json:"confidence"`
	ItemCount             int             `json:"itemCount"`
	Cached                bool            `json:"cached"`
	NeedsClarification    bool            `json:"needsClarification,omitempty"`
	ClarificationQuestion string          `json:"clarificationQuestion,omitempty"`
	IsRejection           bool            `json:"isRejection,omitempty"`
	RejectionReason       string          `json:"rejectionReason,omitempty"`
	IsCityExcluded        bool            `json:"isCityExcluded,omitempty"`
	DemoMode              bool            `json:"demoMode,omitempty"`
}

// GuardError carries a deny decision out of the pipeline so the handler can
// set Retry-After and quota headers. Unwrap exposes the error kind.
type GuardError struct {
	Decision Decision
}

func (e *GuardError) Error() string {
	if e.Decision.Err != nil {
		return e.Decision.Err.Error()
	}
	return "request denied"
}

func (e *GuardError) Unwrap() error {
	return e.Decision.Err
}

// ClassifyService is the request-handling sequence tying the pipeline
// together: guard, fingerprint, cache lookup, provider call, result routing
// and idempotent persistence. Data flows one way; guard and metrics are
// side channels consulted at fixed points.
type ClassifyService struct {
	hasher     *PerceptualHasher
	cache      *SimilarityCache
	guard      *AbuseGuard
	metrics    *MetricsRegistry
	classifier Classifier
	events     ScanEventStore
	thumbs     ThumbnailStore
	tasks      *TaskQueue
	log        *logger.Logger
	threshold  float64
}

// ClassifyConfig holds orchestrator configuration.
type ClassifyConfig struct {
	SimilarityThreshold float64
}

// NewClassifyService creates the orchestrator.
// Parameters:
//   - hasher, cache, guard, metrics, classifier, events, tasks: pipeline
//     collaborators; all required.
//   - thumbs: thumbnail storage, may be nil.
//   - log: structured logger.
//   - cfg: orchestrator configuration.
//
// Returns:
//   - *ClassifyService: initialized orchestrator.
func NewClassifyService(
	hasher *PerceptualHasher,
	cache *SimilarityCache,
	guard *AbuseGuard,
	metrics *MetricsRegistry,
	classifier Classifier,
	events ScanEventStore,
	thumbs ThumbnailStore,
	tasks *TaskQueue,
	log *logger.Logger,
	cfg *ClassifyConfig,
) *ClassifyService {
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = 0.85
	}
	return &ClassifyService{
		hasher:     hasher,
		cache:      cache,
		guard:      guard,
		metrics:    metrics,
		classifier: classifier,
		events:     events,
		thumbs:     thumbs,
		tasks:      tasks,
		log:        log,
		threshold:  threshold,
	}
}

// Classify runs one request through the pipeline. Guard denials come back as
// *GuardError; every other error is one of the domain error kinds.
func (s *ClassifyService) Classify(ctx context.Context, req *ScanRequest) (*ScanResponse, error) {
	if err := validateScanRequest(req); err != nil {
		return nil, err
	}
	req.Language = strings.ToLower(req.Language)
	isFollowUp := req.ClarificationAnswer != nil

	dec := s.guard.Check(req.ClientIP, EndpointClassify, isFollowUp)
	if !dec.Allowed {
		return nil, &GuardError{Decision: dec}
	}

	endScan := s.metrics.BeginScan()
	defer endScan()

	imageData, format, err := decodeImagePayload(req.Image)
	if err != nil {
		return nil, err
	}

	hashed, err := s.hasher.Hash(imageData)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldFingerprint: hashed.Fingerprint,
		logger.FieldSessionID:   req.SessionID,
	})

	if req.DemoMode {
		return demoResponse(req.Language), nil
	}

	if entry, sim := s.cache.FindSimilar(ctx, hashed.Fingerprint, s.threshold); entry != nil {
		return s.serveFromCache(ctx, req, entry, sim)
	}

	// Cache miss. Two concurrent requests for the same cold fingerprint can
	// both land here and both call the provider; the insert collision below
	// is benign, so no in-flight coalescing is attempted.
	outcome, err := s.classifier.Classify(ctx, imageData, format, req.Language, req.ClarificationAnswer)
	if err != nil {
		s.metrics.RecordError(err.Error())
		logger.CtxWarn(ctx, "Provider call failed: %v", err)
		return nil, err
	}
	s.metrics.RecordProviderCall()

	return s.routeOutcome(ctx, req, outcome, hashed, isFollowUp)
}

// serveFromCache handles full and partial cache hits. A partial hit (entry
// lacks the requested language) triggers the cheap translation backfill; if
// even that fails, the entry's base language is served rather than erroring,
// because the cache path must stay cheaper than a full provider call.
func (s *ClassifyService) serveFromCache(ctx context.Context, req *ScanRequest, entry *domain.CacheEntry, sim float64) (*ScanResponse, error) {
	entryID := entry.ID
	s.tasks.Enqueue("cache_touch", func(taskCtx context.Context) error {
		s.cache.Touch(taskCtx, entryID)
		return nil
	})

	// A hit is partial when either field is missing for the language; a name
	// without instructions is not servable as-is.
	name, nameOK := entry.ItemNames.Get(req.Language)
	instructions, instructionsOK := entry.Instructions.Get(req.Language)

	if !nameOK || !instructionsOK {
		baseName, baseInstructions, baseLang := baseLanguageFields(entry)
		translatedName, translatedInstructions, err := s.classifier.Translate(
			ctx, baseName, baseInstructions, entry.Category, req.Language)
		if err != nil {
			s.metrics.RecordError(err.Error())
			logger.CtxWarn(ctx, "Translation backfill failed, serving %q fields: %v", baseLang, err)
			name, instructions = baseName, baseInstructions
		} else {
			s.metrics.RecordProviderCall()
			name, instructions = translatedName, translatedInstructions
			lang := req.Language
			s.tasks.Enqueue("cache_backfill", func(taskCtx context.Context) error {
				s.cache.BackfillLanguage(taskCtx, entryID, lang, translatedName, translatedInstructions)
				return nil
			})
		}
	}

	s.metrics.RecordCacheHit()
	logger.With(logger.Fields{
		logger.FieldCacheHit: true,
		"similarity":         sim,
	}).Info(ctx, "Served classification from cache")

	s.enqueueScanEvent(req, &domain.ScanEvent{
		Category:   entry.Category,
		ItemName:   name,
		Confidence: entry.Confidence,
		CacheHit:   true,
	})

	return &ScanResponse{
		ItemName:     name,
		Category:     entry.Category,
		BagColor:     domain.BagColor(entry.Category),
		Instructions: instructions,
		Confidence:   entry.Confidence,
		ItemCount:    1,
		Cached:       true,
	}, nil
}

// routeOutcome branches on the provider's structured result. The switch is
// exhaustive over the outcome union.
func (s *ClassifyService) routeOutcome(ctx context.Context, req *ScanRequest, outcome *domain.Outcome, hashed *HashResult, isFollowUp bool) (*ScanResponse, error) {
	switch outcome.Kind {
	case domain.OutcomeInvalidScan:
		// No cache write, no scan event, no impact accounting.
		logger.With(logger.Fields{logger.FieldOutcome: outcome.Kind.String()}).
			Info(ctx, "Rejected non-waste scan: %s", outcome.RejectionReason)
		return &ScanResponse{
			Confidence:      0,
			ItemCount:       1,
			IsRejection:     true,
			RejectionReason: outcome.RejectionReason,
		}, nil

	case domain.OutcomeCityExcluded:
		// Instructions are category-level, so the general-purpose cache
		// would serve them for the wrong items. Logged but never cached.
		s.enqueueScanEvent(req, &domain.ScanEvent{
			Category:     outcome.Category,
			ItemName:     outcome.ItemName,
			Confidence:   outcome.Confidence,
			CityExcluded: true,
		})
		return &ScanResponse{
			ItemName:       outcome.ItemName,
			Category:       outcome.Category,
			BagColor:       domain.BagColor(outcome.Category),
			Instructions:   outcome.Instructions,
			Confidence:     outcome.Confidence,
			ItemCount:      outcome.ItemCount,
			IsCityExcluded: true,
		}, nil

	case domain.OutcomeNeedsClarification:
		if !isFollowUp {
			return &ScanResponse{
				ItemName:              outcome.BestGuessItemName,
				Category:              outcome.BestGuessCategory,
				BagColor:              domain.BagColor(outcome.BestGuessCategory),
				Confidence:            outcome.Confidence,
				ItemCount:             1,
				NeedsClarification:    true,
				ClarificationQuestion: outcome.ClarificationQuestion,
			}, nil
		}
		// Clarification may occur at most once per scan: a resubmission that
		// still comes back unclear is finalized with the best guess.
		logger.CtxInfo(ctx, "Clarification loop detected, finalizing with best guess")
		forced := &domain.Outcome{
			Kind:       domain.OutcomeClassified,
			Category:   outcome.BestGuessCategory,
			ItemName:   outcome.BestGuessItemName,
			Confidence: outcome.Confidence,
			ItemCount:  1,
		}
		return s.finalizeClassified(ctx, req, forced, hashed, false)

	case domain.OutcomeClassified:
		return s.finalizeClassified(ctx, req, outcome, hashed, true)

	default:
		return nil, fmt.Errorf("%w: unexpected outcome kind %d", domain.ErrProviderParse, outcome.Kind)
	}
}

// finalizeClassified produces the terminal success response and enqueues the
// cache insert and scan event. cacheable is false for force-finalized
// clarification fallbacks, whose guesses are too weak to serve to others.
func (s *ClassifyService) finalizeClassified(ctx context.Context, req *ScanRequest, outcome *domain.Outcome, hashed *HashResult, cacheable bool) (*ScanResponse, error) {
	logger.With(logger.Fields{
		logger.FieldOutcome: outcome.Kind.String(),
		"category":          outcome.Category,
	}).Info(ctx, "Classified item %q", outcome.ItemName)

	if cacheable {
		s.enqueueCacheInsert(req, outcome, hashed)
	}
	s.enqueueScanEvent(req, &domain.ScanEvent{
		Category:   outcome.Category,
		ItemName:   outcome.ItemName,
		Confidence: outcome.Confidence,
	})

	return &ScanResponse{
		ItemName:     outcome.ItemName,
		Category:     outcome.Category,
		BagColor:     domain.BagColor(outcome.Category),
		Instructions: outcome.Instructions,
		Confidence:   outcome.Confidence,
		ItemCount:    outcome.ItemCount,
	}, nil
}

// enqueueCacheInsert persists a fresh classification off the response path,
// uploading the thumbnail first when storage is configured.
func (s *ClassifyService) enqueueCacheInsert(req *ScanRequest, outcome *domain.Outcome, hashed *HashResult) {
	entry := &domain.CacheEntry{
		Fingerprint:  hashed.Fingerprint,
		Category:     outcome.Category,
		Confidence:   outcome.Confidence,
		ItemNames:    domain.LocalizedText{req.Language: outcome.ItemName},
		Instructions: domain.LocalizedText{req.Language: outcome.Instructions},
	}
	thumbnail := hashed.Thumbnail

	s.tasks.Enqueue("cache_insert", func(taskCtx context.Context) error {
		if s.thumbs != nil {
			key := "thumbs/" + entry.Fingerprint + ".jpg"
			if err := s.thumbs.Upload(taskCtx, key, thumbnail, "image/jpeg"); err != nil {
				s.log.WithError(err).Warn("Thumbnail upload failed")
			} else {
				entry.ThumbnailKey = key
			}
		}
		return s.cache.Insert(taskCtx, entry)
	})
}

// enqueueScanEvent logs a terminal outcome, enforcing scanId idempotency:
// duplicate submissions are detected and skipped, never double-logged. The
// existence check is only the fast path; when two workers race past it with
// the same scanId, the store's unique index keeps a single row. The response
// to the caller is unaffected either way.
func (s *ClassifyService) enqueueScanEvent(req *ScanRequest, event *domain.ScanEvent) {
	event.ScanID = req.ScanID
	event.SessionID = req.SessionID
	event.AnonymousUserID = req.AnonymousUserID
	event.Language = req.Language
	event.City = req.City
	event.Latitude = req.Latitude
	event.Longitude = req.Longitude

	s.tasks.Enqueue("scan_event", func(taskCtx context.Context) error {
		if event.ScanID != "" {
			exists, err := s.events.ExistsByScanID(taskCtx, event.ScanID)
			if err != nil {
				return err
			}
			if exists {
				return nil
			}
		}
		return s.events.Create(taskCtx, event)
	})
}

// SecurityEvents exposes the guard's ring buffer for the admin surface.
func (s *ClassifyService) SecurityEvents() []SecurityEvent {
	return s.guard.Events()
}

// Health exposes the metrics snapshot for the health endpoint.
func (s *ClassifyService) Health() HealthReport {
	return s.metrics.Snapshot()
}

func validateScanRequest(req *ScanRequest) error {
	switch {
	case req.Image == "":
		return fmt.Errorf("%w: image is required", domain.ErrValidation)
	case req.Language == "":
		return fmt.Errorf("%w: language is required", domain.ErrValidation)
	case req.SessionID == "":
		return fmt.Errorf("%w: sessionId is required", domain.ErrValidation)
	}
	if req.ClarificationAnswer != nil && req.ClarificationAnswer.Question == "" {
		return fmt.Errorf("%w: clarification answer without question", domain.ErrValidation)
	}
	return nil
}

// decodeImagePayload accepts a base64 data URL ("data:image/png;base64,...")
// or bare base64 and returns the raw bytes plus the declared format.
func decodeImagePayload(payload string) ([]byte, string, error) {
	format := "jpeg"
	data := payload
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ";base64,")
		if idx < 0 {
			return nil, "", fmt.Errorf("%w: malformed data URL", domain.ErrDecode)
		}
		mime := payload[len("data:"):idx]
		if f, ok := strings.CutPrefix(mime, "image/"); ok {
			format = f
		}
		data = payload[idx+len(";base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, "", fmt.Errorf("%w: invalid base64 image data: %v", domain.ErrDecode, err)
	}
	return raw, format, nil
}

// baseLanguageFields picks the entry's English fields when present, or any
// populated language otherwise, for translation backfill source text.
func baseLanguageFields(entry *domain.CacheEntry) (string, string, string) {
	if name, ok := entry.ItemNames.Get("en"); ok {
		instructions, _ := entry.Instructions.Get("en")
		return name, instructions, "en"
	}
	for lang, name := range entry.ItemNames {
		if name == "" {
			continue
		}
		instructions, _ := entry.Instructions.Get(lang)
		return name, instructions, lang
	}
	return "", "", ""
}

// demoResponse is the canned result served in demo mode, clearly labeled so
// the UI can badge it.
func demoResponse(language string) *ScanResponse {
	name := "Plastic bottle"
	instructions := "Empty the bottle and place it in recycling."
	if language == "ja" {
		name = "ペットボトル"
		instructions = "中身を空にしてリサイクルへ。"
	}
	return &ScanResponse{
		ItemName:     name,
		Category:     domain.CategoryRecyclable,
		BagColor:     domain.BagColor(domain.CategoryRecyclable),
		Instructions: instructions,
		Confidence:   0.9,
		ItemCount:    1,
		DemoMode:     true,
	}
}
