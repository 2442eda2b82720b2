package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mirella/binsight/internal/logger"
	"github.com/mirella/binsight/internal/repository"
	"github.com/mirella/binsight/internal/service"
)

// AdminHandler serves the operator inspection endpoints.
type AdminHandler struct {
	guard   *service.AbuseGuard
	metrics *service.MetricsRegistry
	cache   *repository.CacheEntryRepository
	scans   *repository.ScanEventRepository
	log     *logger.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	guard *service.AbuseGuard,
	metrics *service.MetricsRegistry,
	cache *repository.CacheEntryRepository,
	scans *repository.ScanEventRepository,
	log *logger.Logger,
) *AdminHandler {
	return &AdminHandler{guard: guard, metrics: metrics, cache: cache, scans: scans, log: log}
}

// SecurityEvents handles GET /api/v1/admin/security-events. Events come back
// newest first; ?limit caps the result.
func (h *AdminHandler) SecurityEvents(c *gin.Context) {
	events := h.guard.Events()

	// Ring snapshot is oldest first; operators want the latest at the top.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	if raw := c.Query("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit < len(events) {
			events = events[:limit]
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

// Stats handles GET /api/v1/admin/stats: cache size, recent event volume and
// the current pipeline counters in one place.
func (h *AdminHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	cacheEntries, err := h.cache.Count(ctx)
	if err != nil {
		h.log.WithError(err).Error("Failed to count cache entries")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "datastore unavailable"})
		return
	}

	scans24h, err := h.scans.CountSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		h.log.WithError(err).Error("Failed to count recent scan events")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "datastore unavailable"})
		return
	}

	report := h.metrics.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"cache_entries":  cacheEntries,
		"scans_24h":      scans24h,
		"daily":          report.Daily,
		"cache_hit_rate": report.CacheHitRate,
		"health":         report.Status,
	})
}
