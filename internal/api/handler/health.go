package handler

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/mirella/binsight/internal/service"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthHandler serves the liveness and health-classification endpoint.
type HealthHandler struct {
	metrics *service.MetricsRegistry
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(metrics *service.MetricsRegistry) *HealthHandler {
	return &HealthHandler{metrics: metrics}
}

// Health handles GET /health. A critical pipeline classification is reported
// as 503 so load balancers can rotate the instance out.
func (h *HealthHandler) Health(c *gin.Context) {
	report := h.metrics.Snapshot()

	status := http.StatusOK
	if report.Status == service.HealthCritical {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":   report.Status,
		"service":  "binsight",
		"pipeline": report,
		"system":   systemStats(),
	})
}

// systemStats collects host-level usage. Failures degrade to partial output
// rather than failing the health check itself.
func systemStats() gin.H {
	stats := gin.H{"goroutines": runtime.NumGoroutine()}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats["memory_percent"] = vm.UsedPercent
		stats["memory_used_mb"] = vm.Used / 1024 / 1024
	}
	return stats
}
