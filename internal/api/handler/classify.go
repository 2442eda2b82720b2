package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mirella/binsight/internal/domain"
	"github.com/mirella/binsight/internal/logger"
	"github.com/mirella/binsight/internal/service"
)

// ClassifyHandler handles classification requests.
type ClassifyHandler struct {
	svc   *service.ClassifyService
	guard *service.AbuseGuard
	log   *logger.Logger
}

// NewClassifyHandler creates a new ClassifyHandler.
// Parameters:
//   - svc: classification pipeline.
//   - guard: abuse guard, used for the pre-parse bot filter.
//   - log: structured logger.
//
// Returns:
//   - *ClassifyHandler: handler instance.
func NewClassifyHandler(svc *service.ClassifyService, guard *service.AbuseGuard, log *logger.Logger) *ClassifyHandler {
	return &ClassifyHandler{svc: svc, guard: guard, log: log}
}

// Classify handles POST /api/v1/classify.
// The bot filter runs before body parsing so rejected automation costs no
// decode work.
func (h *ClassifyHandler) Classify(c *gin.Context) {
	clientIP := c.ClientIP()
	hasBrowserHeaders := c.GetHeader("Accept") != "" && c.GetHeader("Accept-Language") != ""
	if err := h.guard.CheckAgent(clientIP, service.EndpointClassify, c.Request.UserAgent(), hasBrowserHeaders); err != nil {
		writeError(c, err)
		return
	}

	var req service.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body: " + err.Error(),
			"code":  domain.ErrorCode(domain.ErrValidation),
		})
		return
	}
	req.ClientIP = clientIP

	ctx := c.Request.Context()
	if req.ScanID != "" {
		ctx = logger.WithField(ctx, logger.FieldScanID, req.ScanID)
	}

	resp, err := h.svc.Classify(ctx, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
