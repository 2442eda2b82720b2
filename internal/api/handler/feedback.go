package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mirella/binsight/internal/domain"
	"github.com/mirella/binsight/internal/logger"
	"github.com/mirella/binsight/internal/service"
)

// FeedbackHandler handles classification correction submissions.
type FeedbackHandler struct {
	svc *service.FeedbackService
	log *logger.Logger
}

// NewFeedbackHandler creates a new FeedbackHandler.
func NewFeedbackHandler(svc *service.FeedbackService, log *logger.Logger) *FeedbackHandler {
	return &FeedbackHandler{svc: svc, log: log}
}

// FeedbackRequest is the submission body for POST /api/v1/feedback.
type FeedbackRequest struct {
	SessionID         string `json:"sessionId" binding:"required"`
	ItemName          string `json:"itemName" binding:"required"`
	AssignedCategory  string `json:"assignedCategory" binding:"required"`
	CorrectedCategory string `json:"correctedCategory" binding:"required"`
	Comment           string `json:"comment,omitempty"`
}

// Submit handles POST /api/v1/feedback.
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body: " + err.Error(),
			"code":  domain.ErrorCode(domain.ErrValidation),
		})
		return
	}

	fb := &domain.Feedback{
		SessionID:         req.SessionID,
		ItemName:          req.ItemName,
		AssignedCategory:  domain.Category(req.AssignedCategory),
		CorrectedCategory: domain.Category(req.CorrectedCategory),
		Comment:           req.Comment,
	}

	if err := h.svc.Submit(c.Request.Context(), fb, c.ClientIP()); err != nil {
		writeError(c, err)
		return
	}

	logger.CtxInfo(c.Request.Context(), "Feedback recorded: %s -> %s",
		req.AssignedCategory, req.CorrectedCategory)
	c.JSON(http.StatusCreated, gin.H{"status": "recorded", "id": fb.ID})
}
