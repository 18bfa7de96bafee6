package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/auramd-consensus-server/internal/domain"
	"github.com/auramd-consensus-server/internal/review"
	"github.com/auramd-consensus-server/internal/service"
)

// handleAnalyze runs a diagnostic analysis for the posted case.
func (s *Server) handleAnalyze(c *gin.Context) {
	var req service.DiagnosisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	result, err := s.diagnosis.Analyze(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Client went away; nothing useful to answer.
			c.Abort()
		default:
			s.logger.WithError(err).Error("Diagnostic analysis failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "diagnostic analysis failed"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleGetConsensus retrieves a persisted consensus by record or session ID.
func (s *Server) handleGetConsensus(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "consensus persistence is not configured"})
		return
	}

	// Record and session identifiers are both UUIDs; anything else can
	// never match and would trip the typed id columns.
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "consensus not found"})
		return
	}

	record, err := s.store.GetByID(c.Request.Context(), id)
	if err != nil && errors.Is(err, domain.ErrNotFound) {
		record, err = s.store.GetBySessionID(c.Request.Context(), id)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "consensus not found"})
			return
		}
		s.logger.WithError(err).Error("Failed to load consensus record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load consensus"})
		return
	}

	c.JSON(http.StatusOK, record)
}

// handleListConsensus lists persisted consensus records, newest first.
func (s *Server) handleListConsensus(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "consensus persistence is not configured"})
		return
	}

	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.store.List(c.Request.Context(), limit, offset)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list consensus records")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list consensus records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": records,
		"limit":   limit,
		"offset":  offset,
	})
}

// ReviewRequest is the payload for recording a clinician review.
type ReviewRequest struct {
	SessionID          string `json:"session_id" binding:"required"`
	ReviewerID         string `json:"reviewer_id" binding:"required"`
	SuggestedCondition string `json:"suggested_condition"`
	ReviewedCondition  string `json:"reviewed_condition" binding:"required"`
	Agreed             bool   `json:"agreed"`
	Notes              string `json:"notes"`
}

// handleCreateReview records a clinician's agreement or override.
func (s *Server) handleCreateReview(c *gin.Context) {
	if s.reviews == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "review storage is not configured"})
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	rv := &review.Review{
		SessionID:          req.SessionID,
		ReviewerID:         req.ReviewerID,
		SuggestedCondition: req.SuggestedCondition,
		ReviewedCondition:  req.ReviewedCondition,
		Agreed:             req.Agreed,
		Notes:              req.Notes,
	}

	if err := s.reviews.Save(c.Request.Context(), rv); err != nil {
		s.logger.WithError(err).Error("Failed to save review")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save review"})
		return
	}

	c.JSON(http.StatusCreated, rv)
}

// handleSessionReviews lists all reviews recorded for a diagnosis session.
func (s *Server) handleSessionReviews(c *gin.Context) {
	if s.reviews == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "review storage is not configured"})
		return
	}

	reviews, err := s.reviews.ListBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.logger.WithError(err).Error("Failed to list session reviews")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reviews"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reviews": reviews})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
