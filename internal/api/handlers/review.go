package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/mpr/internal/auth"
	apperrors "github.com/your-org/mpr/internal/errors"
	"github.com/your-org/mpr/internal/models"
	"github.com/your-org/mpr/internal/review"
	"github.com/your-org/mpr/pkg/dto"
)

type Reviewer interface {
	Confirm(ctx context.Context, candidateID uuid.UUID, initiator models.Initiator) (*review.Decision, error)
	Reject(ctx context.Context, candidateID uuid.UUID, initiator models.Initiator) (*review.Decision, error)
	History(ctx context.Context, caseID uuid.UUID) ([]models.ScanAttempt, error)
}

type ReviewHandler struct {
	reviewer Reviewer
}

func NewReviewHandler(reviewer Reviewer) *ReviewHandler {
	return &ReviewHandler{reviewer: reviewer}
}

type decideFunc func(ctx context.Context, candidateID uuid.UUID, initiator models.Initiator) (*review.Decision, error)

func (h *ReviewHandler) Confirm(c *gin.Context) {
	h.decide(c, h.reviewer.Confirm)
}

func (h *ReviewHandler) Reject(c *gin.Context) {
	h.decide(c, h.reviewer.Reject)
}

func (h *ReviewHandler) decide(c *gin.Context, fn decideFunc) {
	candidateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ReviewResponse{Error: "invalid candidate id"})
		return
	}

	officer, err := auth.Officer(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ReviewResponse{Error: err.Error()})
		return
	}

	decision, err := fn(c.Request.Context(), candidateID, officer)
	if err != nil {
		c.JSON(apperrors.GetStatusCode(err), dto.ReviewResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.ReviewResponse{
		Success: true,
		CaseID:  decision.CaseID,
		Status:  string(decision.Status),
	})
}

// History lists the audit trail of a case.
func (h *ReviewHandler) History(c *gin.Context) {
	caseID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid case id"})
		return
	}

	attempts, err := h.reviewer.History(c.Request.Context(), caseID)
	if err != nil {
		c.JSON(apperrors.GetStatusCode(err), gin.H{"error": err.Error()})
		return
	}

	resp := dto.AttemptListResponse{CaseID: caseID, Attempts: make([]dto.AttemptResponse, 0, len(attempts))}
	for _, a := range attempts {
		resp.Attempts = append(resp.Attempts, dto.AttemptResponse{
			ID:              a.ID,
			InitiatorKind:   string(a.Initiator.Kind),
			PoliceID:        a.Initiator.PoliceID,
			ImageURL:        a.ImageURL,
			MatchedImage:    a.MatchedImage,
			MissingPersonID: a.MissingPersonID,
			Confidence:      a.Confidence,
			Action:          string(a.Action),
			ReviewOf:        a.ReviewOf,
			CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, resp)
}
