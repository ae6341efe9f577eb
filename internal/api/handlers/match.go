package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/mpr/internal/auth"
	apperrors "github.com/your-org/mpr/internal/errors"
	"github.com/your-org/mpr/internal/models"
	"github.com/your-org/mpr/internal/scan"
	"github.com/your-org/mpr/pkg/dto"
)

type Scanner interface {
	Run(ctx context.Context, req scan.Request) (*scan.Result, error)
}

type MatchHandler struct {
	scanner Scanner
	timeout time.Duration
}

func NewMatchHandler(scanner Scanner, timeout time.Duration) *MatchHandler {
	return &MatchHandler{scanner: scanner, timeout: timeout}
}

// Match runs a scan for a submitted image and returns the ranked candidates.
func (h *MatchHandler) Match(c *gin.Context) {
	var req dto.MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, matchFailure(err.Error()))
		return
	}

	initiator, err := auth.Initiator(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, matchFailure(err.Error()))
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.scanner.Run(ctx, scan.Request{
		MissingPersonID: req.MissingPersonID,
		ImageRef:        req.ImageURL,
		Initiator:       initiator,
		Trigger:         models.TriggerImage,
	})
	if err != nil {
		slog.Warn("match failed", "case", req.MissingPersonID, "error", err)
		c.JSON(apperrors.GetStatusCode(err), matchFailure(err.Error()))
		return
	}

	resp := dto.MatchResponse{
		Success:            true,
		Matches:            make([]dto.MatchResult, 0, len(res.Matches)),
		TotalImagesScanned: res.TotalImagesScanned,
	}
	for _, m := range res.Matches {
		resp.Matches = append(resp.Matches, dto.MatchResult{
			Confidence:       m.Confidence,
			MatchedImageURL:  m.ImageURL,
			MatchedImageName: m.ImageName,
			CandidateID:      m.AttemptID,
			Band:             string(m.Band),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func matchFailure(msg string) dto.MatchResponse {
	return dto.MatchResponse{Success: false, Matches: []dto.MatchResult{}, Error: msg}
}
