package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/mpr/internal/models"
	"github.com/your-org/mpr/pkg/dto"
)

type CaseLister interface {
	ListOpenCasesWithPhoto(ctx context.Context) ([]models.MissingPersonCase, error)
}

type TaskPublisher interface {
	PublishScanTask(ctx context.Context, task models.ScanTask) error
}

type SweepHandler struct {
	cases     CaseLister
	publisher TaskPublisher
}

func NewSweepHandler(cases CaseLister, publisher TaskPublisher) *SweepHandler {
	return &SweepHandler{cases: cases, publisher: publisher}
}

// Start enqueues one automated scan per open case that has a photo.
func (h *SweepHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()

	cases, err := h.cases.ListOpenCasesWithPhoto(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var resp dto.SweepResponse
	now := time.Now().UTC()
	for _, mp := range cases {
		task := models.ScanTask{
			TaskID:          uuid.New(),
			MissingPersonID: mp.ID,
			ImageRef:        *mp.PhotoURL,
			Trigger:         models.TriggerSweep,
			EnqueuedAt:      now,
		}
		if err := h.publisher.PublishScanTask(ctx, task); err != nil {
			slog.Warn("enqueue sweep scan", "case", mp.ID, "error", err)
			resp.Failed++
			continue
		}
		resp.Enqueued++
	}

	slog.Info("sweep enqueued", "enqueued", resp.Enqueued, "failed", resp.Failed)
	c.JSON(http.StatusAccepted, resp)
}
