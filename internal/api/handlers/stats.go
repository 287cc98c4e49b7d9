package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/inspectline/internal/storage"
	"github.com/your-org/inspectline/pkg/dto"
)

// StatsHandler serves the read-only cycle-history and summary
// endpoints backing the operator UI's history view.
type StatsHandler struct {
	db storage.StatsStore
}

func NewStatsHandler(db storage.StatsStore) *StatsHandler {
	return &StatsHandler{db: db}
}

func (h *StatsHandler) Recent(c *gin.Context) {
	limit := 50
	if q := c.Query("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	recs, err := h.db.RecentCycles(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]dto.CycleDTO, 0, len(recs))
	for _, r := range recs {
		out = append(out, dto.CycleDTO{
			ID:              r.ID,
			Timestamp:       r.Timestamp,
			Passed:          r.Passed,
			TargetCountSeen: r.TargetCountSeen,
			TotalDetections: r.TotalDetections,
			Reason:          r.Reason,
			UsedRole:        r.UsedRole,
			UsedModelName:   r.UsedModelName,
			WasFallback:     r.WasFallback,
			TotalMS:         r.TotalMS,
			FPS:             r.FPS,
			ImagePath:       r.ImagePath,
		})
	}
	c.JSON(http.StatusOK, gin.H{"cycles": out})
}

func (h *StatsHandler) Summary(c *gin.Context) {
	total, passed, failed, err := h.db.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "passed": passed, "failed": failed})
}
