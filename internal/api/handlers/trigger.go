package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ManualTrigger is the narrow orchestrator.Orchestrator surface this
// handler depends on, satisfied by *orchestrator.Orchestrator. Kept as
// an interface so internal/api/handlers doesn't import
// internal/orchestrator (which would import back into api/ws's
// UIController shape through the caller's wiring, not a real cycle,
// but the interface keeps this package's dependency graph one-way).
type ManualTrigger interface {
	RunCycle(ctx context.Context) (bool, error)
	DroppedTriggers() uint64
}

// TriggerHandler exposes the manual-trigger endpoint. Manual triggers
// observe the same single-inflight busy rule as the PLC-driven path.
type TriggerHandler struct {
	orch ManualTrigger
}

func NewTriggerHandler(orch ManualTrigger) *TriggerHandler {
	return &TriggerHandler{orch: orch}
}

func (h *TriggerHandler) Trigger(c *gin.Context) {
	passed, err := h.orch.RunCycle(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "dropped_total": h.orch.DroppedTriggers()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"passed": passed})
}
