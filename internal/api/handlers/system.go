package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/inspectline/internal/eventbus"
	"github.com/your-org/inspectline/internal/storage"
)

// SystemHandler serves the unauthenticated liveness/readiness/metrics
// endpoints.
type SystemHandler struct {
	db    storage.StatsStore
	minio *storage.MinIOStore
	bus   *eventbus.Bus
}

func NewSystemHandler(db storage.StatsStore, minio *storage.MinIOStore, bus *eventbus.Bus) *SystemHandler {
	return &SystemHandler{db: db, minio: minio, bus: bus}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz checks every externalized collaborator this instance was
// wired with (Postgres ledger, MinIO mirror, NATS bus), skipping any
// that were not configured.
func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			healthy = false
		} else {
			checks["postgres"] = "ok"
		}
	}

	if h.minio != nil {
		if err := h.minio.Ping(ctx); err != nil {
			checks["minio"] = err.Error()
			healthy = false
		} else {
			checks["minio"] = "ok"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(); err != nil {
			checks["nats"] = err.Error()
			healthy = false
		} else {
			checks["nats"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
