// Package api assembles the gin HTTP surface: unauthenticated system
// endpoints, an API-key-guarded /v1 group for the manual trigger and
// read-only history/config views, and the WebSocket push channel.
package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/inspectline/internal/api/handlers"
	"github.com/your-org/inspectline/internal/api/ws"
	"github.com/your-org/inspectline/internal/auth"
	"github.com/your-org/inspectline/internal/config"
	"github.com/your-org/inspectline/internal/eventbus"
	"github.com/your-org/inspectline/internal/storage"
)

// RouterConfig bundles the collaborators NewRouter wires into routes.
type RouterConfig struct {
	APIKey string
	Config *config.Config
	DB     storage.StatsStore
	MinIO  *storage.MinIOStore
	Bus    *eventbus.Bus
	Hub    *ws.Hub
	Orch   handlers.ManualTrigger
}

// NewRouter builds the gin engine with the Recovery+Logging+CORS
// middleware chain and the unauthenticated-system/authenticated-v1
// split.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Bus)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	v1.GET("/ws", cfg.Hub.HandleWS)

	triggerH := handlers.NewTriggerHandler(cfg.Orch)
	v1.POST("/trigger", triggerH.Trigger)

	statsH := handlers.NewStatsHandler(cfg.DB)
	v1.GET("/cycles", statsH.Recent)
	v1.GET("/stats/summary", statsH.Summary)

	configH := handlers.NewConfigHandler(cfg.Config)
	v1.GET("/config", configH.Get)

	return r
}
