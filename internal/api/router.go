package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/mpr/internal/api/handlers"
	"github.com/your-org/mpr/internal/api/ws"
	"github.com/your-org/mpr/internal/auth"
)

type RouterConfig struct {
	APIKey      string
	ScanTimeout time.Duration

	Scanner   handlers.Scanner
	Reviewer  handlers.Reviewer
	Cases     handlers.CaseLister
	Publisher handlers.TaskPublisher
	Hub       *ws.Hub

	DBCheck    handlers.Pinger
	MinIOCheck handlers.Pinger
	NATSCheck  handlers.Pinger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DBCheck, cfg.MinIOCheck, cfg.NATSCheck)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Matching
	matchH := handlers.NewMatchHandler(cfg.Scanner, cfg.ScanTimeout)
	v1.POST("/match", matchH.Match)

	// Review
	reviewH := handlers.NewReviewHandler(cfg.Reviewer)
	v1.POST("/matches/:id/confirm", reviewH.Confirm)
	v1.POST("/matches/:id/reject", reviewH.Reject)
	v1.GET("/cases/:id/attempts", reviewH.History)

	// Sweeps
	sweepH := handlers.NewSweepHandler(cfg.Cases, cfg.Publisher)
	v1.POST("/sweeps", sweepH.Start)

	return r
}

// corsConfig allows any origin and the custom headers the API reads.
func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AddAllowHeaders(auth.OfficerHeader, "X-API-Key")
	return c
}
