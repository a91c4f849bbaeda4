package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"review-backend/internal/documents"
	"review-backend/internal/layout"
	"review-backend/internal/pipeline"
	"review-backend/internal/shared/config"
	"review-backend/internal/shared/metrics"
	"review-backend/internal/shared/server/middleware"
	"review-backend/internal/shared/server/respond"
)

// RouterDeps carries everything NewRouter needs.
type RouterDeps struct {
	Config          config.Config
	DocumentHandler *documents.Handler
	ReviewHandler   *pipeline.Handler
	Parser          layout.Parser
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", healthHandler(deps.Parser))
	deps.DocumentHandler.RegisterRoutes(api)
	deps.ReviewHandler.RegisterRoutes(api)

	return r
}

// healthHandler reports service liveness and, when a visual parsing
// backend is configured, probes it with a short timeout.
func healthHandler(parser layout.Parser) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := gin.H{"ok": true}
		if parser != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			defer cancel()
			if err := parser.Health(ctx); err != nil {
				payload["parser"] = "down"
			} else {
				payload["parser"] = "up"
			}
		}
		respond.JSON(c, http.StatusOK, payload)
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
