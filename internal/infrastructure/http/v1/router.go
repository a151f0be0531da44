package v1

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/rastersource/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(handler *handler.Handler, l logger.Logger, telemetryEnabled bool) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())

	if telemetryEnabled {
		r.Use(telemetry.GinMiddleware())
	}

	r.Use(ginZapLogger(l))

	api := r.Group("/api")
	v1 := api.Group("/v1")

	v1.GET("/healthz", handler.Healthz)
	v1.GET("/stats", handler.Stats)
	v1.GET("/attribution", handler.Attribution)

	sources := v1.Group("/sources")
	sources.POST("", handler.CreateSource)
	sources.GET("", handler.ListSources)
	sources.GET("/:id", handler.GetSource)
	sources.DELETE("/:id", handler.DeleteSource)
	sources.POST("/:id/resolve", handler.ResolveSource)
	sources.GET("/:id/attribution", handler.SourceAttribution)
	sources.GET("/:id/tiles/:z/:x/:y", handler.Tile)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func ginZapLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), l))

		start := time.Now()

		c.Next()

		latency := time.Since(start)

		l.Info("request",
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"latency", latency,
			"size", c.Writer.Size(),
		)
	}
}
