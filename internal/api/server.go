package api

import (
	"log/slog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/facilityiq/survey-intel/internal/services"
)

// NewRouter builds the HTTP surface for the survey timing engine.
func NewRouter(svc *services.Service, logger *slog.Logger, allowedOrigins []string) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	h := &handler{svc: svc, logger: logger}

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/relationships/mine", h.mineRelationships)
		v1.POST("/signals/update", h.updateSignals)

		facilities := v1.Group("/facilities/:id")
		{
			facilities.GET("/bellwethers", h.getBellwethers)
			facilities.GET("/signals", h.getActiveSignals)
			facilities.GET("/forecast", h.getForecast)
			facilities.GET("/risk-profile", h.getRiskProfile)
		}
	}

	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Status() >= 500 {
			logger.Error("request failed",
				slog.String("method", c.Request.Method),
				slog.String("path", c.Request.URL.Path),
				slog.Int("status", c.Writer.Status()))
		}
	}
}
