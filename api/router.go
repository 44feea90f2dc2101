package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"api_artsale/internal/sales"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	Service *sales.Service
	Logger  *zap.Logger
	// Gatherer backs /metrics. When nil the endpoint is not registered.
	Gatherer prometheus.Gatherer
	// HealthChecks are run by /health, keyed by dependency name.
	HealthChecks map[string]HealthCheck
}

// InitRoutes registers every endpoint on the given Gin engine.
func InitRoutes(e *gin.Engine, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	// request bodies naming fields the endpoint does not accept are rejected
	binding.EnableDecoderDisallowUnknownFields = true

	e.Use(requestLogger(logger), recovery(logger))

	salesHandler := NewSalesHandler(deps.Service, logger)
	e.POST("/sales", salesHandler.handleCreateSale)
	e.GET("/sales", salesHandler.handleListSales)
	e.GET("/sales/:id", salesHandler.handleGetSale)
	e.PATCH("/sales/:id", salesHandler.handlePatchSale)
	e.DELETE("/sales/:id", salesHandler.handleDeleteSale)
	e.POST("/sales/:id/settle", salesHandler.handleSettleSale)

	for _, kind := range sales.Kinds {
		h := newBeneficiaryHandler(deps.Service, kind, logger)
		group := e.Group("/" + string(kind) + "s")
		group.POST("", h.handleCreate)
		group.GET("", h.handleList)
		group.GET("/:id", h.handleGet)
		group.PATCH("/:id", h.handlePatch)
		group.DELETE("/:id", h.handleDelete)
		group.POST("/:id/reset-owed", h.handleResetOwed)
	}

	e.GET("/beneficiaries/owed", salesHandler.handleListOwed)
	e.GET("/dashboard", salesHandler.handleDashboard)

	e.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	e.GET("/health", healthHandler(deps.HealthChecks, logger))
	if deps.Gatherer != nil {
		e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("request handled", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request handled", fields...)
		default:
			logger.Debug("request handled", fields...)
		}
	}
}

func recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic while handling request",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
			zap.Stack("stack"),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	})
}

func healthHandler(checks map[string]HealthCheck, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": results})
	}
}
