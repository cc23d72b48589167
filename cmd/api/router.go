package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bloom-api/internal/shared/middleware"
	"bloom-api/internal/shared/response"
	"bloom-api/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	// Global middlewares
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
	)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/health", healthCheckHandler(c))

		setupBookRoutes(v1, c)
		setupStatusRoutes(v1, c)
	}

	return router
}

// ========================================
// BOOK ROUTES
// ========================================
// POST /v1/books/{id}:upload-start, /v1/books/{id}:upload-finish
func setupBookRoutes(v1 *gin.RouterGroup, c *container.Container) {
	books := v1.Group("/books")
	books.Use(
		middleware.Environment(c.Config.DefaultEnvironment, c.Config.ConfiguredEnvironments()),
		middleware.AuthMiddleware(c.Permissions),
	)
	{
		books.POST("/:action", c.BookHandler.PostBookAction)
	}
}

// ========================================
// STATUS ROUTES
// ========================================
func setupStatusRoutes(v1 *gin.RouterGroup, c *container.Container) {
	v1.GET("/status/:id", c.StatusHandler.GetStatus)
}

func healthCheckHandler(c *container.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 5*time.Second)
		defer cancel()

		response.Health(ctx, c.HealthCheck(checkCtx))
	}
}
