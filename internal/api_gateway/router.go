package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aplus-bot/aplus-telegram-bot/internal/api_gateway/handler"
	"github.com/aplus-bot/aplus-telegram-bot/internal/api_gateway/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	ledgerHandler *handler.LedgerHandler,
	eventHandler *handler.EventHandler,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	v1 := r.Group("/api/v1")
	{
		// Ledger reads
		v1.GET("/totals", ledgerHandler.GetTotals)
		v1.GET("/records", ledgerHandler.ListRecords)

		// Chat event webhook
		v1.POST("/events", eventHandler.Submit)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	r.NoRoute(func(c *gin.Context) {
		handler.RespondNotFound(c, "")
	})
}
