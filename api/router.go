package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Domenick1991/charterbooking/internal/service/lifecycle"
)

// NewRouter mounts every handler under /api/v1. A nil migrator leaves the
// admin routes out.
func NewRouter(service lifecycle.UseCase, migrator MigrationUseCase, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if log != nil {
		router.Use(requestLogger(log))
	}

	v1 := router.Group("/api/v1")
	NewQuoteRequestHandler(service).Register(v1.Group("/quote-requests"))
	NewOfferHandler(service).Register(v1.Group("/offers"))
	NewBookingHandler(service).Register(v1.Group("/bookings"))
	NewInvoiceHandler(service).Register(v1.Group("/invoices"))
	NewPaymentHandler(service).Register(v1.Group("/payments"))
	NewAircraftHandler(service).Register(v1.Group("/aircraft"))
	if migrator != nil {
		NewMigrationHandler(migrator).Register(v1.Group("/admin/migrations"))
	}
	return router
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
