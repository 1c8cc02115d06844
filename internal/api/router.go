package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/intake-gateway/internal/handlers"
	"github.com/akylbek/payment-system/intake-gateway/internal/middleware"
	"github.com/akylbek/payment-system/intake-gateway/internal/telemetry"
)

func NewRouter(paymentHandler *handlers.PaymentHandler) *gin.Engine {
	r := NewBaseRouter("api")

	r.POST("/payments", paymentHandler.CreatePayment)
	r.GET("/payments-summary", paymentHandler.GetSummary)
	r.POST("/purge-payments", paymentHandler.PurgePayments)

	return r
}

// NewBaseRouter carries what every process serves: recovery, tracing,
// request ids, /health, /metrics and the JSON 404.
func NewBaseRouter(service string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": service})
	})

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not Found"})
	})

	return r
}
