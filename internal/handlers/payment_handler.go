package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/intake-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/intake-gateway/internal/models"
	"github.com/akylbek/payment-system/intake-gateway/internal/telemetry"
)

type PaymentHandler struct {
	store     interfaces.PaymentStore
	publisher interfaces.JobPublisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewPaymentHandler(store interfaces.PaymentStore, publisher interfaces.JobPublisher, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	ctx := c.Request.Context()
	span := trace.SpanFromContext(ctx)

	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid payment request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if req.Amount.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	job := models.Job{
		CorrelationID: req.CorrelationID,
		Amount:        *req.Amount,
		RequestedAt:   h.now().UTC().Truncate(time.Millisecond),
	}

	payload, err := models.EncodeJob(job)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	if err := h.publisher.Publish(ctx, payload); err != nil {
		h.logger.Error("Failed to publish payment",
			zap.String("correlation_id", job.CorrelationID),
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Publish failed"})
		return
	}

	telemetry.PaymentsEnqueued.Inc()
	c.JSON(http.StatusOK, gin.H{"message": "enqueued"})
}

func (h *PaymentHandler) GetSummary(c *gin.Context) {
	r := models.TimeRange{
		From: h.parseBound(c, "from"),
		To:   h.parseBound(c, "to"),
	}
	_, hasFrom := c.GetQuery("from")
	_, hasTo := c.GetQuery("to")
	r.Filtered = hasFrom || hasTo

	summary, err := h.store.Summary(c.Request.Context(), r)
	if err != nil {
		h.logger.Error("Failed to build payments summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	c.JSON(http.StatusOK, summary.Response())
}

func (h *PaymentHandler) PurgePayments(c *gin.Context) {
	if err := h.store.PurgeAll(c.Request.Context()); err != nil {
		h.logger.Error("Failed to purge payments", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}

	h.logger.Info("Payments purged")
	c.JSON(http.StatusOK, gin.H{"message": "purged"})
}

// parseBound reads an RFC3339 query bound. Unparsable values leave that
// side unbounded.
func (h *PaymentHandler) parseBound(c *gin.Context, key string) time.Time {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		h.logger.Warn("Ignoring unparsable summary bound", zap.String("param", key), zap.String("value", raw))
		return time.Time{}
	}
	return t
}
