package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/service"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/gin-gonic/gin"
)

const (
	maxWebhookBodyBytes = 1 << 20
	defaultPageSize     = 50
	maxPageSize         = 200
)

// WebhookVerifier проверяет подпись и строит доменное событие
type WebhookVerifier interface {
	ParseWebhook(payload []byte, signature string) (domain.Event, error)
}

// WebhookProcessor обработка событий и доступ к журналу
type WebhookProcessor interface {
	Process(ctx context.Context, ev domain.Event) (service.Outcome, error)
	Replay(ctx context.Context, eventID string) (service.Outcome, error)
	ListReceipts(ctx context.Context, limit, offset int) ([]domain.WebhookReceipt, error)
	GetReceipt(ctx context.Context, eventID string) (*domain.WebhookReceipt, error)
}

// WebhookSource - проверяющий клиент процессора и заголовок с подписью
type WebhookSource struct {
	Verifier        WebhookVerifier
	SignatureHeader string
}

// WebhookHandler обработчик для вебхуков
type WebhookHandler struct {
	processor WebhookProcessor
	stripe    WebhookSource
	conekta   WebhookSource
	log       *logger.Logger
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(processor WebhookProcessor, stripe, conekta WebhookSource, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		stripe:    stripe,
		conekta:   conekta,
		log:       log,
	}
}

// HandleStripeWebhook обрабатывает вебхуки от Stripe
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	h.handle(c, h.stripe)
}

// HandleConektaWebhook обрабатывает вебхуки от Conekta
func (h *WebhookHandler) HandleConektaWebhook(c *gin.Context) {
	h.handle(c, h.conekta)
}

func (h *WebhookHandler) handle(c *gin.Context, source WebhookSource) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		h.log.Warnw("Failed to read webhook body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read webhook body"})
		return
	}

	ev, err := source.Verifier.ParseWebhook(payload, c.GetHeader(source.SignatureHeader))
	if err != nil {
		h.log.Warnw("Webhook rejected", "error", err, "path", c.FullPath())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Webhook validation failed"})
		return
	}

	outcome, err := h.processor.Process(c.Request.Context(), ev)
	if err != nil {
		h.log.Errorw("Webhook processing failed", "error", err, "eventID", ev.ID, "type", ev.Type)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed", "eventId": ev.ID})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"eventId":   ev.ID,
		"eventType": ev.Type,
		"outcome":   outcome,
	})
}

// ListWebhookEvents возвращает журнал вебхуков
func (h *WebhookHandler) ListWebhookEvents(c *gin.Context) {
	limit := queryInt(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	receipts, err := h.processor.ListReceipts(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": receipts, "limit": limit, "offset": offset})
}

// GetWebhookEvent возвращает запись журнала по ID события
func (h *WebhookHandler) GetWebhookEvent(c *gin.Context) {
	receipt, err := h.processor.GetReceipt(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// ReplayWebhookEvent повторно обрабатывает событие, завершившееся ошибкой
func (h *WebhookHandler) ReplayWebhookEvent(c *gin.Context) {
	eventID := c.Param("eventId")
	outcome, err := h.processor.Replay(c.Request.Context(), eventID)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.log.Infow("Webhook event replayed", "eventID", eventID, "outcome", outcome)
	c.JSON(http.StatusOK, gin.H{"eventId": eventID, "outcome": outcome})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
