package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/service"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/Dhoini/subscription-reconciler/pkg/req"
	"github.com/gin-gonic/gin"
)

// CancellationRequest тело запроса отмены в конце периода
type CancellationRequest struct {
	CancelAtPeriodEnd *bool `json:"cancel_at_period_end" validate:"required"`
}

// CheckoutRequest тело запроса оплаты через Conekta
type CheckoutRequest struct {
	CardToken string `json:"card_token" validate:"required"`
}

// SubscriptionHandler обработчик для подписок команд
type SubscriptionHandler struct {
	reconciler service.Reconciler
	checkout   service.CheckoutService
	log        *logger.Logger
}

// NewSubscriptionHandler создает новый обработчик подписок
func NewSubscriptionHandler(reconciler service.Reconciler, checkout service.CheckoutService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		reconciler: reconciler,
		checkout:   checkout,
		log:        log,
	}
}

func teamID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid team id %q", domain.ErrInvalidInput, c.Param("id"))
	}
	return id, nil
}

// GetSubscription возвращает представление подписки команды
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	id, err := teamID(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	view, err := h.reconciler.SubscriptionDetails(c.Request.Context(), id, time.Now())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListEvents возвращает журнал аудита подписки команды
func (h *SubscriptionHandler) ListEvents(c *gin.Context) {
	id, err := teamID(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	limit := queryInt(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	events, err := h.reconciler.ListEvents(c.Request.Context(), id, limit)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

// ScheduleCancellation включает или снимает отмену в конце периода
func (h *SubscriptionHandler) ScheduleCancellation(c *gin.Context) {
	id, err := teamID(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	body, err := req.HandleBody[CancellationRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	view, err := h.reconciler.ScheduleCancellation(c.Request.Context(), id, *body.CancelAtPeriodEnd)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// PayOutOfBand оплачивает незавершенную подписку картой Conekta
func (h *SubscriptionHandler) PayOutOfBand(c *gin.Context) {
	id, err := teamID(c)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	body, err := req.HandleBody[CheckoutRequest](c.Writer, c.Request, h.log)
	if err != nil {
		c.Abort()
		return
	}

	result, err := h.checkout.PayIncompleteSubscription(c.Request.Context(), id, body.CardToken)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
