package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// Config конфигурация для клиента Stripe
type Config struct {
	APIKey        string
	WebhookSecret string
	// CustomPaymentMethodType - ID типа custom payment method (cpmt_...) для платежей Conekta
	CustomPaymentMethodType string
	// BaseURL переопределяет адрес API (используется в тестах)
	BaseURL string
}

// Client - шлюз к API Stripe поверх stripe-go
type Client struct {
	api           *client.API
	backend       stripe.Backend
	apiKey        string
	webhookSecret string
	customPMType  string
	log           *logger.Logger
}

// NewClient создает новый клиент Stripe
func NewClient(cfg Config, log *logger.Logger) *Client {
	backendCfg := &stripe.BackendConfig{
		LeveledLogger: &leveledLogger{log: log},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
		backendCfg.MaxNetworkRetries = stripe.Int64(0)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.APIKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &Client{
		api:           api,
		backend:       backend,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		customPMType:  cfg.CustomPaymentMethodType,
		log:           log,
	}
}

// call выполняет запрос к эндпоинту, которого нет в SDK
func (c *Client) call(ctx context.Context, method, path string, params *stripe.Params, v stripe.LastResponseSetter) error {
	params.Context = ctx
	return c.backend.Call(method, path, c.apiKey, params, v)
}

// leveledLogger направляет логи stripe-go в наш логгер
type leveledLogger struct {
	log *logger.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) { l.log.Debug(format, v...) }
func (l *leveledLogger) Infof(format string, v ...interface{})  { l.log.Debug(format, v...) }
func (l *leveledLogger) Warnf(format string, v ...interface{})  { l.log.Warn(format, v...) }
func (l *leveledLogger) Errorf(format string, v ...interface{}) { l.log.Error(format, v...) }

// isResourceMissing сообщает, что Stripe вернул resource_missing
func isResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing
}

// wrapError логирует ошибку и приводит resource_missing к domain.ErrNotFound
func (c *Client) wrapError(operation, entity, id string, err error) error {
	logStripeError(c.log, operation, err)
	if isResourceMissing(err) {
		return fmt.Errorf("stripe: %w", domain.NewNotFoundError(entity, id))
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode >= 500 {
		return fmt.Errorf("stripe: failed to %s: %w", operation,
			domain.NewExternalServiceError("stripe", string(stripeErr.Code), stripeErr.Msg, stripeErr.HTTPStatusCode, err))
	}
	return fmt.Errorf("stripe: failed to %s: %w", operation, err)
}

// logStripeError - вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
