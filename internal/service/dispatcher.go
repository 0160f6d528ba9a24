package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/metrics"
	"github.com/Dhoini/subscription-reconciler/internal/repository"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/google/uuid"
)

// Outcome итог обработки события для ответа транспортного слоя
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Handler обрабатывает событие одного типа
type Handler func(ctx context.Context, ev domain.Event) error

// HandlerTable - таблица диспетчеризации: тип события -> обработчик
type HandlerTable map[domain.EventType]Handler

// Processor - вход всех вебхуков: журнал, идемпотентность и вызов обработчика.
type Processor struct {
	receipts repository.WebhookRepository
	teams    repository.TeamRepository
	handlers HandlerTable
	decoders map[domain.Provider]EventDecoder
	metrics  metrics.ReconcilerMetrics
	log      *logger.Logger
}

// NewProcessor создает обработчик вебхуков
func NewProcessor(
	receipts repository.WebhookRepository,
	teams repository.TeamRepository,
	handlers HandlerTable,
	decoders map[domain.Provider]EventDecoder,
	m metrics.ReconcilerMetrics,
	log *logger.Logger,
) *Processor {
	return &Processor{
		receipts: receipts,
		teams:    teams,
		handlers: handlers,
		decoders: decoders,
		metrics:  m,
		log:      log,
	}
}

// Process обрабатывает проверенное событие ровно один раз.
// Ошибка обработчика сохраняется в журнале и возвращается, чтобы источник повторил доставку.
func (p *Processor) Process(ctx context.Context, ev domain.Event) (Outcome, error) {
	start := time.Now()
	outcome, err := p.process(ctx, ev)

	label := string(outcome)
	if err != nil {
		label = "failed"
	}
	p.metrics.ObserveWebhook(string(ev.Provider), string(ev.Type), label, time.Since(start))
	return outcome, err
}

func (p *Processor) process(ctx context.Context, ev domain.Event) (Outcome, error) {
	if ev.ID == "" {
		return "", fmt.Errorf("%w: event id is required", domain.ErrInvalidInput)
	}

	if _, err := p.receipts.FindSucceeded(ctx, ev.ID); err == nil {
		p.log.Infow("Webhook event already processed", "eventID", ev.ID, "type", ev.Type)
		return OutcomeDuplicate, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("webhook: failed to check event %s: %w", ev.ID, err)
	}

	receipt := &domain.WebhookReceipt{
		ID:              uuid.New(),
		ExternalEventID: ev.ID,
		Provider:        ev.Provider,
		EventType:       ev.Type,
		TeamID:          p.associateTeam(ctx, ev),
		Payload:         ev.Payload,
	}
	if _, err := p.receipts.Begin(ctx, receipt); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			p.log.Infow("Webhook event is processed by another delivery", "eventID", ev.ID, "type", ev.Type)
			return OutcomeDuplicate, nil
		}
		return "", fmt.Errorf("webhook: failed to record event %s: %w", ev.ID, err)
	}

	outcome := OutcomeProcessed
	handler, ok := p.handlers[ev.Type]
	if !ok {
		p.log.Infow("Unhandled webhook event type", "eventID", ev.ID, "type", ev.Type, "provider", ev.Provider)
		outcome = OutcomeIgnored
	} else if err := p.invoke(ctx, handler, ev); err != nil {
		p.log.Errorw("Failed to handle webhook event", "error", err, "eventID", ev.ID, "type", ev.Type)
		return "", p.fail(ctx, ev.ID, err)
	}

	// запись статуса не должна прерываться отменой запроса
	if err := p.receipts.MarkSucceeded(context.WithoutCancel(ctx), ev.ID); err != nil {
		p.log.Errorw("Failed to mark webhook event as processed", "error", err, "eventID", ev.ID)
		return "", fmt.Errorf("webhook: failed to complete event %s: %w", ev.ID, err)
	}
	p.log.Infow("Webhook event processed", "eventID", ev.ID, "type", ev.Type, "outcome", outcome)
	return outcome, nil
}

func (p *Processor) fail(ctx context.Context, eventID string, handlerErr error) error {
	if err := p.receipts.MarkFailed(context.WithoutCancel(ctx), eventID, handlerErr.Error()); err != nil {
		p.log.Errorw("Failed to record webhook failure", "error", err, "eventID", eventID)
		return errors.Join(handlerErr, fmt.Errorf("webhook: failed to record failure of %s: %w", eventID, err))
	}
	return handlerErr
}

// invoke вызывает обработчик и превращает панику в ошибку
func (p *Processor) invoke(ctx context.Context, h Handler, ev domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("webhook: handler for %s panicked: %v", ev.Type, r)
		}
	}()
	return h(ctx, ev)
}

// associateTeam ищет команду по клиенту Stripe из объекта события. Ошибки не фатальны.
func (p *Processor) associateTeam(ctx context.Context, ev domain.Event) *int64 {
	customerID := ev.CustomerID()
	if customerID == "" {
		return nil
	}
	team, err := p.teams.GetByStripeCustomerID(ctx, customerID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			p.log.Warnw("Failed to associate webhook event with team", "error", err, "eventID", ev.ID)
		}
		return nil
	}
	return &team.ID
}

// Replay повторно обрабатывает событие из журнала, если последняя попытка завершилась ошибкой
func (p *Processor) Replay(ctx context.Context, eventID string) (Outcome, error) {
	receipt, err := p.receipts.GetByEventID(ctx, eventID)
	if err != nil {
		return "", fmt.Errorf("webhook: failed to get event %s: %w", eventID, err)
	}
	if receipt.Status != domain.ReceiptStatusFailed {
		return "", fmt.Errorf("%w: event %s is %s", domain.ErrReplayNotAllowed, eventID, receipt.Status)
	}

	decoder, ok := p.decoders[receipt.Provider]
	if !ok {
		return "", fmt.Errorf("%w: no decoder for provider %s", domain.ErrReplayNotAllowed, receipt.Provider)
	}
	ev, err := decoder.DecodeEvent(receipt.Payload)
	if err != nil {
		return "", fmt.Errorf("webhook: failed to decode stored event %s: %w", eventID, err)
	}

	p.log.Infow("Replaying webhook event", "eventID", eventID, "type", ev.Type, "attempts", receipt.Attempts)
	return p.Process(ctx, ev)
}

// ListReceipts возвращает журнал вебхуков, новые первыми
func (p *Processor) ListReceipts(ctx context.Context, limit, offset int) ([]domain.WebhookReceipt, error) {
	return p.receipts.List(ctx, limit, offset)
}

// GetReceipt возвращает запись журнала по ID события
func (p *Processor) GetReceipt(ctx context.Context, eventID string) (*domain.WebhookReceipt, error) {
	return p.receipts.GetByEventID(ctx, eventID)
}
