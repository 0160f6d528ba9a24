package service

import (
	"context"
	"fmt"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/repository"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
)

// AuditLog записывает события подписки и передает их дальше
type AuditLog interface {
	Record(ctx context.Context, event *domain.SubscriptionEvent) error
}

type auditLog struct {
	repo      repository.SubscriptionEventRepository
	publisher AuditPublisher
	log       *logger.Logger
}

// NewAuditLog создает журнал аудита. publisher может быть nil, если Kafka не настроена.
func NewAuditLog(repo repository.SubscriptionEventRepository, publisher AuditPublisher, log *logger.Logger) AuditLog {
	return &auditLog{repo: repo, publisher: publisher, log: log}
}

// Record сохраняет запись. Публикация выполняется после сохранения и ее ошибки не возвращаются.
func (a *auditLog) Record(ctx context.Context, event *domain.SubscriptionEvent) error {
	if event.UserNotified == "" {
		event.UserNotified = domain.NotificationPending
	}
	if err := a.repo.Create(ctx, event); err != nil {
		a.log.Errorw("Failed to record subscription event", "error", err, "teamID", event.TeamID, "kind", event.Kind)
		return fmt.Errorf("audit: failed to record %s event: %w", event.Kind, err)
	}

	if a.publisher == nil {
		return nil
	}
	if err := a.publisher.PublishSubscriptionEvent(ctx, *event); err != nil {
		a.log.Warnw("Failed to publish subscription event", "error", err, "eventID", event.ID, "teamID", event.TeamID)
	}
	return nil
}
