package repository

import (
	"context"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
)

// DefaultPendingLease - через сколько зависшая pending-запись может быть перехвачена
// повторной доставкой того же события.
const DefaultPendingLease = 10 * time.Minute

// TeamRepository определяет методы для работы с командами (плательщиками).
type TeamRepository interface {
	// GetByID возвращает команду по локальному ID.
	GetByID(ctx context.Context, teamID int64) (*domain.Team, error)

	// GetByStripeCustomerID возвращает команду по ID клиента Stripe.
	GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Team, error)

	// ApplySubscriptionState атомарно записывает состояние подписки и
	// возвращает статус, который был до записи (nil, если подписки не было).
	ApplySubscriptionState(ctx context.Context, teamID int64, state domain.SubscriptionState) (*domain.SubscriptionStatus, error)
}

// WebhookRepository - журнал входящих вебхуков с CAS-переходами pending -> success|failed.
type WebhookRepository interface {
	// FindSucceeded возвращает успешно обработанную запись или ErrNotFound.
	FindSucceeded(ctx context.Context, externalEventID string) (*domain.WebhookReceipt, error)

	// Begin создает pending-запись (attempts=1) или перехватывает failed/зависшую
	// запись, увеличивая attempts. Возвращает domain.ErrDuplicateEvent, если
	// событие уже успешно обработано или обрабатывается другим вызовом.
	Begin(ctx context.Context, receipt *domain.WebhookReceipt) (*domain.WebhookReceipt, error)

	// MarkSucceeded переводит pending-запись в success.
	MarkSucceeded(ctx context.Context, externalEventID string) error

	// MarkFailed переводит pending-запись в failed с текстом ошибки.
	MarkFailed(ctx context.Context, externalEventID, message string) error

	// GetByEventID возвращает запись по внешнему ID события.
	GetByEventID(ctx context.Context, externalEventID string) (*domain.WebhookReceipt, error)

	// List возвращает записи, новые первыми.
	List(ctx context.Context, limit, offset int) ([]domain.WebhookReceipt, error)
}

// SubscriptionEventRepository - append-only аудит подписок.
type SubscriptionEventRepository interface {
	Create(ctx context.Context, event *domain.SubscriptionEvent) error
	ListByTeam(ctx context.Context, teamID int64, limit int) ([]domain.SubscriptionEvent, error)
	// LatestPaymentOutcome возвращает последнюю запись payment_failed/payment_succeeded или ErrNotFound.
	LatestPaymentOutcome(ctx context.Context, teamID int64) (*domain.SubscriptionEvent, error)
}

// ProductRepository - локальный кеш продуктов Stripe.
type ProductRepository interface {
	GetByStripeID(ctx context.Context, stripeProductID string) (*domain.Product, error)
	Upsert(ctx context.Context, product *domain.Product) error
}

// LinkRepository - таблица связей клиентов Stripe и Conekta.
type LinkRepository interface {
	GetByPrimaryCustomerID(ctx context.Context, customerID string) (*domain.ProcessorLink, error)
	GetBySecondaryCustomerID(ctx context.Context, customerID string) (*domain.ProcessorLink, error)
	// Upsert создает или обновляет связь по primary_customer_id.
	// Пустой источник оплаты не затирает сохраненный.
	Upsert(ctx context.Context, link *domain.ProcessorLink) error
}
