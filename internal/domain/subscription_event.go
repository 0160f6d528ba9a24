package domain

import "time"

// EventKind вид записи в аудите подписки
type EventKind string

const (
	EventKindStatusChange         EventKind = "status_change"
	EventKindPaymentFailed        EventKind = "payment_failed"
	EventKindPaymentSucceeded     EventKind = "payment_succeeded"
	EventKindTrialEnding          EventKind = "trial_ending"
	EventKindSubscriptionCanceled EventKind = "subscription_canceled"
	EventKindPaymentMethodUpdated EventKind = "payment_method_updated"
)

// NotificationStatus состояние уведомления клиента о событии
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// SubscriptionEvent - неизменяемая запись аудита подписки команды
type SubscriptionEvent struct {
	ID                   int64               `db:"id" json:"id"`
	TeamID               int64               `db:"team_id" json:"team_id"`
	Kind                 EventKind           `db:"event_type" json:"event_type"`
	PreviousStatus       *SubscriptionStatus `db:"previous_status" json:"previous_status,omitempty"`
	NewStatus            *SubscriptionStatus `db:"new_status" json:"new_status,omitempty"`
	StripeSubscriptionID *string             `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	Description          string              `db:"description" json:"description"`
	UserNotified         NotificationStatus  `db:"user_notified" json:"user_notified"`
	CreatedAt            time.Time           `db:"created_at" json:"created_at"`
}

// IsPaymentOutcome сообщает, относится ли запись к результату платежа
func (e SubscriptionEvent) IsPaymentOutcome() bool {
	return e.Kind == EventKindPaymentFailed || e.Kind == EventKindPaymentSucceeded
}
