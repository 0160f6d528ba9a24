package domain

import (
	"fmt"
	"time"
)

// SubscriptionStatus статус подписки в первичном процессоре
type SubscriptionStatus string

const (
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

var knownStatuses = map[SubscriptionStatus]struct{}{
	SubscriptionStatusIncomplete:        {},
	SubscriptionStatusIncompleteExpired: {},
	SubscriptionStatusTrialing:          {},
	SubscriptionStatusActive:            {},
	SubscriptionStatusPastDue:           {},
	SubscriptionStatusCanceled:          {},
	SubscriptionStatusUnpaid:            {},
	SubscriptionStatusPaused:            {},
}

// ParseSubscriptionStatus проверяет, что строка является известным статусом
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	status := SubscriptionStatus(s)
	if _, ok := knownStatuses[status]; !ok {
		return "", fmt.Errorf("%w: unknown subscription status %q", ErrInvalidInput, s)
	}
	return status, nil
}

// IsActiveForService сообщает, дает ли статус доступ к сервису.
// past_due считается льготным периодом, а не блокировкой.
func (s SubscriptionStatus) IsActiveForService() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue:
		return true
	}
	return false
}

// NeedsAttention сообщает, требует ли подписка действий от клиента
func (s SubscriptionStatus) NeedsAttention() bool {
	switch s {
	case SubscriptionStatusPastDue, SubscriptionStatusUnpaid, SubscriptionStatusIncomplete:
		return true
	}
	return false
}

// IsTerminal сообщает, является ли статус конечным
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusIncompleteExpired
}

// HasLinkage сообщает, должна ли команда хранить ID подписки и продукта.
// Совпадает с набором IsActiveForService.
func (s SubscriptionStatus) HasLinkage() bool {
	return s.IsActiveForService()
}

// Label возвращает человекочитаемое название статуса для дашборда
func (s SubscriptionStatus) Label() string {
	switch s {
	case SubscriptionStatusActive:
		return "Active"
	case SubscriptionStatusTrialing:
		return "Trial period"
	case SubscriptionStatusPastDue:
		return "Payment overdue"
	case SubscriptionStatusCanceled:
		return "Canceled"
	case SubscriptionStatusUnpaid:
		return "Unpaid"
	case SubscriptionStatusIncomplete:
		return "Incomplete"
	case SubscriptionStatusIncompleteExpired:
		return "Expired"
	case SubscriptionStatusPaused:
		return "Paused"
	default:
		return "No subscription"
	}
}

// Team - локальная запись о плательщике (BillingEntity)
type Team struct {
	ID                   int64               `db:"id" json:"id"`
	Name                 string              `db:"name" json:"name"`
	StripeCustomerID     *string             `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string             `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	StripeProductID      *string             `db:"stripe_product_id" json:"stripe_product_id,omitempty"`
	PlanName             *string             `db:"plan_name" json:"plan_name,omitempty"`
	SubscriptionStatus   *SubscriptionStatus `db:"subscription_status" json:"subscription_status,omitempty"`
	CreatedAt            time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time           `db:"updated_at" json:"updated_at"`
}

// CurrentStatus возвращает статус или пустую строку, если подписки не было
func (t *Team) CurrentStatus() SubscriptionStatus {
	if t == nil || t.SubscriptionStatus == nil {
		return ""
	}
	return *t.SubscriptionStatus
}

// SubscriptionState - целевое состояние подписки команды, записываемое одним UPDATE
type SubscriptionState struct {
	SubscriptionID *string
	ProductID      *string
	PlanName       *string
	Status         SubscriptionStatus
}

// NewSubscriptionState строит состояние и обнуляет ссылки для статусов без доступа
func NewSubscriptionState(status SubscriptionStatus, subscriptionID, productID, planName string) SubscriptionState {
	state := SubscriptionState{Status: status}
	if !status.HasLinkage() {
		return state
	}
	state.SubscriptionID = optional(subscriptionID)
	state.ProductID = optional(productID)
	state.PlanName = optional(planName)
	return state
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
