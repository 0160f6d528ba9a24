package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Health оценка состояния подписки для дашборда
type Health string

const (
	HealthCritical   Health = "critical"
	HealthAtRisk     Health = "at_risk"
	HealthEvaluating Health = "evaluating"
	HealthExcellent  Health = "excellent"
	HealthPending    Health = "pending"
)

// DaysUntil - количество дней до target с округлением вверх, не меньше 0
func DaysUntil(target, now time.Time) int {
	if !target.After(now) {
		return 0
	}
	d := target.Sub(now)
	days := int(d / day)
	if d%day != 0 {
		days++
	}
	return days
}

// TrialDaysRemaining считается только для статуса trialing
func TrialDaysRemaining(status SubscriptionStatus, trialEnd *time.Time, now time.Time) int {
	if status != SubscriptionStatusTrialing || trialEnd == nil {
		return 0
	}
	return DaysUntil(*trialEnd, now)
}

// ClassifyHealth вычисляет оценку; порядок проверок важен
func ClassifyHealth(status SubscriptionStatus, paymentFailed, cancelAtPeriodEnd bool) Health {
	switch {
	case status.NeedsAttention() || paymentFailed:
		return HealthCritical
	case cancelAtPeriodEnd:
		return HealthAtRisk
	case status == SubscriptionStatusTrialing:
		return HealthEvaluating
	case status == SubscriptionStatusActive:
		return HealthExcellent
	default:
		return HealthPending
	}
}

// InvoiceStats статистика оплаченных счетов клиента
type InvoiceStats struct {
	PaidCount  int
	TotalPaid  int64 // в минимальных единицах валюты
	Currency   string
	LastPaidAt *time.Time
}

// SummarizePaidInvoices считает статистику по списку оплаченных счетов
func SummarizePaidInvoices(invoices []InvoiceObject) InvoiceStats {
	var stats InvoiceStats
	for _, inv := range invoices {
		stats.PaidCount++
		stats.TotalPaid += inv.AmountPaid
		if stats.Currency == "" {
			stats.Currency = inv.Currency
		}
		if inv.PaidAt != nil && (stats.LastPaidAt == nil || inv.PaidAt.After(*stats.LastPaidAt)) {
			stats.LastPaidAt = inv.PaidAt
		}
	}
	return stats
}

// SubscriptionView - вычисляемое представление подписки, не хранится
type SubscriptionView struct {
	TeamID             int64              `json:"team_id"`
	Status             SubscriptionStatus `json:"status"`
	StatusLabel        string             `json:"status_label"`
	PlanName           string             `json:"plan_name,omitempty"`
	IsActive           bool               `json:"is_active"`
	NeedsAttention     bool               `json:"needs_attention"`
	Health             Health             `json:"health"`
	TrialEnd           *time.Time         `json:"trial_end,omitempty"`
	TrialDaysRemaining int                `json:"trial_days_remaining"`
	NextBillingDate    *time.Time         `json:"next_billing_date,omitempty"`
	DaysToNextBilling  int                `json:"days_to_next_billing"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	PaymentFailed      bool               `json:"payment_failed"`
	PaidInvoices       int                `json:"paid_invoices"`
	TotalPaid          decimal.Decimal    `json:"total_paid"`
	Currency           string             `json:"currency,omitempty"`
}

// BuildSubscriptionView собирает представление из локальной записи и снимка подписки.
// sub может быть nil, если у команды нет подписки в Stripe.
func BuildSubscriptionView(team *Team, sub *SubscriptionObject, stats InvoiceStats, paymentFailed bool, now time.Time) SubscriptionView {
	status := team.CurrentStatus()
	view := SubscriptionView{
		TeamID:        team.ID,
		PaymentFailed: paymentFailed,
		PaidInvoices:  stats.PaidCount,
		TotalPaid:     MinorToMajor(stats.TotalPaid, stats.Currency),
		Currency:      stats.Currency,
	}
	if team.PlanName != nil {
		view.PlanName = *team.PlanName
	}

	if sub != nil {
		status = sub.Status
		view.TrialEnd = sub.TrialEnd
		view.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
		if sub.CurrentPeriodEnd != nil && !status.IsTerminal() {
			view.NextBillingDate = sub.CurrentPeriodEnd
			view.DaysToNextBilling = DaysUntil(*sub.CurrentPeriodEnd, now)
		}
		view.TrialDaysRemaining = TrialDaysRemaining(status, sub.TrialEnd, now)
	}

	view.Status = status
	view.StatusLabel = status.Label()
	view.IsActive = status.IsActiveForService()
	view.NeedsAttention = status.NeedsAttention()
	view.Health = ClassifyHealth(status, paymentFailed, view.CancelAtPeriodEnd)
	return view
}
