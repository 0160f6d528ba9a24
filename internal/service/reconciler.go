package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/repository"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
)

// paidInvoicesLimit сколько оплаченных счетов учитывается в статистике
const paidInvoicesLimit = 100

// Reconciler синхронизирует локальное состояние подписок с событиями Stripe
type Reconciler interface {
	// Обработчики вебхуков
	HandleSubscriptionEvent(ctx context.Context, ev domain.Event) error
	HandleTrialEnding(ctx context.Context, ev domain.Event) error
	HandlePaymentFailed(ctx context.Context, ev domain.Event) error
	HandlePaymentSucceeded(ctx context.Context, ev domain.Event) error

	// Чтение и управление
	SubscriptionDetails(ctx context.Context, teamID int64, now time.Time) (*domain.SubscriptionView, error)
	ListEvents(ctx context.Context, teamID int64, limit int) ([]domain.SubscriptionEvent, error)
	ScheduleCancellation(ctx context.Context, teamID int64, cancel bool) (*domain.SubscriptionView, error)
}

type reconciler struct {
	teams   repository.TeamRepository
	events  repository.SubscriptionEventRepository
	audit   AuditLog
	plans   PlanResolver
	primary PrimaryGateway
	log     *logger.Logger
}

// NewReconciler создает сервис синхронизации подписок
func NewReconciler(
	teams repository.TeamRepository,
	events repository.SubscriptionEventRepository,
	audit AuditLog,
	plans PlanResolver,
	primary PrimaryGateway,
	log *logger.Logger,
) Reconciler {
	return &reconciler{
		teams:   teams,
		events:  events,
		audit:   audit,
		plans:   plans,
		primary: primary,
		log:     log,
	}
}

// teamForCustomer возвращает nil без ошибки, если клиент не привязан ни к одной команде
func (r *reconciler) teamForCustomer(ctx context.Context, customerID string) (*domain.Team, error) {
	if customerID == "" {
		return nil, nil
	}
	team, err := r.teams.GetByStripeCustomerID(ctx, customerID)
	if errors.Is(err, repository.ErrNotFound) {
		r.log.Warnw("No team found for Stripe customer", "stripeCustomerID", customerID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reconciler: failed to find team: %w", err)
	}
	return team, nil
}

// HandleSubscriptionEvent применяет снимок подписки к команде и пишет запись аудита
func (r *reconciler) HandleSubscriptionEvent(ctx context.Context, ev domain.Event) error {
	sub, ok := ev.Subject.(*domain.SubscriptionObject)
	if !ok {
		return fmt.Errorf("%w: %s carries no subscription", domain.ErrInvalidInput, ev.Type)
	}

	team, err := r.teamForCustomer(ctx, sub.CustomerID)
	if err != nil || team == nil {
		return err
	}

	status := sub.Status
	if ev.Type == domain.EventSubscriptionDeleted {
		status = domain.SubscriptionStatusCanceled
	}

	var planName string
	if status.HasLinkage() {
		planName, err = r.plans.PlanName(ctx, sub.ProductID)
		if err != nil {
			return err
		}
	}

	previous, err := r.teams.ApplySubscriptionState(ctx, team.ID, domain.NewSubscriptionState(status, sub.ID, sub.ProductID, planName))
	if err != nil {
		r.log.Errorw("Failed to apply subscription state", "error", err, "teamID", team.ID, "subscriptionID", sub.ID)
		return fmt.Errorf("reconciler: failed to update team %d: %w", team.ID, err)
	}

	kind := domain.EventKindStatusChange
	description := fmt.Sprintf("Subscription status changed to %s", status)
	if previous != nil {
		description = fmt.Sprintf("Subscription status changed from %s to %s", *previous, status)
	}
	if ev.Type == domain.EventSubscriptionDeleted {
		kind = domain.EventKindSubscriptionCanceled
		description = "Subscription canceled"
	}

	subID := sub.ID
	newStatus := status
	r.log.Infow("Subscription reconciled", "teamID", team.ID, "subscriptionID", sub.ID, "status", status, "plan", planName)
	return r.audit.Record(ctx, &domain.SubscriptionEvent{
		TeamID:               team.ID,
		Kind:                 kind,
		PreviousStatus:       previous,
		NewStatus:            &newStatus,
		StripeSubscriptionID: &subID,
		Description:          description,
	})
}

// HandleTrialEnding записывает уведомление о скором окончании пробного периода
func (r *reconciler) HandleTrialEnding(ctx context.Context, ev domain.Event) error {
	sub, ok := ev.Subject.(*domain.SubscriptionObject)
	if !ok {
		return fmt.Errorf("%w: %s carries no subscription", domain.ErrInvalidInput, ev.Type)
	}
	team, err := r.teamForCustomer(ctx, sub.CustomerID)
	if err != nil || team == nil {
		return err
	}

	description := "Trial period ends soon"
	if sub.TrialEnd != nil {
		description = fmt.Sprintf("Trial period ends on %s", sub.TrialEnd.UTC().Format("2006-01-02"))
	}
	subID := sub.ID
	return r.audit.Record(ctx, &domain.SubscriptionEvent{
		TeamID:               team.ID,
		Kind:                 domain.EventKindTrialEnding,
		StripeSubscriptionID: &subID,
		Description:          description,
	})
}

// HandlePaymentFailed записывает неудачную оплату счета
func (r *reconciler) HandlePaymentFailed(ctx context.Context, ev domain.Event) error {
	return r.recordInvoiceOutcome(ctx, ev, domain.EventKindPaymentFailed, "Payment of %s failed")
}

// HandlePaymentSucceeded записывает успешную оплату счета
func (r *reconciler) HandlePaymentSucceeded(ctx context.Context, ev domain.Event) error {
	return r.recordInvoiceOutcome(ctx, ev, domain.EventKindPaymentSucceeded, "Payment of %s succeeded")
}

func (r *reconciler) recordInvoiceOutcome(ctx context.Context, ev domain.Event, kind domain.EventKind, format string) error {
	inv, ok := ev.Subject.(*domain.InvoiceObject)
	if !ok {
		return fmt.Errorf("%w: %s carries no invoice", domain.ErrInvalidInput, ev.Type)
	}
	team, err := r.teamForCustomer(ctx, inv.CustomerID)
	if err != nil || team == nil {
		return err
	}

	amount := inv.AmountDue
	if kind == domain.EventKindPaymentSucceeded && inv.AmountPaid > 0 {
		amount = inv.AmountPaid
	}
	event := &domain.SubscriptionEvent{
		TeamID:      team.ID,
		Kind:        kind,
		Description: fmt.Sprintf(format, domain.FormatAmount(amount, inv.Currency)),
	}
	if inv.SubscriptionID != "" {
		subID := inv.SubscriptionID
		event.StripeSubscriptionID = &subID
	}
	return r.audit.Record(ctx, event)
}

// SubscriptionDetails собирает представление подписки команды для дашборда
func (r *reconciler) SubscriptionDetails(ctx context.Context, teamID int64, now time.Time) (*domain.SubscriptionView, error) {
	team, err := r.teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("reconciler: failed to get team %d: %w", teamID, err)
	}

	var sub *domain.SubscriptionObject
	if team.StripeSubscriptionID != nil {
		sub, err = r.primary.GetSubscription(ctx, *team.StripeSubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("reconciler: failed to get subscription: %w", err)
		}
	}

	var stats domain.InvoiceStats
	if team.StripeCustomerID != nil {
		invoices, err := r.primary.ListPaidInvoices(ctx, *team.StripeCustomerID, paidInvoicesLimit)
		if err != nil {
			r.log.Warnw("Failed to list paid invoices", "error", err, "teamID", teamID)
		} else {
			stats = domain.SummarizePaidInvoices(invoices)
		}
	}

	paymentFailed := false
	latest, err := r.events.LatestPaymentOutcome(ctx, teamID)
	switch {
	case err == nil:
		paymentFailed = latest.Kind == domain.EventKindPaymentFailed
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("reconciler: failed to read payment history: %w", err)
	}

	view := domain.BuildSubscriptionView(team, sub, stats, paymentFailed, now)
	return &view, nil
}

// ListEvents возвращает последние записи аудита команды
func (r *reconciler) ListEvents(ctx context.Context, teamID int64, limit int) ([]domain.SubscriptionEvent, error) {
	if _, err := r.teams.GetByID(ctx, teamID); err != nil {
		return nil, fmt.Errorf("reconciler: failed to get team %d: %w", teamID, err)
	}
	events, err := r.events.ListByTeam(ctx, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("reconciler: failed to list events: %w", err)
	}
	return events, nil
}

// ScheduleCancellation включает или снимает отмену подписки в конце периода.
// Локальное состояние обновится по вебхуку customer.subscription.updated.
func (r *reconciler) ScheduleCancellation(ctx context.Context, teamID int64, cancel bool) (*domain.SubscriptionView, error) {
	team, err := r.teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("reconciler: failed to get team %d: %w", teamID, err)
	}
	if team.StripeSubscriptionID == nil {
		return nil, fmt.Errorf("%w: team %d has no active subscription", domain.ErrInvalidInput, teamID)
	}

	sub, err := r.primary.SetCancelAtPeriodEnd(ctx, *team.StripeSubscriptionID, cancel)
	if err != nil {
		return nil, fmt.Errorf("reconciler: failed to update subscription: %w", err)
	}
	r.log.Infow("Cancellation at period end updated", "teamID", teamID, "subscriptionID", sub.ID, "cancel", cancel)

	view := domain.BuildSubscriptionView(team, sub, domain.InvoiceStats{}, false, time.Now())
	return &view, nil
}
