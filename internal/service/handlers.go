package service

import (
	"context"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
)

// NewHandlerTable собирает таблицу обработчиков для всех известных типов событий
func NewHandlerTable(reconciler Reconciler, bridge ChargeBridge, settlement Settlement, log *logger.Logger) HandlerTable {
	passive := logOnly(log)

	return HandlerTable{
		domain.EventSubscriptionCreated:      reconciler.HandleSubscriptionEvent,
		domain.EventSubscriptionUpdated:      reconciler.HandleSubscriptionEvent,
		domain.EventSubscriptionDeleted:      reconciler.HandleSubscriptionEvent,
		domain.EventSubscriptionTrialWillEnd: reconciler.HandleTrialEnding,

		domain.EventInvoicePaymentFailed:    reconciler.HandlePaymentFailed,
		domain.EventInvoicePaymentSucceeded: reconciler.HandlePaymentSucceeded,
		domain.EventInvoicePaid:             reconciler.HandlePaymentSucceeded,
		domain.EventInvoiceFinalized:        bridge.HandleInvoiceFinalized,
		domain.EventInvoiceCreated:          passive,
		domain.EventInvoiceUpdated:          passive,
		domain.EventInvoiceUpcoming:         passive,

		domain.EventCheckoutSessionCompleted: passive,
		domain.EventCustomerCreated:          passive,
		domain.EventCustomerUpdated:          passive,

		domain.EventSetupIntentCreated:    passive,
		domain.EventSetupIntentSucceeded:  passive,
		domain.EventSetupIntentFailed:     passive,
		domain.EventPaymentMethodAttached: passive,

		domain.EventOrderPaid:     settlement.HandleOrderPaid,
		domain.EventOrderDeclined: settlement.HandleOrderDeclined,
	}
}

// logOnly обработчик событий, которые не меняют состояние
func logOnly(log *logger.Logger) Handler {
	return func(_ context.Context, ev domain.Event) error {
		log.Infow("Webhook event received", "eventID", ev.ID, "type", ev.Type, "stripeCustomerID", ev.CustomerID())
		return nil
	}
}
