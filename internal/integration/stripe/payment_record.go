package stripe

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/stripe/stripe-go/v78"
)

type paymentRecordResponse struct {
	stripe.APIResource
	ID string `json:"id"`
}

// ReportPayment сообщает Stripe о платеже, проведенном вне Stripe (payment_records/report_payment)
func (c *Client) ReportPayment(ctx context.Context, report domain.PaymentReport) (*domain.PaymentRecord, error) {
	params := &stripe.Params{IdempotencyKey: stripe.String(report.IdempotencyKey())}
	params.AddExtra("amount_requested[value]", strconv.FormatInt(report.Amount, 10))
	params.AddExtra("amount_requested[currency]", report.Currency)
	params.AddExtra("payment_method_details[type]", paymentMethodTypeCustom)
	params.AddExtra("payment_method_details[custom][type]", c.customPMType)
	if report.PaymentMethodID != "" {
		params.AddExtra("payment_method_details[payment_method]", report.PaymentMethodID)
	}
	params.AddExtra("customer_details[customer]", report.CustomerID)
	params.AddExtra("initiated_at", strconv.FormatInt(report.InitiatedAt.Unix(), 10))
	params.AddExtra("customer_presence", "on_session")
	params.AddExtra("payment_reference", report.Reference)
	params.AddExtra("outcome", string(report.Outcome))

	outcomeAt := strconv.FormatInt(report.OutcomeAt.Unix(), 10)
	switch report.Outcome {
	case domain.PaymentOutcomeGuaranteed:
		params.AddExtra("guaranteed[guaranteed_at]", outcomeAt)
	case domain.PaymentOutcomeFailed:
		params.AddExtra("failed[failed_at]", outcomeAt)
		reason := report.FailureReason
		if reason == "" {
			reason = "declined"
		}
		params.AddExtra("failed[reason]", reason)
	default:
		return nil, fmt.Errorf("stripe: unsupported payment outcome %q", report.Outcome)
	}
	for k, v := range report.Metadata {
		params.AddMetadata(k, v)
	}

	var resp paymentRecordResponse
	if err := c.call(ctx, http.MethodPost, "/v1/payment_records/report_payment", params, &resp); err != nil {
		return nil, c.wrapError("report payment", "payment record", report.Reference, err)
	}

	c.log.Infow("Payment reported to Stripe",
		"paymentRecordID", resp.ID,
		"outcome", string(report.Outcome),
		"reference", report.Reference,
		"stripeCustomerID", report.CustomerID,
	)
	return &domain.PaymentRecord{ID: resp.ID}, nil
}
