package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/metrics"
	"github.com/Dhoini/subscription-reconciler/internal/repository/memory"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
)

type fakePrimary struct {
	mu sync.Mutex

	customers     map[string]*domain.CustomerObject
	products      map[string]*domain.Product
	subscriptions map[string]*domain.SubscriptionObject
	incomplete    map[string][]domain.IncompleteSubscription
	invoices      map[string]*domain.InvoiceObject
	paidInvoices  map[string][]domain.InvoiceObject
	methods       []domain.PaymentMethod

	reports       []domain.PaymentReport
	reportKeys    map[string]string
	defaults      map[string]string
	attached      []string
	productCalls  int
	customerCalls int
	createdPMs    int
	cancelUpdates map[string]bool

	getInvoiceErr    error
	updateInvoiceErr error
	attachInvoiceErr error
}

func newFakePrimary() *fakePrimary {
	return &fakePrimary{
		customers:     map[string]*domain.CustomerObject{},
		products:      map[string]*domain.Product{},
		subscriptions: map[string]*domain.SubscriptionObject{},
		incomplete:    map[string][]domain.IncompleteSubscription{},
		invoices:      map[string]*domain.InvoiceObject{},
		paidInvoices:  map[string][]domain.InvoiceObject{},
		defaults:      map[string]string{},
		cancelUpdates: map[string]bool{},
		reportKeys:    map[string]string{},
	}
}

func (f *fakePrimary) GetCustomer(_ context.Context, id string) (*domain.CustomerObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customerCalls++
	c, ok := f.customers[id]
	if !ok {
		return nil, domain.NewNotFoundError("customer", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakePrimary) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.productCalls++
	p, ok := f.products[id]
	if !ok {
		return nil, domain.NewNotFoundError("product", id)
	}
	cp := *p
	return &cp, nil
}

func (f *fakePrimary) GetSubscription(_ context.Context, id string) (*domain.SubscriptionObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subscriptions[id]
	if !ok {
		return nil, domain.NewNotFoundError("subscription", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakePrimary) ListIncompleteSubscriptions(_ context.Context, customerID string) ([]domain.IncompleteSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.incomplete[customerID], nil
}

func (f *fakePrimary) SetDefaultPaymentMethod(_ context.Context, subscriptionID, pmID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.defaults[subscriptionID] = pmID
	return nil
}

func (f *fakePrimary) SetCancelAtPeriodEnd(_ context.Context, subscriptionID string, cancel bool) (*domain.SubscriptionObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subscriptions[subscriptionID]
	if !ok {
		return nil, domain.NewNotFoundError("subscription", subscriptionID)
	}
	s.CancelAtPeriodEnd = cancel
	f.cancelUpdates[subscriptionID] = cancel
	cp := *s
	return &cp, nil
}

func (f *fakePrimary) GetInvoice(_ context.Context, id string) (*domain.InvoiceObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getInvoiceErr != nil {
		return nil, f.getInvoiceErr
	}
	inv, ok := f.invoices[id]
	if !ok {
		return nil, domain.NewNotFoundError("invoice", id)
	}
	cp := *inv
	cp.Metadata = copyMeta(inv.Metadata)
	return &cp, nil
}

func (f *fakePrimary) UpdateInvoiceMetadata(_ context.Context, id string, meta map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateInvoiceErr != nil {
		return f.updateInvoiceErr
	}
	inv, ok := f.invoices[id]
	if !ok {
		return domain.NewNotFoundError("invoice", id)
	}
	if inv.Metadata == nil {
		inv.Metadata = map[string]string{}
	}
	for k, v := range meta {
		inv.Metadata[k] = v
	}
	return nil
}

func (f *fakePrimary) ListPaidInvoices(_ context.Context, customerID string, _ int) ([]domain.InvoiceObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paidInvoices[customerID], nil
}

func (f *fakePrimary) AttachInvoicePayment(_ context.Context, invoiceID string, _ domain.InvoicePayment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachInvoiceErr != nil {
		return f.attachInvoiceErr
	}
	f.attached = append(f.attached, invoiceID)
	return nil
}

func (f *fakePrimary) ListCustomPaymentMethods(_ context.Context, customerID string) ([]domain.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.PaymentMethod
	for _, pm := range f.methods {
		if pm.CustomerID == customerID {
			out = append(out, pm)
		}
	}
	return out, nil
}

func (f *fakePrimary) CreateCustomPaymentMethod(_ context.Context, meta map[string]string) (*domain.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdPMs++
	pm := domain.PaymentMethod{ID: fmt.Sprintf("pm_%d", f.createdPMs), Type: "custom", Metadata: copyMeta(meta)}
	f.methods = append(f.methods, pm)
	return &pm, nil
}

func (f *fakePrimary) AttachPaymentMethod(_ context.Context, pmID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.methods {
		if f.methods[i].ID == pmID {
			f.methods[i].CustomerID = customerID
			return nil
		}
	}
	return domain.NewNotFoundError("payment_method", pmID)
}

func (f *fakePrimary) ReportPayment(_ context.Context, report domain.PaymentReport) (*domain.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Stripe возвращает ту же запись на повтор с тем же ключом
	if id, ok := f.reportKeys[report.IdempotencyKey()]; ok {
		return &domain.PaymentRecord{ID: id}, nil
	}
	f.reports = append(f.reports, report)
	id := fmt.Sprintf("prec_%d", len(f.reports))
	f.reportKeys[report.IdempotencyKey()] = id
	return &domain.PaymentRecord{ID: id}, nil
}

type fakeSecondary struct {
	mu sync.Mutex

	customers []domain.SecondaryCustomer
	sources   map[string][]domain.PaymentSource
	orders    []domain.OrderRequest
	orderErr  error

	createdCustomers int
	createdSources   int
}

func newFakeSecondary() *fakeSecondary {
	return &fakeSecondary{sources: map[string][]domain.PaymentSource{}}
}

func (f *fakeSecondary) SearchCustomersByEmail(_ context.Context, email string) ([]domain.SecondaryCustomer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.SecondaryCustomer
	for _, c := range f.customers {
		if c.Email == email {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSecondary) CreateCustomer(_ context.Context, in domain.NewSecondaryCustomer) (*domain.SecondaryCustomer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdCustomers++
	c := domain.SecondaryCustomer{
		ID:       fmt.Sprintf("cus_conekta_%d", f.createdCustomers),
		Email:    in.Email,
		Name:     in.Name,
		Metadata: in.Metadata.ToMap(),
	}
	f.customers = append(f.customers, c)
	return &c, nil
}

func (f *fakeSecondary) ListPaymentSources(_ context.Context, customerID string) ([]domain.PaymentSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PaymentSource(nil), f.sources[customerID]...), nil
}

func (f *fakeSecondary) CreatePaymentSource(_ context.Context, customerID, token string, meta domain.PaymentSourceMetadata) (*domain.PaymentSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdSources++
	src := domain.PaymentSource{
		ID:        fmt.Sprintf("src_%d", f.createdSources),
		Type:      domain.PaymentSourceTypeCard,
		CreatedAt: time.Now(),
		Metadata:  meta.ToMap(),
	}
	f.sources[customerID] = append(f.sources[customerID], src)
	return &src, nil
}

func (f *fakeSecondary) CreateOrder(_ context.Context, in domain.OrderRequest) (*domain.OrderObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, in)
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	n := len(f.orders)
	return &domain.OrderObject{
		ID:            fmt.Sprintf("ord_%d", n),
		Amount:        in.Amount,
		Currency:      in.Currency,
		PaymentStatus: "paid",
		CustomerID:    in.CustomerID,
		Metadata:      in.Metadata.ToMap(),
		Charges:       []domain.Charge{{ID: fmt.Sprintf("chr_%d", n), Amount: in.Amount, Currency: in.Currency, Status: domain.ChargeStatusPaid}},
	}, nil
}

func copyMeta(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// harness собирает все сервисы на памяти и фейках
type harness struct {
	teams     *memory.TeamRepository
	receipts  *memory.WebhookRepository
	events    *memory.SubscriptionEventRepository
	products  *memory.ProductRepository
	links     *memory.LinkRepository
	primary   *fakePrimary
	secondary *fakeSecondary

	audit      AuditLog
	correlator Correlator
	reconciler Reconciler
	bridge     ChargeBridge
	settlement Settlement
	checkout   CheckoutService
	processor  *Processor
}

func strPtr(s string) *string { return &s }

func newHarness(teams ...domain.Team) *harness {
	log := logger.NewNop()
	m := metrics.NewNop()
	h := &harness{
		teams:     memory.NewTeamRepository(teams...),
		receipts:  memory.NewWebhookRepository(0, nil),
		events:    memory.NewSubscriptionEventRepository(),
		products:  memory.NewProductRepository(),
		links:     memory.NewLinkRepository(),
		primary:   newFakePrimary(),
		secondary: newFakeSecondary(),
	}
	h.audit = NewAuditLog(h.events, nil, log)
	h.correlator = NewCorrelator(h.primary, h.secondary, h.links, log)
	plans := NewPlanResolver(h.products, h.primary, m, log)
	h.reconciler = NewReconciler(h.teams, h.events, h.audit, plans, h.primary, log)
	h.bridge = NewChargeBridge(h.correlator, h.primary, h.secondary, h.teams, h.audit, m, log)
	h.settlement = NewSettlement(h.correlator, h.teams, h.audit, log)
	h.checkout = NewCheckoutService(h.teams, h.primary, h.secondary, h.correlator, h.audit, m, log)
	h.processor = NewProcessor(h.receipts, h.teams, NewHandlerTable(h.reconciler, h.bridge, h.settlement, log), nil, m, log)
	return h
}

func (h *harness) eventsOfKind(kind domain.EventKind) []domain.SubscriptionEvent {
	var out []domain.SubscriptionEvent
	for _, e := range h.events.All() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
