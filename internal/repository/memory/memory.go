// Package memory содержит реализации репозиториев в памяти с той же семантикой
// уникальности и CAS, что и PostgreSQL. Используются в тестах и при app.env=local.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/repository"
	"github.com/google/uuid"
)

// Clock позволяет тестам управлять временем
type Clock func() time.Time

func defaultClock() time.Time { return time.Now().UTC() }

// TeamRepository реализация репозитория команд в памяти
type TeamRepository struct {
	mutex sync.RWMutex
	teams map[int64]domain.Team
}

// NewTeamRepository создает новый репозиторий команд в памяти
func NewTeamRepository(teams ...domain.Team) *TeamRepository {
	r := &TeamRepository{teams: make(map[int64]domain.Team)}
	for _, t := range teams {
		r.teams[t.ID] = t
	}
	return r
}

// Put добавляет или заменяет команду
func (r *TeamRepository) Put(team domain.Team) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.teams[team.ID] = team
}

func (r *TeamRepository) GetByID(_ context.Context, teamID int64) (*domain.Team, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	t, ok := r.teams[teamID]
	if !ok {
		return nil, domain.NewNotFoundError("team", strconv.FormatInt(teamID, 10))
	}
	return &t, nil
}

func (r *TeamRepository) GetByStripeCustomerID(_ context.Context, customerID string) (*domain.Team, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, t := range r.teams {
		if t.StripeCustomerID != nil && *t.StripeCustomerID == customerID {
			t := t
			return &t, nil
		}
	}
	return nil, domain.NewNotFoundError("team", customerID)
}

func (r *TeamRepository) ApplySubscriptionState(_ context.Context, teamID int64, state domain.SubscriptionState) (*domain.SubscriptionStatus, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	t, ok := r.teams[teamID]
	if !ok {
		return nil, domain.NewNotFoundError("team", strconv.FormatInt(teamID, 10))
	}
	if state.SubscriptionID != nil {
		for id, other := range r.teams {
			if id != teamID && other.StripeSubscriptionID != nil && *other.StripeSubscriptionID == *state.SubscriptionID {
				return nil, fmt.Errorf("repository: failed to apply subscription state: %w", repository.ErrDuplicate)
			}
		}
	}

	previous := t.SubscriptionStatus
	status := state.Status
	t.SubscriptionStatus = &status
	t.StripeSubscriptionID = state.SubscriptionID
	t.StripeProductID = state.ProductID
	t.PlanName = state.PlanName
	t.UpdatedAt = time.Now().UTC()
	r.teams[teamID] = t
	return previous, nil
}

// WebhookRepository реализация журнала вебхуков в памяти
type WebhookRepository struct {
	mutex    sync.Mutex
	receipts map[string]domain.WebhookReceipt
	lease    time.Duration
	now      Clock
}

// NewWebhookRepository создает журнал; lease <= 0 означает DefaultPendingLease
func NewWebhookRepository(lease time.Duration, now Clock) *WebhookRepository {
	if lease <= 0 {
		lease = repository.DefaultPendingLease
	}
	if now == nil {
		now = defaultClock
	}
	return &WebhookRepository{receipts: make(map[string]domain.WebhookReceipt), lease: lease, now: now}
}

func (r *WebhookRepository) FindSucceeded(_ context.Context, externalEventID string) (*domain.WebhookReceipt, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	rec, ok := r.receipts[externalEventID]
	if !ok || rec.Status != domain.ReceiptStatusSuccess {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (r *WebhookRepository) Begin(_ context.Context, receipt *domain.WebhookReceipt) (*domain.WebhookReceipt, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	now := r.now()

	existing, ok := r.receipts[receipt.ExternalEventID]
	if !ok {
		rec := *receipt
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		rec.Status = domain.ReceiptStatusPending
		rec.Attempts = 1
		rec.LastAttemptAt = now
		rec.CreatedAt = now
		rec.ErrorMessage = nil
		rec.ProcessedAt = nil
		r.receipts[rec.ExternalEventID] = rec
		return &rec, nil
	}

	reclaimable := existing.Status == domain.ReceiptStatusFailed ||
		(existing.Status == domain.ReceiptStatusPending && existing.LastAttemptAt.Before(now.Add(-r.lease)))
	if !reclaimable {
		return nil, domain.ErrDuplicateEvent
	}

	existing.Status = domain.ReceiptStatusPending
	existing.Attempts++
	existing.LastAttemptAt = now
	existing.ErrorMessage = nil
	existing.Payload = receipt.Payload
	if receipt.TeamID != nil {
		existing.TeamID = receipt.TeamID
	}
	r.receipts[existing.ExternalEventID] = existing
	return &existing, nil
}

func (r *WebhookRepository) MarkSucceeded(_ context.Context, externalEventID string) error {
	return r.transition(externalEventID, domain.ReceiptStatusSuccess, "")
}

func (r *WebhookRepository) MarkFailed(_ context.Context, externalEventID, message string) error {
	if message == "" {
		message = "unknown error"
	}
	return r.transition(externalEventID, domain.ReceiptStatusFailed, message)
}

func (r *WebhookRepository) transition(eventID string, target domain.ReceiptStatus, message string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	rec, ok := r.receipts[eventID]
	if !ok || rec.Status != domain.ReceiptStatusPending {
		return fmt.Errorf("repository: mark %s %s: %w", target, eventID, repository.ErrReceiptNotPending)
	}
	now := r.now()
	rec.Status = target
	rec.ProcessedAt = &now
	if message != "" {
		rec.ErrorMessage = &message
	} else {
		rec.ErrorMessage = nil
	}
	r.receipts[eventID] = rec
	return nil
}

func (r *WebhookRepository) GetByEventID(_ context.Context, externalEventID string) (*domain.WebhookReceipt, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	rec, ok := r.receipts[externalEventID]
	if !ok {
		return nil, domain.NewNotFoundError("webhook event", externalEventID)
	}
	return &rec, nil
}

func (r *WebhookRepository) List(_ context.Context, limit, offset int) ([]domain.WebhookReceipt, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	out := make([]domain.WebhookReceipt, 0, len(r.receipts))
	for _, rec := range r.receipts {
		out = append(out, rec)
	}
	// Сортируем события по времени создания (новые в начале)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return []domain.WebhookReceipt{}, nil
	}
	end := offset + limit
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

// SubscriptionEventRepository аудит подписок в памяти
type SubscriptionEventRepository struct {
	mutex  sync.RWMutex
	events []domain.SubscriptionEvent
	nextID int64
}

func NewSubscriptionEventRepository() *SubscriptionEventRepository {
	return &SubscriptionEventRepository{}
}

func (r *SubscriptionEventRepository) Create(_ context.Context, event *domain.SubscriptionEvent) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.nextID++
	event.ID = r.nextID
	event.CreatedAt = time.Now().UTC()
	if event.UserNotified == "" {
		event.UserNotified = domain.NotificationPending
	}
	r.events = append(r.events, *event)
	return nil
}

func (r *SubscriptionEventRepository) ListByTeam(_ context.Context, teamID int64, limit int) ([]domain.SubscriptionEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := []domain.SubscriptionEvent{}
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if r.events[i].TeamID == teamID {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

func (r *SubscriptionEventRepository) LatestPaymentOutcome(_ context.Context, teamID int64) (*domain.SubscriptionEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		ev := r.events[i]
		if ev.TeamID == teamID && ev.IsPaymentOutcome() {
			return &ev, nil
		}
	}
	return nil, repository.ErrNotFound
}

// All возвращает копию всех записей (для тестов)
func (r *SubscriptionEventRepository) All() []domain.SubscriptionEvent {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return append([]domain.SubscriptionEvent(nil), r.events...)
}

// ProductRepository продукты в памяти
type ProductRepository struct {
	mutex    sync.RWMutex
	products map[string]domain.Product
}

func NewProductRepository(products ...domain.Product) *ProductRepository {
	r := &ProductRepository{products: make(map[string]domain.Product)}
	for _, p := range products {
		r.products[p.StripeProductID] = p
	}
	return r
}

func (r *ProductRepository) GetByStripeID(_ context.Context, stripeProductID string) (*domain.Product, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	p, ok := r.products[stripeProductID]
	if !ok {
		return nil, domain.NewNotFoundError("product", stripeProductID)
	}
	return &p, nil
}

func (r *ProductRepository) Upsert(_ context.Context, product *domain.Product) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	now := time.Now().UTC()
	if existing, ok := r.products[product.StripeProductID]; ok {
		product.ID = existing.ID
		product.CreatedAt = existing.CreatedAt
	} else {
		product.ID = int64(len(r.products) + 1)
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	r.products[product.StripeProductID] = *product
	return nil
}

// LinkRepository связи процессоров в памяти
type LinkRepository struct {
	mutex sync.RWMutex
	links map[string]domain.ProcessorLink
}

func NewLinkRepository() *LinkRepository {
	return &LinkRepository{links: make(map[string]domain.ProcessorLink)}
}

func (r *LinkRepository) GetByPrimaryCustomerID(_ context.Context, customerID string) (*domain.ProcessorLink, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	l, ok := r.links[customerID]
	if !ok {
		return nil, domain.NewNotFoundError("processor link", customerID)
	}
	return &l, nil
}

func (r *LinkRepository) GetBySecondaryCustomerID(_ context.Context, customerID string) (*domain.ProcessorLink, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, l := range r.links {
		if l.SecondaryCustomerID == customerID {
			l := l
			return &l, nil
		}
	}
	return nil, domain.NewNotFoundError("processor link", customerID)
}

func (r *LinkRepository) Upsert(_ context.Context, link *domain.ProcessorLink) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for primary, l := range r.links {
		if primary != link.PrimaryCustomerID && l.SecondaryCustomerID == link.SecondaryCustomerID {
			return fmt.Errorf("repository: failed to upsert processor link: %w", repository.ErrDuplicate)
		}
	}
	now := time.Now().UTC()
	if existing, ok := r.links[link.PrimaryCustomerID]; ok {
		if link.SecondaryPaymentSourceID == nil {
			link.SecondaryPaymentSourceID = existing.SecondaryPaymentSourceID
		}
		if link.TeamID == nil {
			link.TeamID = existing.TeamID
		}
		link.ID = existing.ID
		link.CreatedAt = existing.CreatedAt
	} else {
		link.ID = int64(len(r.links) + 1)
		link.CreatedAt = now
	}
	link.UpdatedAt = now
	r.links[link.PrimaryCustomerID] = *link
	return nil
}

var (
	_ repository.TeamRepository              = (*TeamRepository)(nil)
	_ repository.WebhookRepository           = (*WebhookRepository)(nil)
	_ repository.SubscriptionEventRepository = (*SubscriptionEventRepository)(nil)
	_ repository.ProductRepository           = (*ProductRepository)(nil)
	_ repository.LinkRepository              = (*LinkRepository)(nil)
)
