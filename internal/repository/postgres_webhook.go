package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const receiptColumns = `id, external_event_id, provider, event_type, status, attempts, last_attempt_at,
               team_id, error_message, payload, created_at, processed_at`

// postgresWebhookRepo реализует WebhookRepository для PostgreSQL.
// Уникальность external_event_id и CAS по статусу обеспечивает сама БД.
type postgresWebhookRepo struct {
	db    *sqlx.DB
	log   *logger.Logger
	lease time.Duration
	now   func() time.Time
}

// NewPostgresWebhookRepository создает журнал вебхуков. lease <= 0 означает DefaultPendingLease.
func NewPostgresWebhookRepository(db *sqlx.DB, lease time.Duration, log *logger.Logger) WebhookRepository {
	if lease <= 0 {
		lease = DefaultPendingLease
	}
	return &postgresWebhookRepo{
		db:    db,
		log:   log,
		lease: lease,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// FindSucceeded возвращает успешно обработанную запись или ErrNotFound.
func (r *postgresWebhookRepo) FindSucceeded(ctx context.Context, externalEventID string) (*domain.WebhookReceipt, error) {
	var receipt domain.WebhookReceipt
	query := `SELECT ` + receiptColumns + ` FROM webhook_events
        WHERE external_event_id = $1 AND status = 'success'`

	if err := r.db.GetContext(ctx, &receipt, query, externalEventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to check webhook idempotency", "error", err, "eventID", externalEventID)
		return nil, fmt.Errorf("repository: failed to find succeeded webhook event: %w", err)
	}
	return &receipt, nil
}

// Begin вставляет pending-запись. При конфликте по external_event_id строка
// перехватывается только из failed или из pending с истекшей арендой.
func (r *postgresWebhookRepo) Begin(ctx context.Context, receipt *domain.WebhookReceipt) (*domain.WebhookReceipt, error) {
	now := r.now()
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}

	query := `
        INSERT INTO webhook_events (
            id, external_event_id, provider, event_type, status, attempts,
            last_attempt_at, team_id, payload, created_at
        ) VALUES ($1, $2, $3, $4, 'pending', 1, $5, $6, $7, $5)
        ON CONFLICT (external_event_id) DO UPDATE SET
            status = 'pending',
            attempts = webhook_events.attempts + 1,
            last_attempt_at = EXCLUDED.last_attempt_at,
            team_id = COALESCE(EXCLUDED.team_id, webhook_events.team_id),
            payload = EXCLUDED.payload,
            error_message = NULL
        WHERE webhook_events.status = 'failed'
           OR (webhook_events.status = 'pending' AND webhook_events.last_attempt_at < $8)
        RETURNING ` + receiptColumns

	var stored domain.WebhookReceipt
	err := r.db.GetContext(ctx, &stored, query,
		receipt.ID, receipt.ExternalEventID, string(receipt.Provider), string(receipt.EventType),
		now, receipt.TeamID, receipt.Payload, now.Add(-r.lease),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Infow("Webhook event already handled or in progress", "eventID", receipt.ExternalEventID)
			return nil, domain.ErrDuplicateEvent
		}
		r.log.Errorw("Failed to begin webhook event", "error", err, "eventID", receipt.ExternalEventID)
		return nil, fmt.Errorf("repository: failed to begin webhook event: %w", err)
	}

	r.log.Debugw("Webhook event logged as pending", "eventID", stored.ExternalEventID, "attempts", stored.Attempts)
	return &stored, nil
}

// MarkSucceeded переводит pending-запись в success.
func (r *postgresWebhookRepo) MarkSucceeded(ctx context.Context, externalEventID string) error {
	query := `
        UPDATE webhook_events SET status = 'success', processed_at = $2, error_message = NULL
        WHERE external_event_id = $1 AND status = 'pending'`
	return r.transition(ctx, "success", externalEventID, query, externalEventID, r.now())
}

// MarkFailed переводит pending-запись в failed.
func (r *postgresWebhookRepo) MarkFailed(ctx context.Context, externalEventID, message string) error {
	if message == "" {
		message = "unknown error"
	}
	query := `
        UPDATE webhook_events SET status = 'failed', error_message = $2, processed_at = $3
        WHERE external_event_id = $1 AND status = 'pending'`
	return r.transition(ctx, "failed", externalEventID, query, externalEventID, message, r.now())
}

func (r *postgresWebhookRepo) transition(ctx context.Context, target, eventID, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Errorw("Failed to update webhook event status", "error", err, "eventID", eventID, "target", target)
		return fmt.Errorf("repository: failed to mark webhook event %s: %w", target, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: failed to get affected rows count: %w", err)
	}
	if rows == 0 {
		r.log.Warnw("Webhook event is not pending, status not changed", "eventID", eventID, "target", target)
		return fmt.Errorf("repository: mark %s %s: %w", target, eventID, ErrReceiptNotPending)
	}
	return nil
}

// GetByEventID возвращает запись по внешнему ID события.
func (r *postgresWebhookRepo) GetByEventID(ctx context.Context, externalEventID string) (*domain.WebhookReceipt, error) {
	var receipt domain.WebhookReceipt
	query := `SELECT ` + receiptColumns + ` FROM webhook_events WHERE external_event_id = $1`

	if err := r.db.GetContext(ctx, &receipt, query, externalEventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("webhook event", externalEventID)
		}
		r.log.Errorw("Failed to get webhook event", "error", err, "eventID", externalEventID)
		return nil, fmt.Errorf("repository: failed to get webhook event: %w", err)
	}
	return &receipt, nil
}

// List возвращает записи журнала, новые первыми.
func (r *postgresWebhookRepo) List(ctx context.Context, limit, offset int) ([]domain.WebhookReceipt, error) {
	receipts := []domain.WebhookReceipt{}
	query := `SELECT ` + receiptColumns + ` FROM webhook_events
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`

	if err := r.db.SelectContext(ctx, &receipts, query, limit, offset); err != nil {
		r.log.Errorw("Failed to list webhook events", "error", err)
		return nil, fmt.Errorf("repository: failed to list webhook events: %w", err)
	}
	return receipts, nil
}
