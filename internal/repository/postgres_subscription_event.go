package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/jmoiron/sqlx"
)

const subscriptionEventColumns = `id, team_id, event_type, previous_status, new_status,
               stripe_subscription_id, description, user_notified, created_at`

// postgresSubscriptionEventRepo реализует SubscriptionEventRepository для PostgreSQL.
type postgresSubscriptionEventRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresSubscriptionEventRepository создает новый экземпляр репозитория аудита.
func NewPostgresSubscriptionEventRepository(db *sqlx.DB, log *logger.Logger) SubscriptionEventRepository {
	return &postgresSubscriptionEventRepo{db: db, log: log}
}

// Create добавляет запись в аудит. Записи никогда не обновляются.
func (r *postgresSubscriptionEventRepo) Create(ctx context.Context, event *domain.SubscriptionEvent) error {
	if event.UserNotified == "" {
		event.UserNotified = domain.NotificationPending
	}
	event.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO subscription_events (
            team_id, event_type, previous_status, new_status,
            stripe_subscription_id, description, user_notified, created_at
        ) VALUES (
            :team_id, :event_type, :previous_status, :new_status,
            :stripe_subscription_id, :description, :user_notified, :created_at
        ) RETURNING id`

	rows, err := r.db.NamedQueryContext(ctx, query, event)
	if err != nil {
		r.log.Errorw("Failed to create subscription event in DB", "error", err, "teamID", event.TeamID, "kind", event.Kind)
		return fmt.Errorf("repository: failed to create subscription event: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&event.ID); err != nil {
			return fmt.Errorf("repository: failed to scan subscription event id: %w", err)
		}
	}

	r.log.Debugw("Subscription event recorded", "teamID", event.TeamID, "kind", event.Kind, "id", event.ID)
	return rows.Err()
}

// ListByTeam возвращает последние записи аудита команды.
func (r *postgresSubscriptionEventRepo) ListByTeam(ctx context.Context, teamID int64, limit int) ([]domain.SubscriptionEvent, error) {
	events := []domain.SubscriptionEvent{}
	query := `SELECT ` + subscriptionEventColumns + ` FROM subscription_events
        WHERE team_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2`

	if err := r.db.SelectContext(ctx, &events, query, teamID, limit); err != nil {
		r.log.Errorw("Failed to list subscription events", "error", err, "teamID", teamID)
		return nil, fmt.Errorf("repository: failed to list subscription events: %w", err)
	}
	return events, nil
}

// LatestPaymentOutcome возвращает последнюю запись о результате платежа.
func (r *postgresSubscriptionEventRepo) LatestPaymentOutcome(ctx context.Context, teamID int64) (*domain.SubscriptionEvent, error) {
	var event domain.SubscriptionEvent
	query := `SELECT ` + subscriptionEventColumns + ` FROM subscription_events
        WHERE team_id = $1 AND event_type IN ('payment_failed', 'payment_succeeded')
        ORDER BY created_at DESC, id DESC
        LIMIT 1`

	if err := r.db.GetContext(ctx, &event, query, teamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.log.Errorw("Failed to get latest payment outcome", "error", err, "teamID", teamID)
		return nil, fmt.Errorf("repository: failed to get latest payment outcome: %w", err)
	}
	return &event, nil
}
