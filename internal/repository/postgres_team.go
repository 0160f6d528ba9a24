package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/jmoiron/sqlx"
)

const teamColumns = `id, name, stripe_customer_id, stripe_subscription_id, stripe_product_id,
               plan_name, subscription_status, created_at, updated_at`

// postgresTeamRepo реализует TeamRepository для PostgreSQL.
type postgresTeamRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresTeamRepository создает новый экземпляр репозитория команд.
func NewPostgresTeamRepository(db *sqlx.DB, log *logger.Logger) TeamRepository {
	return &postgresTeamRepo{db: db, log: log}
}

// GetByID возвращает команду по локальному ID.
func (r *postgresTeamRepo) GetByID(ctx context.Context, teamID int64) (*domain.Team, error) {
	var team domain.Team
	query := `SELECT ` + teamColumns + ` FROM teams WHERE id = $1`

	if err := r.db.GetContext(ctx, &team, query, teamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("team", strconv.FormatInt(teamID, 10))
		}
		r.log.Errorw("Failed to get team by ID from DB", "error", err, "teamID", teamID)
		return nil, fmt.Errorf("repository: failed to get team by ID: %w", err)
	}
	return &team, nil
}

// GetByStripeCustomerID возвращает команду по ID клиента Stripe.
func (r *postgresTeamRepo) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Team, error) {
	var team domain.Team
	query := `SELECT ` + teamColumns + ` FROM teams WHERE stripe_customer_id = $1`

	if err := r.db.GetContext(ctx, &team, query, customerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Debugw("Team not found by Stripe customer ID", "customerID", customerID)
			return nil, domain.NewNotFoundError("team", customerID)
		}
		r.log.Errorw("Failed to get team by Stripe customer ID", "error", err, "customerID", customerID)
		return nil, fmt.Errorf("repository: failed to get team by customer ID: %w", err)
	}
	return &team, nil
}

// ApplySubscriptionState обновляет подписку команды одним запросом.
// Подзапрос блокирует строку и отдает предыдущий статус.
func (r *postgresTeamRepo) ApplySubscriptionState(ctx context.Context, teamID int64, state domain.SubscriptionState) (*domain.SubscriptionStatus, error) {
	query := `
        UPDATE teams AS t SET
            subscription_status = $2,
            stripe_subscription_id = $3,
            stripe_product_id = $4,
            plan_name = $5,
            updated_at = $6
        FROM (SELECT id, subscription_status FROM teams WHERE id = $1 FOR UPDATE) AS prev
        WHERE t.id = prev.id
        RETURNING prev.subscription_status`

	var previous *domain.SubscriptionStatus
	err := r.db.QueryRowxContext(ctx, query,
		teamID, string(state.Status), state.SubscriptionID, state.ProductID, state.PlanName, time.Now().UTC(),
	).Scan(&previous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("team", strconv.FormatInt(teamID, 10))
		}
		if isUniqueViolation(err) {
			r.log.Errorw("Subscription ID already linked to another team", "teamID", teamID, "subscriptionID", state.SubscriptionID)
			return nil, fmt.Errorf("repository: failed to apply subscription state: %w", ErrDuplicate)
		}
		r.log.Errorw("Failed to apply subscription state", "error", err, "teamID", teamID, "status", state.Status)
		return nil, fmt.Errorf("repository: failed to apply subscription state: %w", err)
	}

	r.log.Debugw("Subscription state applied", "teamID", teamID, "status", state.Status)
	return previous, nil
}
