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

const linkColumns = `id, team_id, primary_customer_id, secondary_customer_id,
               secondary_payment_source_id, created_at, updated_at`

type postgresLinkRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresLinkRepository создает репозиторий связей Stripe <-> Conekta.
func NewPostgresLinkRepository(db *sqlx.DB, log *logger.Logger) LinkRepository {
	return &postgresLinkRepo{db: db, log: log}
}

func (r *postgresLinkRepo) GetByPrimaryCustomerID(ctx context.Context, customerID string) (*domain.ProcessorLink, error) {
	return r.getBy(ctx, "primary_customer_id", customerID)
}

func (r *postgresLinkRepo) GetBySecondaryCustomerID(ctx context.Context, customerID string) (*domain.ProcessorLink, error) {
	return r.getBy(ctx, "secondary_customer_id", customerID)
}

func (r *postgresLinkRepo) getBy(ctx context.Context, column, value string) (*domain.ProcessorLink, error) {
	var link domain.ProcessorLink
	query := `SELECT ` + linkColumns + ` FROM processor_links WHERE ` + column + ` = $1`

	if err := r.db.GetContext(ctx, &link, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewNotFoundError("processor link", value)
		}
		r.log.Errorw("Failed to get processor link", "error", err, column, value)
		return nil, fmt.Errorf("repository: failed to get processor link: %w", err)
	}
	return &link, nil
}

// Upsert создает или обновляет связь по primary_customer_id.
func (r *postgresLinkRepo) Upsert(ctx context.Context, link *domain.ProcessorLink) error {
	now := time.Now().UTC()
	link.CreatedAt = now
	link.UpdatedAt = now

	query := `
        INSERT INTO processor_links (
            team_id, primary_customer_id, secondary_customer_id,
            secondary_payment_source_id, created_at, updated_at
        ) VALUES (
            :team_id, :primary_customer_id, :secondary_customer_id,
            :secondary_payment_source_id, :created_at, :updated_at
        )
        ON CONFLICT (primary_customer_id) DO UPDATE SET
            secondary_customer_id = EXCLUDED.secondary_customer_id,
            secondary_payment_source_id = COALESCE(EXCLUDED.secondary_payment_source_id, processor_links.secondary_payment_source_id),
            team_id = COALESCE(EXCLUDED.team_id, processor_links.team_id),
            updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, link); err != nil {
		if isUniqueViolation(err) {
			r.log.Warnw("Secondary customer already linked to another primary customer",
				"primaryCustomerID", link.PrimaryCustomerID, "secondaryCustomerID", link.SecondaryCustomerID)
			return fmt.Errorf("repository: failed to upsert processor link: %w", ErrDuplicate)
		}
		r.log.Errorw("Failed to upsert processor link", "error", err, "primaryCustomerID", link.PrimaryCustomerID)
		return fmt.Errorf("repository: failed to upsert processor link: %w", err)
	}

	r.log.Debugw("Processor link stored", "primaryCustomerID", link.PrimaryCustomerID, "secondaryCustomerID", link.SecondaryCustomerID)
	return nil
}
