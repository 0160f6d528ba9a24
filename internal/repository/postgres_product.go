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

type postgresProductRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresProductRepository создает репозиторий локальной копии продуктов.
func NewPostgresProductRepository(db *sqlx.DB, log *logger.Logger) ProductRepository {
	return &postgresProductRepo{db: db, log: log}
}

// GetByStripeID возвращает продукт по ID в Stripe.
func (r *postgresProductRepo) GetByStripeID(ctx context.Context, stripeProductID string) (*domain.Product, error) {
	var product domain.Product
	query := `
        SELECT id, stripe_product_id, name, description, active, created_at, updated_at
        FROM products
        WHERE stripe_product_id = $1`

	if err := r.db.GetContext(ctx, &product, query, stripeProductID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Debugw("Product not found locally", "productID", stripeProductID)
			return nil, domain.NewNotFoundError("product", stripeProductID)
		}
		r.log.Errorw("Failed to get product from DB", "error", err, "productID", stripeProductID)
		return nil, fmt.Errorf("repository: failed to get product: %w", err)
	}
	return &product, nil
}

// Upsert сохраняет продукт, обновляя имя и описание при конфликте.
func (r *postgresProductRepo) Upsert(ctx context.Context, product *domain.Product) error {
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	query := `
        INSERT INTO products (stripe_product_id, name, description, active, created_at, updated_at)
        VALUES (:stripe_product_id, :name, :description, :active, :created_at, :updated_at)
        ON CONFLICT (stripe_product_id) DO UPDATE SET
            name = EXCLUDED.name,
            description = EXCLUDED.description,
            active = EXCLUDED.active,
            updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, product); err != nil {
		r.log.Errorw("Failed to upsert product", "error", err, "productID", product.StripeProductID)
		return fmt.Errorf("repository: failed to upsert product: %w", err)
	}

	r.log.Debugw("Product stored locally", "productID", product.StripeProductID, "name", product.Name)
	return nil
}
