package repository

import (
	"context"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
)

// ProductCache - то, что нужно декоратору от кеша
type ProductCache interface {
	CacheProduct(ctx context.Context, product *domain.Product) error
	GetCachedProduct(ctx context.Context, stripeProductID string) (*domain.Product, error)
	DeleteCachedProduct(ctx context.Context, stripeProductID string) error
}

// CachedProductRepository реализует ProductRepository с кешированием.
// Ошибки кеша только логируются, чтение всегда доходит до БД.
type CachedProductRepository struct {
	repo  ProductRepository
	cache ProductCache
	log   *logger.Logger
}

// NewCachedProductRepository создает новый репозиторий с кешированием
func NewCachedProductRepository(repo ProductRepository, cache ProductCache, log *logger.Logger) ProductRepository {
	return &CachedProductRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// GetByStripeID получает продукт (сначала из кеша, потом из БД)
func (r *CachedProductRepository) GetByStripeID(ctx context.Context, stripeProductID string) (*domain.Product, error) {
	cached, err := r.cache.GetCachedProduct(ctx, stripeProductID)
	if err != nil {
		r.log.Warnw("Error getting product from cache", "error", err, "productID", stripeProductID)
	}
	if cached != nil {
		return cached, nil
	}

	product, err := r.repo.GetByStripeID(ctx, stripeProductID)
	if err != nil {
		return nil, err
	}

	if err := r.cache.CacheProduct(ctx, product); err != nil {
		r.log.Warnw("Failed to cache product after DB read", "error", err, "productID", stripeProductID)
	}
	return product, nil
}

// Upsert сохраняет продукт в БД и обновляет кеш
func (r *CachedProductRepository) Upsert(ctx context.Context, product *domain.Product) error {
	if err := r.repo.Upsert(ctx, product); err != nil {
		return err
	}

	if err := r.cache.CacheProduct(ctx, product); err != nil {
		r.log.Warnw("Failed to cache product after upsert", "error", err, "productID", product.StripeProductID)
		// Старое значение не должно пережить запись
		if err := r.cache.DeleteCachedProduct(ctx, product.StripeProductID); err != nil {
			r.log.Warnw("Failed to invalidate cached product", "error", err, "productID", product.StripeProductID)
		}
	}
	return nil
}
