package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/subscription-reconciler/internal/metrics"
	"github.com/Dhoini/subscription-reconciler/internal/repository"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
)

// PlanResolver определяет название плана по ID продукта Stripe
type PlanResolver interface {
	PlanName(ctx context.Context, productID string) (string, error)
}

type planResolver struct {
	products repository.ProductRepository
	primary  PrimaryGateway
	metrics  metrics.ReconcilerMetrics
	log      *logger.Logger
}

// NewPlanResolver создает резолвер: локальная таблица (с кешем), затем Stripe
func NewPlanResolver(products repository.ProductRepository, primary PrimaryGateway, m metrics.ReconcilerMetrics, log *logger.Logger) PlanResolver {
	return &planResolver{products: products, primary: primary, metrics: m, log: log}
}

func (r *planResolver) PlanName(ctx context.Context, productID string) (string, error) {
	if productID == "" {
		return "", nil
	}

	product, err := r.products.GetByStripeID(ctx, productID)
	if err == nil {
		r.metrics.IncPlanLookup("local")
		return product.Name, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		r.log.Warnw("Local product lookup failed, falling back to Stripe", "error", err, "productID", productID)
	}

	product, err = r.primary.GetProduct(ctx, productID)
	if err != nil {
		return "", fmt.Errorf("plan: failed to resolve product %s: %w", productID, err)
	}
	r.metrics.IncPlanLookup("remote")

	if err := r.products.Upsert(ctx, product); err != nil {
		r.log.Warnw("Failed to store product locally", "error", err, "productID", productID)
	}
	return product.Name, nil
}
