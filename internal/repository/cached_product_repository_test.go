package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/internal/repository"
	"github.com/Dhoini/subscription-reconciler/internal/repository/memory"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProductCache struct {
	items   map[string]domain.Product
	failSet bool
	gets    int
	deletes int
}

func newFakeProductCache() *fakeProductCache {
	return &fakeProductCache{items: map[string]domain.Product{}}
}

func (c *fakeProductCache) CacheProduct(_ context.Context, p *domain.Product) error {
	if c.failSet {
		return errors.New("redis down")
	}
	c.items[p.StripeProductID] = *p
	return nil
}

func (c *fakeProductCache) GetCachedProduct(_ context.Context, id string) (*domain.Product, error) {
	c.gets++
	p, ok := c.items[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (c *fakeProductCache) DeleteCachedProduct(_ context.Context, id string) error {
	c.deletes++
	delete(c.items, id)
	return nil
}

func TestCachedProductRepository_ReadThrough(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProductRepository(domain.Product{ID: 1, StripeProductID: "prod_1", Name: "Pro", Active: true})
	cache := newFakeProductCache()
	repo := repository.NewCachedProductRepository(store, cache, logger.NewNop())

	p, err := repo.GetByStripeID(ctx, "prod_1")
	require.NoError(t, err)
	assert.Equal(t, "Pro", p.Name)
	assert.Contains(t, cache.items, "prod_1")

	// второе чтение обслуживает кеш
	require.NoError(t, store.Upsert(ctx, &domain.Product{StripeProductID: "prod_1", Name: "Renamed"}))
	p, err = repo.GetByStripeID(ctx, "prod_1")
	require.NoError(t, err)
	assert.Equal(t, "Pro", p.Name)

	_, err = repo.GetByStripeID(ctx, "prod_missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCachedProductRepository_UpsertInvalidatesOnCacheFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProductRepository()
	cache := newFakeProductCache()
	cache.items["prod_1"] = domain.Product{StripeProductID: "prod_1", Name: "Stale"}
	cache.failSet = true
	repo := repository.NewCachedProductRepository(store, cache, logger.NewNop())

	require.NoError(t, repo.Upsert(ctx, &domain.Product{StripeProductID: "prod_1", Name: "Fresh"}))
	assert.Equal(t, 1, cache.deletes)
	assert.NotContains(t, cache.items, "prod_1")

	p, err := store.GetByStripeID(ctx, "prod_1")
	require.NoError(t, err)
	assert.Equal(t, "Fresh", p.Name)
}
