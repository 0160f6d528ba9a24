package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/subscription-reconciler/internal/domain"
	"github.com/Dhoini/subscription-reconciler/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префиксы ключей для различных типов данных
	productKeyPrefix = "product:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// RedisCacheRepository реализует кеширование для репозиториев с использованием Redis
type RedisCacheRepository struct {
	client *redis.Client
	log    *logger.Logger
	ttl    time.Duration
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return NewRedisCacheFromClient(client, log), nil
}

// NewRedisCacheFromClient оборачивает уже созданный клиент
func NewRedisCacheFromClient(client *redis.Client, log *logger.Logger) *RedisCacheRepository {
	return &RedisCacheRepository{client: client, log: log, ttl: defaultCacheTTL}
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// Ping проверяет доступность Redis (для /health)
func (r *RedisCacheRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// CacheProduct кеширует продукт в Redis
func (r *RedisCacheRepository) CacheProduct(ctx context.Context, product *domain.Product) error {
	key := productKeyPrefix + product.StripeProductID

	data, err := json.Marshal(product)
	if err != nil {
		r.log.Errorw("Failed to marshal product for caching", "error", err, "productID", product.StripeProductID)
		return fmt.Errorf("failed to marshal product: %w", err)
	}

	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.log.Errorw("Failed to cache product in Redis", "error", err, "productID", product.StripeProductID)
		return fmt.Errorf("failed to cache product: %w", err)
	}

	r.log.Debugw("Product cached successfully", "productID", product.StripeProductID)
	return nil
}

// GetCachedProduct получает продукт из кеша. Промах кеша - (nil, nil).
func (r *RedisCacheRepository) GetCachedProduct(ctx context.Context, stripeProductID string) (*domain.Product, error) {
	key := productKeyPrefix + stripeProductID

	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.log.Debugw("Product not found in cache", "productID", stripeProductID)
			return nil, nil
		}
		r.log.Errorw("Error getting product from Redis", "error", err, "productID", stripeProductID)
		return nil, fmt.Errorf("failed to get product from cache: %w", err)
	}

	var product domain.Product
	if err := json.Unmarshal(data, &product); err != nil {
		r.log.Errorw("Failed to unmarshal cached product", "error", err, "productID", stripeProductID)
		return nil, fmt.Errorf("failed to unmarshal cached product: %w", err)
	}

	r.log.Debugw("Product retrieved from cache", "productID", stripeProductID)
	return &product, nil
}

// DeleteCachedProduct удаляет продукт из кеша
func (r *RedisCacheRepository) DeleteCachedProduct(ctx context.Context, stripeProductID string) error {
	if err := r.client.Del(ctx, productKeyPrefix+stripeProductID).Err(); err != nil {
		r.log.Errorw("Failed to delete product from cache", "error", err, "productID", stripeProductID)
		return fmt.Errorf("failed to delete product from cache: %w", err)
	}
	return nil
}
