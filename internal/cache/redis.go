package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zsp-sports/gymbooking/config"
	"github.com/zsp-sports/gymbooking/internal/domain"
)

// RedisCache holds the read-side caches: the active package catalog and the
// per-package availability listing. Both are safe to serve slightly stale;
// the worker refreshes them on a ticker and the reservation path never
// consults them for admission decisions.
type RedisCache struct {
	client          *redis.Client
	packagesTTL     time.Duration
	availabilityTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, packagesTTL, availabilityTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:          redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		packagesTTL:     packagesTTL,
		availabilityTTL: availabilityTTL,
	}
}

func (c *RedisCache) GetPackages(ctx context.Context) ([]domain.Package, error) {
	data, err := c.client.Get(ctx, packagesKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var packages []domain.Package
	if err := json.Unmarshal(data, &packages); err != nil {
		return nil, err
	}
	return packages, nil
}

func (c *RedisCache) SetPackages(ctx context.Context, packages []domain.Package) error {
	payload, err := json.Marshal(packages)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, packagesKey(), payload, c.packagesTTL).Err()
}

func (c *RedisCache) GetAvailability(ctx context.Context, packageID int64) ([]domain.TimeslotAvailability, error) {
	data, err := c.client.Get(ctx, availabilityKey(packageID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var slots []domain.TimeslotAvailability
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func (c *RedisCache) SetAvailability(ctx context.Context, packageID int64, slots []domain.TimeslotAvailability) error {
	payload, err := json.Marshal(slots)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, availabilityKey(packageID), payload, c.availabilityTTL).Err()
}

// InvalidateAvailability drops the cached listing after an admission changes
// a slot's remaining capacity.
func (c *RedisCache) InvalidateAvailability(ctx context.Context, packageID int64) error {
	return c.client.Del(ctx, availabilityKey(packageID)).Err()
}

func packagesKey() string {
	return "cache:packages"
}

func availabilityKey(packageID int64) string {
	return fmt.Sprintf("cache:availability:package:%d", packageID)
}
