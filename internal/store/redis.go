// Package store keeps short-lived gateway state in Redis: job revocation
// flags and the cached location list.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revokedPrefix = "savana:revoked:"
	revokedTTL    = 24 * time.Hour
	LocationsKey  = "grass_locations"
	locationsTTL  = 10 * time.Minute
)

// kv is the subset of the Redis command set used here.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rc, nil
}

// Revocations records job handles whose status should no longer be polled.
type Revocations struct {
	rc kv
}

func NewRevocations(rc kv) *Revocations {
	return &Revocations{rc: rc}
}

func revokedKey(resourceID string) string {
	return revokedPrefix + resourceID
}

// Revoke flags resourceID. The flag expires after a day, well past any poll
// budget.
func (r *Revocations) Revoke(ctx context.Context, resourceID string) error {
	if err := r.rc.Set(ctx, revokedKey(resourceID), time.Now().UTC().Format(time.RFC3339), revokedTTL).Err(); err != nil {
		return fmt.Errorf("failed to revoke %s: %w", resourceID, err)
	}
	return nil
}

func (r *Revocations) IsRevoked(ctx context.Context, resourceID string) (bool, error) {
	n, err := r.rc.Exists(ctx, revokedKey(resourceID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read revocation of %s: %w", resourceID, err)
	}
	return n > 0, nil
}

// LocationCache holds the engine's location list response body.
type LocationCache struct {
	rc  kv
	ttl time.Duration
}

func NewLocationCache(rc kv) *LocationCache {
	return &LocationCache{rc: rc, ttl: locationsTTL}
}

// Get returns the cached body, or false on a miss.
func (c *LocationCache) Get(ctx context.Context) ([]byte, bool, error) {
	body, err := c.rc.Get(ctx, LocationsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache: %w", err)
	}
	return body, true, nil
}

func (c *LocationCache) Set(ctx context.Context, body []byte) error {
	if err := c.rc.Set(ctx, LocationsKey, body, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

func (c *LocationCache) Invalidate(ctx context.Context) error {
	if err := c.rc.Del(ctx, LocationsKey).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}
	return nil
}
