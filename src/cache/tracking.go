package cache

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config holds connection settings for the tracking lookup cache.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// TrackingCache is a read-through Redis cache for public tracking
// lookups. It is strictly optional: when Redis is unreachable the
// server runs in standalone mode and every lookup goes to the
// database.
type TrackingCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger

	mu     sync.RWMutex
	active bool
}

// New creates a tracking cache. Call Start to connect.
func New(cfg Config, logger zerolog.Logger) *TrackingCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &TrackingCache{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		logger: logger.With().Str("component", "tracking-cache").Logger(),
	}
}

// Start verifies the Redis connection and enables the cache.
func (c *TrackingCache) Start(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.active = true
	c.mu.Unlock()

	c.logger.Info().Msg("tracking cache connected")
	return nil
}

// Stop disables the cache and closes the Redis connection.
func (c *TrackingCache) Stop() error {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
	return c.client.Close()
}

// Available reports whether the cache is connected.
func (c *TrackingCache) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Get returns the cached rendering for a tracking number, or false on
// a miss. Redis errors count as misses.
func (c *TrackingCache) Get(ctx context.Context, trackingNumber string) ([]byte, bool) {
	if !c.Available() {
		return nil, false
	}
	raw, err := c.client.Get(ctx, c.prefix+trackingNumber).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("cache read failed")
		}
		return nil, false
	}
	return raw, true
}

// Set stores the rendering for a tracking number with the configured
// TTL. Failures are logged and swallowed.
func (c *TrackingCache) Set(ctx context.Context, trackingNumber string, payload []byte) {
	if !c.Available() {
		return
	}
	if err := c.client.Set(ctx, c.prefix+trackingNumber, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("cache write failed")
	}
}

// Invalidate drops the cached rendering after a shipment mutation.
func (c *TrackingCache) Invalidate(ctx context.Context, trackingNumber string) {
	if !c.Available() {
		return
	}
	if err := c.client.Del(ctx, c.prefix+trackingNumber).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("cache invalidation failed")
	}
}
