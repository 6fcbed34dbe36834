package cache

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/config"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the connection to the Redis compatible cache server
func SetupCache(cfg config.CacheConfig) {
	client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       0,
		// honour per-call deadlines so callers can bound a stalled server
		ContextTimeoutEnabled: true,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to cache: %v", err)
	} else {
		log.Infof("[Cache] Connected: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	return client
}

// SetClient replaces the client, e.g. with one pointing at miniredis in tests.
func SetClient(c *redis.Client) {
	client = c
}

// Ping reports whether the cache answers.
func Ping(c context.Context) error {
	if client == nil {
		return redis.ErrClosed
	}
	return client.Ping(c).Err()
}
