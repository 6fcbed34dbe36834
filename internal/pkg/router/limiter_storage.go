package router

import (
	"strconv"

	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/MoodTunes/internal/pkg/config"
)

// NewLimiterStorage returns redis backed storage for the API rate limiter so
// the budget holds across instances. It uses database 1; the cache and job
// queue use database 0.
func NewLimiterStorage(cfg config.CacheConfig) *redis.Storage {
	port, err := strconv.Atoi(cfg.Port)
	if err != nil {
		port = 6379
	}
	return redis.New(redis.Config{
		Host:     cfg.Host,
		Port:     port,
		Password: cfg.Password,
		Database: 1,
		Reset:    false,
	})
}
