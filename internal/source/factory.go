package source

import (
	"fmt"
	"time"

	"github.com/ricesearch/rice-eval/internal/client"
	"github.com/ricesearch/rice-eval/internal/config"
	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
)

// NewCache creates the cache selected by cfg. It returns nil when caching is
// disabled.
func NewCache(cfg config.CacheConfig) (Cache, error) {
	ttl := time.Duration(cfg.TTL) * time.Second

	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryCache(cfg.Size, ttl), nil
	case "redis":
		return NewRedisCache(cfg.RedisURL, ttl)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// NewHTTP creates a throttled HTTP source for baseURL. An empty baseURL
// falls back to cfg.URL.
func NewHTTP(cfg config.SourceConfig, name, baseURL string) *HTTPSource {
	if baseURL == "" {
		baseURL = cfg.URL
	}
	c := client.New(client.Config{
		BaseURL: baseURL,
		Store:   cfg.Store,
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	})
	return NewHTTPSource(c, HTTPConfig{
		Name:              name,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	})
}

// WithCache wraps src with cache, or returns src when cache is nil.
func WithCache(src evaluation.Source, cache Cache, log *logger.Logger) evaluation.Source {
	if cache == nil {
		return src
	}
	return NewCachedSource(src, cache, log)
}
