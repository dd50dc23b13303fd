package source

import (
	"context"
	"strconv"

	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/pkg/hash"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
)

// CachedSource serves repeated searches from a Cache. Cache failures are
// logged and fall through to the wrapped source.
type CachedSource struct {
	next  evaluation.Source
	cache Cache
	log   *logger.Logger
}

// NewCachedSource wraps next with cache.
func NewCachedSource(next evaluation.Source, cache Cache, log *logger.Logger) *CachedSource {
	if log == nil {
		log = logger.Default()
	}
	return &CachedSource{
		next:  next,
		cache: cache,
		log:   log.WithSource(next.Name()),
	}
}

// Name returns the wrapped source name.
func (s *CachedSource) Name() string {
	return s.next.Name()
}

// Search returns cached results when present, otherwise searches and caches.
func (s *CachedSource) Search(ctx context.Context, q evaluation.Query, k int) ([]string, error) {
	key := CacheKey(s.next.Name(), q.Text, k)

	docIDs, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.WithQuery(q.ID).WithError(err).Warn("Cache read failed")
	} else if ok {
		return docIDs, nil
	}

	docIDs, err = s.next.Search(ctx, q, k)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, docIDs); err != nil {
		s.log.WithQuery(q.ID).WithError(err).Warn("Cache write failed")
	}
	return docIDs, nil
}

// CacheKey derives the cache key for a search.
func CacheKey(source, query string, k int) string {
	return hash.Key(source, query, strconv.Itoa(k))
}

var _ evaluation.Source = (*CachedSource)(nil)
