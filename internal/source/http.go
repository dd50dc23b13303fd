package source

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/ricesearch/rice-eval/internal/client"
	"github.com/ricesearch/rice-eval/internal/evaluation"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// HTTPSource queries a remote search API.
type HTTPSource struct {
	name    string
	client  *client.Client
	limiter *rate.Limiter
}

// HTTPConfig configures an HTTPSource.
type HTTPConfig struct {
	// Name identifies the source in reports. Defaults to the base URL.
	Name string

	// RequestsPerSecond throttles outgoing searches. Zero means unlimited.
	RequestsPerSecond float64

	// Burst is the maximum burst size when throttled.
	Burst int
}

// NewHTTPSource creates a source backed by c.
func NewHTTPSource(c *client.Client, cfg HTTPConfig) *HTTPSource {
	name := cfg.Name
	if name == "" {
		name = c.BaseURL()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &HTTPSource{
		name:    name,
		client:  c,
		limiter: limiter,
	}
}

// Name returns the source name.
func (s *HTTPSource) Name() string {
	return s.name
}

// Search asks the remote API for k results.
func (s *HTTPSource) Search(ctx context.Context, q evaluation.Query, k int) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.client.Search(ctx, client.SearchRequest{
		Query: q.Text,
		TopK:  k,
	})
	if err != nil {
		return nil, apperrors.SourceError(s.name, err)
	}

	ids := resp.IDs()
	if len(ids) > k {
		ids = ids[:k]
	}
	return ids, nil
}

var _ evaluation.Source = (*HTTPSource)(nil)
