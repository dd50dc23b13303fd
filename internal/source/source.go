// Package source provides the result sources an evaluation draws ranked
// lists from.
package source

import (
	"context"

	"github.com/ricesearch/rice-eval/internal/dataset"
	"github.com/ricesearch/rice-eval/internal/evaluation"
)

// RunSource serves a precomputed run.
type RunSource struct {
	name string
	run  dataset.Run
}

// NewRunSource creates a source over run, keyed by canonical query IDs.
// Queries absent from the run get no results.
func NewRunSource(name string, run dataset.Run) *RunSource {
	return &RunSource{name: name, run: run.Canonical()}
}

// Name returns the run name.
func (s *RunSource) Name() string {
	return s.name
}

// Search returns at most k documents of the run for q.
func (s *RunSource) Search(ctx context.Context, q evaluation.Query, k int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs, ok := s.run[q.ID]
	if !ok {
		docs = s.run[evaluation.CanonicalID(q.ID)]
	}
	if k >= 0 && len(docs) > k {
		docs = docs[:k]
	}

	out := make([]string, len(docs))
	copy(out, docs)
	return out, nil
}

// Len returns the number of queries in the run.
func (s *RunSource) Len() int {
	return len(s.run)
}

var _ evaluation.Source = (*RunSource)(nil)
