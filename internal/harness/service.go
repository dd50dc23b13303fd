// Package harness holds the loaded evaluation dataset and runs evaluations
// and comparisons for the HTTP, MCP and CLI surfaces.
package harness

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/dataset"
	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/history"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
	"github.com/ricesearch/rice-eval/internal/source"
)

// RemoteFactory builds a source that queries the remote search API. store
// selects a store on the remote side; empty means the configured default.
type RemoteFactory func(store string) (evaluation.Source, error)

// Options configures a Service. Every field is optional.
type Options struct {
	Evaluator evaluation.Config
	Cutoffs   []int
	Remote    RemoteFactory
	History   *history.Store
	Bus       bus.Bus
	Name      string // event source name
	Log       *logger.Logger
}

// Service owns the judgments and queries shared by concurrent requests.
type Service struct {
	opts Options
	log  *logger.Logger

	mu        sync.RWMutex
	evaluator *evaluation.Evaluator
	queries   []evaluation.Query
}

// Status describes the loaded dataset.
type Status struct {
	Judgments     int   `json:"judgments"`
	JudgedQueries int   `json:"judged_queries"`
	Queries       int   `json:"queries"`
	Cutoffs       []int `json:"cutoffs"`
	Remote        bool  `json:"remote"`
	History       bool  `json:"history"`
}

// New creates a service over judgments and queries. Either may be nil and
// loaded later.
func New(judgments *evaluation.JudgmentSet, queries []evaluation.Query, opts Options) *Service {
	if opts.Log == nil {
		opts.Log = logger.Default()
	}
	if opts.Name == "" {
		opts.Name = "rice-eval"
	}
	if len(opts.Cutoffs) == 0 {
		opts.Cutoffs = []int{1, 10, 25, 50, 75, 100}
	}

	s := &Service{opts: opts, log: opts.Log}
	s.evaluator = evaluation.NewEvaluator(judgments, opts.Evaluator, opts.Log)
	s.queries = queries
	return s
}

// SetJudgments replaces the judgment set. Evaluations already running keep
// the set they started with.
func (s *Service) SetJudgments(js *evaluation.JudgmentSet) {
	ev := evaluation.NewEvaluator(js, s.opts.Evaluator, s.log)

	s.mu.Lock()
	s.evaluator = ev
	s.mu.Unlock()

	s.log.Info("Judgments loaded", "judgments", js.Len(), "queries", len(js.Queries()))
}

// SetQueries replaces the query set.
func (s *Service) SetQueries(queries []evaluation.Query) {
	s.mu.Lock()
	s.queries = queries
	s.mu.Unlock()

	s.log.Info("Queries loaded", "queries", len(queries))
}

// Status reports what is loaded.
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	js := s.evaluator.Judgments()
	return Status{
		Judgments:     js.Len(),
		JudgedQueries: len(js.Queries()),
		Queries:       len(s.queries),
		Cutoffs:       append([]int(nil), s.opts.Cutoffs...),
		Remote:        s.opts.Remote != nil,
		History:       s.opts.History != nil,
	}
}

// Ready reports whether judgments are loaded.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evaluator.Judgments().Len() > 0
}

// History returns the history store, or nil when history is disabled.
func (s *Service) History() *history.Store {
	return s.opts.History
}

// Cutoffs returns the default cutoffs.
func (s *Service) Cutoffs() []int {
	return append([]int(nil), s.opts.Cutoffs...)
}

// RemoteSource builds a source for the remote search API.
func (s *Service) RemoteSource(store string) (evaluation.Source, error) {
	if s.opts.Remote == nil {
		return nil, apperrors.New(apperrors.CodeUnavailable, "remote search source is not configured")
	}
	return s.opts.Remote(store)
}

// snapshot returns the evaluator and the queries to run against srcs.
func (s *Service) snapshot(srcs ...evaluation.Source) (*evaluation.Evaluator, []evaluation.Query, error) {
	s.mu.RLock()
	ev, queries := s.evaluator, s.queries
	s.mu.RUnlock()

	if ev.Judgments().Len() == 0 {
		return nil, nil, apperrors.New(apperrors.CodeUnavailable, "no judgments loaded")
	}
	if len(queries) > 0 {
		return ev, queries, nil
	}

	// Runs are keyed by query ID, so the judged queries stand in for a
	// missing query file. Remote sources need query text.
	for _, src := range srcs {
		if _, ok := src.(*source.RunSource); !ok {
			return nil, nil, apperrors.ValidationError("no queries loaded")
		}
	}
	return ev, judgedQueries(ev.Judgments()), nil
}

func judgedQueries(js *evaluation.JudgmentSet) []evaluation.Query {
	ids := js.Queries()
	sort.Strings(ids)
	queries := make([]evaluation.Query, len(ids))
	for i, id := range ids {
		queries[i] = evaluation.Query{ID: id}
	}
	return queries
}

// Evaluate sweeps src over cutoffs, or the default cutoffs when none are
// given, and publishes an evaluation.completed event.
func (s *Service) Evaluate(ctx context.Context, src evaluation.Source, cutoffs []int) (*evaluation.Sweep, error) {
	ev, queries, err := s.snapshot(src)
	if err != nil {
		return nil, err
	}
	if len(cutoffs) == 0 {
		cutoffs = s.opts.Cutoffs
	}

	sweep, err := ev.Sweep(ctx, src, queries, cutoffs)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, bus.TopicEvaluationCompleted, bus.NewEvaluationEvent(s.opts.Name, sweep))
	return sweep, nil
}

// CompareRequest describes a before/after comparison.
type CompareRequest struct {
	Label   string
	Before  evaluation.Source
	After   evaluation.Source
	Cutoffs []int
	Save    bool
}

// CompareResult is a finished comparison. ID is set when it was saved.
type CompareResult struct {
	ID         string                 `json:"id,omitempty"`
	Comparison *evaluation.Comparison `json:"comparison"`
}

// Compare evaluates both sources with the same judgments, queries and
// cutoffs and pairs the scores. With Save set and history enabled the
// comparison is stored.
func (s *Service) Compare(ctx context.Context, req CompareRequest) (*CompareResult, error) {
	if req.Before == nil || req.After == nil {
		return nil, apperrors.ValidationError("before and after sources are required")
	}
	if req.Save && s.opts.History == nil {
		return nil, apperrors.New(apperrors.CodeUnavailable, "history is disabled")
	}

	cutoffs := req.Cutoffs
	if len(cutoffs) == 0 {
		cutoffs = s.opts.Cutoffs
	}

	// One snapshot for both sides so a concurrent reload cannot split them.
	ev, queries, err := s.snapshot(req.Before, req.After)
	if err != nil {
		return nil, err
	}

	before, err := ev.Sweep(ctx, req.Before, queries, cutoffs)
	if err != nil {
		return nil, fmt.Errorf("before: %w", err)
	}
	after, err := ev.Sweep(ctx, req.After, queries, cutoffs)
	if err != nil {
		return nil, fmt.Errorf("after: %w", err)
	}

	cmp, err := evaluation.Compare(before, after)
	if err != nil {
		return nil, err
	}
	cmp.Label = req.Label

	result := &CompareResult{Comparison: cmp}
	if req.Save {
		id, err := s.opts.History.Save(ctx, req.Label, cmp)
		if err != nil {
			return nil, err
		}
		result.ID = id
	}

	s.log.Info("Comparison finished",
		"before", before.Source,
		"after", after.Source,
		"cutoffs", len(cmp.Records),
		"defined", cmp.Summary.Defined,
		"mean_percent", cmp.Summary.MeanPercent,
		"history_id", result.ID,
	)

	s.publish(ctx, bus.TopicComparisonCompleted, bus.NewComparisonEvent(s.opts.Name, result.ID, cmp))
	return result, nil
}

// publish sends event when a bus is configured. A failed publish is logged
// and does not fail the evaluation.
func (s *Service) publish(ctx context.Context, topic string, event bus.Event) {
	if s.opts.Bus == nil {
		return
	}
	if err := s.opts.Bus.Publish(ctx, topic, event); err != nil {
		s.log.WithContext(ctx).Warn("Failed to publish event", "topic", topic, "error", err.Error())
	}
}

// RunSpec selects the ranked results of one side of an evaluation: an
// inline run keyed by query ID, or the remote search API.
type RunSpec struct {
	Name   string              `json:"name,omitempty"`
	Run    map[string][]string `json:"run,omitempty"`
	Remote bool                `json:"remote,omitempty"`
	Store  string              `json:"store,omitempty"`
}

// Source builds the source described by spec. fallbackName names an inline
// run without a name and prefixes validation messages.
func (s *Service) Source(spec RunSpec, fallbackName string) (evaluation.Source, error) {
	name := spec.Name
	if name == "" {
		name = fallbackName
	}

	switch {
	case spec.Remote && spec.Run != nil:
		return nil, apperrors.ValidationError(fmt.Sprintf("%s: run and remote are mutually exclusive", fallbackName))
	case spec.Remote:
		return s.RemoteSource(spec.Store)
	case spec.Run != nil:
		if err := security.ValidateRun(spec.Run); err != nil {
			return nil, err
		}
		return source.NewRunSource(name, dataset.Run(spec.Run)), nil
	default:
		return nil, apperrors.ValidationError(fmt.Sprintf("%s: a run or remote source is required", fallbackName))
	}
}

// BandBounds turns optional band bounds into a closed range. A nil bound is
// open.
func BandBounds(minPct, maxPct *float64) (lo, hi float64) {
	lo, hi = math.Inf(-1), math.Inf(1)
	if minPct != nil {
		lo = *minPct
	}
	if maxPct != nil {
		hi = *maxPct
	}
	return lo, hi
}
