package evaluation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
)

// Config tunes an Evaluator.
type Config struct {
	// Workers bounds how many queries are searched concurrently.
	Workers int

	// RelevantGrade is the minimum grade counted as relevant for the binary
	// metrics (precision, recall, MRR, MAP).
	RelevantGrade int

	// KeepPerQuery keeps per-query scores in every CutoffScore.
	KeepPerQuery bool
}

// DefaultConfig returns sensible evaluator defaults.
func DefaultConfig() Config {
	return Config{
		Workers:       8,
		RelevantGrade: 1,
	}
}

// Evaluator orchestrates search evaluation against a judgment set.
type Evaluator struct {
	cfg       Config
	judgments *JudgmentSet
	log       *logger.Logger
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(judgments *JudgmentSet, cfg Config, log *logger.Logger) *Evaluator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RelevantGrade < 1 {
		cfg.RelevantGrade = 1
	}
	if judgments == nil {
		judgments = NewJudgmentSet()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Evaluator{
		cfg:       cfg,
		judgments: judgments,
		log:       log,
	}
}

// Judgments returns the judgment set the evaluator scores against.
func (e *Evaluator) Judgments() *JudgmentSet {
	return e.judgments
}

// Evaluate runs every query through src with k requested results and scores
// the output.
func (e *Evaluator) Evaluate(ctx context.Context, src Source, queries []Query, k int) (*CutoffScore, error) {
	sweep, err := e.Sweep(ctx, src, queries, []int{k})
	if err != nil {
		return nil, err
	}
	return &sweep.Scores[0], nil
}

// Sweep scores src at every cutoff. The source is queried once with the
// largest cutoff and the lists are truncated for smaller ones.
func (e *Evaluator) Sweep(ctx context.Context, src Source, queries []Query, cutoffs []int) (*Sweep, error) {
	if len(queries) == 0 {
		return nil, apperrors.ValidationError("no queries to evaluate")
	}
	ks, err := NormalizeCutoffs(cutoffs)
	if err != nil {
		return nil, err
	}

	log := e.log.WithSource(src.Name())
	log.Info("Running queries", "queries", len(queries), "max_k", ks[len(ks)-1])

	results, err := e.RunQueries(ctx, src, queries, ks[len(ks)-1])
	if err != nil {
		return nil, err
	}

	sweep := &Sweep{
		Source: src.Name(),
		Scores: make([]CutoffScore, 0, len(ks)),
	}
	for _, k := range ks {
		score := e.ScoreResults(results, k)
		log.Debug("Scored cutoff", "k", k, "score", score.Score, "ndcg", score.MeanNDCG)
		sweep.Scores = append(sweep.Scores, score)
	}

	return sweep, nil
}

// RunQueries searches every query with k requested results. Lists are kept
// as returned, repeats included, so every cutoff truncates the same ranking.
// Output order follows queries regardless of scheduling; the first failure
// cancels the remaining searches.
func (e *Evaluator) RunQueries(ctx context.Context, src Source, queries []Query, k int) ([]ResultSet, error) {
	results := make([]ResultSet, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for i, q := range queries {
		g.Go(func() error {
			docIDs, err := src.Search(gctx, q, k)
			if err != nil {
				e.log.WithSource(src.Name()).WithQuery(q.ID).WithError(err).Warn("Search failed")
				return fmt.Errorf("query %s: %w", q.ID, err)
			}
			results[i] = ResultSet{
				QueryID: q.ID,
				DocIDs:  truncate(docIDs, k),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// ScoreResults computes the sum score and ranking metrics at cutoff k.
func (e *Evaluator) ScoreResults(results []ResultSet, k int) CutoffScore {
	threshold := e.cfg.RelevantGrade
	score := CutoffScore{
		Cutoff:     k,
		QueryCount: len(results),
	}

	for _, rs := range results {
		annotations := Annotate([]ResultSet{rs}, e.judgments, k)
		relevances := make([]int, len(annotations))
		for i, a := range annotations {
			relevances[i] = a.Relevance
			if a.Relevance >= threshold {
				score.RelevantReturned++
			}
		}

		totalRelevant := e.judgments.RelevantCount(rs.QueryID, threshold)
		qs := QueryScore{
			QueryID:   rs.QueryID,
			Score:     SumScore(annotations),
			Returned:  len(annotations),
			NDCG:      NDCG(relevances, e.judgments.IdealGrades(rs.QueryID), k),
			Precision: Precision(relevances, k, threshold),
			Recall:    Recall(relevances, k, threshold, totalRelevant),
			RR:        ReciprocalRank(relevances, threshold),
			AP:        AveragePrecision(relevances, threshold, totalRelevant),
		}

		score.Score += qs.Score
		score.Returned += qs.Returned
		score.MeanNDCG += qs.NDCG
		score.MeanPrecision += qs.Precision
		score.MeanRecall += qs.Recall
		score.MeanMRR += qs.RR
		score.MAP += qs.AP

		if e.cfg.KeepPerQuery {
			score.PerQuery = append(score.PerQuery, qs)
		}
	}

	if n := float64(len(results)); n > 0 {
		score.MeanNDCG /= n
		score.MeanPrecision /= n
		score.MeanRecall /= n
		score.MeanMRR /= n
		score.MAP /= n
	}

	return score
}
