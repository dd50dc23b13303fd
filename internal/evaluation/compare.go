package evaluation

import (
	"fmt"

	"github.com/montanaflynn/stats"

	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// NewComparisonRecord pairs two scores at cutoff k. The percentage is left
// nil when before is zero.
func NewComparisonRecord(k, before, after int) ComparisonRecord {
	rec := ComparisonRecord{
		Cutoff:      k,
		Before:      before,
		After:       after,
		Improvement: after - before,
	}
	if before != 0 {
		pct := float64(after-before) / float64(before) * 100
		rec.PercentImprovement = &pct
	}
	return rec
}

// Compare pairs the scores of two sweeps cutoff by cutoff. Both sweeps must
// cover the same cutoffs.
func Compare(before, after *Sweep) (*Comparison, error) {
	if before == nil || after == nil {
		return nil, apperrors.ValidationError("both before and after sweeps are required")
	}
	if len(before.Scores) == 0 {
		return nil, apperrors.ValidationError("sweeps have no cutoffs")
	}
	if len(before.Scores) != len(after.Scores) {
		return nil, apperrors.ValidationError(fmt.Sprintf(
			"cutoff mismatch: before has %d, after has %d", len(before.Scores), len(after.Scores)))
	}

	records := make([]ComparisonRecord, 0, len(before.Scores))
	for i, b := range before.Scores {
		a := after.Scores[i]
		if a.Cutoff != b.Cutoff {
			return nil, apperrors.ValidationError(fmt.Sprintf(
				"cutoff mismatch at position %d: before k=%d, after k=%d", i, b.Cutoff, a.Cutoff))
		}
		records = append(records, NewComparisonRecord(b.Cutoff, b.Score, a.Score))
	}

	return &Comparison{
		Before:  before,
		After:   after,
		Records: records,
		Summary: Summarize(records),
	}, nil
}

// Summarize computes the spread of the defined percentage improvements.
func Summarize(records []ComparisonRecord) ComparisonSummary {
	summary := ComparisonSummary{Cutoffs: len(records)}

	pcts := Percentages(records)
	summary.Defined = len(pcts)
	if len(pcts) == 0 {
		return summary
	}

	data := stats.Float64Data(pcts)
	summary.MeanPercent, _ = data.Mean()
	summary.MedianPercent, _ = data.Median()
	summary.MinPercent, _ = data.Min()
	summary.MaxPercent, _ = data.Max()
	summary.StdDevPercent, _ = data.StandardDeviation()
	return summary
}

// Percentages returns the defined percentage improvements in cutoff order.
func Percentages(records []ComparisonRecord) []float64 {
	pcts := make([]float64, 0, len(records))
	for _, r := range records {
		if r.PercentImprovement != nil {
			pcts = append(pcts, *r.PercentImprovement)
		}
	}
	return pcts
}

// WithinBand reports whether every defined percentage improvement lies in
// [min, max]. A comparison with no defined percentage is never within band.
func (c *Comparison) WithinBand(min, max float64) bool {
	if c.Summary.Defined == 0 {
		return false
	}
	for _, r := range c.Records {
		if r.PercentImprovement == nil {
			continue
		}
		if p := *r.PercentImprovement; p < min || p > max {
			return false
		}
	}
	return true
}

// Record returns the record for cutoff k.
func (c *Comparison) Record(k int) (ComparisonRecord, bool) {
	for _, r := range c.Records {
		if r.Cutoff == k {
			return r, true
		}
	}
	return ComparisonRecord{}, false
}
