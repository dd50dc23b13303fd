package evaluation

import (
	"fmt"
	"sort"

	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Annotate labels the first k documents of every result set with their
// human relevance grade. Unjudged documents get grade 0. A document repeated
// within the first k counts once, at the rank of its first occurrence.
func Annotate(results []ResultSet, judgments *JudgmentSet, k int) []Annotation {
	var annotations []Annotation
	for _, rs := range results {
		seen := make(map[string]struct{})
		for i, docID := range truncate(rs.DocIDs, k) {
			if _, dup := seen[docID]; dup {
				continue
			}
			seen[docID] = struct{}{}
			annotations = append(annotations, Annotation{
				QueryID:   rs.QueryID,
				DocID:     docID,
				Rank:      i + 1,
				Relevance: judgments.Relevance(rs.QueryID, docID),
			})
		}
	}
	return annotations
}

// SumScore totals the relevance grades of annotated results.
func SumScore(annotations []Annotation) int {
	total := 0
	for _, a := range annotations {
		total += a.Relevance
	}
	return total
}

// NormalizeCutoffs sorts cutoffs ascending and drops duplicates.
func NormalizeCutoffs(cutoffs []int) ([]int, error) {
	if len(cutoffs) == 0 {
		return nil, apperrors.ValidationError("at least one cutoff is required")
	}

	ks := append([]int(nil), cutoffs...)
	sort.Ints(ks)

	out := ks[:0]
	for i, k := range ks {
		if k < 1 {
			return nil, apperrors.ValidationError(fmt.Sprintf("cutoff %d must be positive", k))
		}
		if i > 0 && k == ks[i-1] {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func truncate(docIDs []string, k int) []string {
	if k >= 0 && len(docIDs) > k {
		return docIDs[:k]
	}
	return docIDs
}
