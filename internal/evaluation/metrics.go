package evaluation

import (
	"math"
	"sort"
)

// dcg sums graded gains with a log2 rank discount over the first k entries.
// Negative grades carry no gain.
func dcg(grades []int, k int) float64 {
	if k > len(grades) {
		k = len(grades)
	}

	total := 0.0
	for i := 0; i < k; i++ {
		if grades[i] <= 0 {
			continue
		}
		if i == 0 {
			total += float64(grades[i])
			continue
		}
		total += float64(grades[i]) / math.Log2(float64(i+2))
	}
	return total
}

// NDCG calculates Normalized Discounted Cumulative Gain at K.
// ideal holds every known grade for the query, best first; when nil the
// returned relevances are used as the ideal ordering.
func NDCG(relevances, ideal []int, k int) float64 {
	if k <= 0 || len(relevances) == 0 {
		return 0
	}

	if ideal == nil {
		ideal = make([]int, len(relevances))
		copy(ideal, relevances)
		sort.Sort(sort.Reverse(sort.IntSlice(ideal)))
	}

	idcg := dcg(ideal, k)
	if idcg <= 0 {
		return 0
	}
	return dcg(relevances, k) / idcg
}

// Recall calculates Recall at K against totalRelevant judged documents.
func Recall(relevances []int, k, threshold, totalRelevant int) float64 {
	if totalRelevant <= 0 {
		return 0
	}
	if k > len(relevances) {
		k = len(relevances)
	}

	relevantInK := 0
	for i := 0; i < k; i++ {
		if relevances[i] >= threshold {
			relevantInK++
		}
	}

	return float64(relevantInK) / float64(totalRelevant)
}

// Precision calculates Precision at K. Missing results count as not
// relevant, so a short list is not rewarded.
func Precision(relevances []int, k int, threshold int) float64 {
	if k <= 0 {
		return 0
	}

	n := k
	if n > len(relevances) {
		n = len(relevances)
	}

	relevant := 0
	for i := 0; i < n; i++ {
		if relevances[i] >= threshold {
			relevant++
		}
	}

	return float64(relevant) / float64(k)
}

// ReciprocalRank returns 1/rank of the first relevant result.
func ReciprocalRank(relevances []int, threshold int) float64 {
	for i, r := range relevances {
		if r >= threshold {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

// AveragePrecision calculates Average Precision. When totalRelevant is
// positive it normalizes by the judged relevant count instead of the number
// retrieved.
func AveragePrecision(relevances []int, threshold, totalRelevant int) float64 {
	relevant := 0
	sumPrecision := 0.0

	for i, r := range relevances {
		if r >= threshold {
			relevant++
			sumPrecision += float64(relevant) / float64(i+1)
		}
	}

	denom := relevant
	if totalRelevant > denom {
		denom = totalRelevant
	}
	if denom == 0 {
		return 0
	}
	return sumPrecision / float64(denom)
}
