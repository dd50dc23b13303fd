package evaluation

import "context"

// Query is a test query with its identifier.
type Query struct {
	ID   string `json:"id"`
	Text string `json:"query"`
}

// RelevanceJudgment represents human-labeled relevance for a query-doc pair
type RelevanceJudgment struct {
	QueryID   string `json:"query_id"`
	DocID     string `json:"doc_id"`
	Relevance int    `json:"relevance"` // 0=not relevant, higher is better
}

// ResultSet is the ranked list of document IDs returned for one query.
type ResultSet struct {
	QueryID string   `json:"query_id"`
	DocIDs  []string `json:"doc_ids"`
}

// Annotation is a returned document labeled with its human relevance grade.
type Annotation struct {
	QueryID   string `json:"query_id"`
	DocID     string `json:"doc_id"`
	Rank      int    `json:"rank"` // 1-based
	Relevance int    `json:"relevance"`
}

// Source produces ranked results for a query.
type Source interface {
	// Name identifies the source in logs and reports.
	Name() string

	// Search returns at most k document IDs, best first.
	Search(ctx context.Context, q Query, k int) ([]string, error)
}

// QueryScore contains metrics for a single query at one cutoff.
type QueryScore struct {
	QueryID   string  `json:"query_id"`
	Score     int     `json:"score"`
	Returned  int     `json:"returned"`
	NDCG      float64 `json:"ndcg"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	RR        float64 `json:"rr"`
	AP        float64 `json:"ap"`
}

// CutoffScore aggregates an evaluation at one cutoff across all queries.
type CutoffScore struct {
	Cutoff           int          `json:"cutoff"`
	Score            int          `json:"score"` // sum of relevance grades of returned documents
	QueryCount       int          `json:"query_count"`
	Returned         int          `json:"returned"`
	RelevantReturned int          `json:"relevant_returned"`
	MeanNDCG         float64      `json:"mean_ndcg"`
	MeanPrecision    float64      `json:"mean_precision"`
	MeanRecall       float64      `json:"mean_recall"`
	MeanMRR          float64      `json:"mean_mrr"`
	MAP              float64      `json:"map"`
	PerQuery         []QueryScore `json:"per_query,omitempty"`
}

// Sweep holds the scores of one source over several cutoffs, ascending.
type Sweep struct {
	Source string        `json:"source"`
	Scores []CutoffScore `json:"scores"`
}

// ScoreAt returns the score recorded for cutoff k.
func (s *Sweep) ScoreAt(k int) (CutoffScore, bool) {
	for _, sc := range s.Scores {
		if sc.Cutoff == k {
			return sc, true
		}
	}
	return CutoffScore{}, false
}

// Cutoffs returns the cutoffs covered by the sweep.
func (s *Sweep) Cutoffs() []int {
	ks := make([]int, len(s.Scores))
	for i, sc := range s.Scores {
		ks[i] = sc.Cutoff
	}
	return ks
}

// ComparisonRecord pairs the before and after score at one cutoff.
type ComparisonRecord struct {
	Cutoff      int `json:"cutoff"`
	Before      int `json:"before"`
	After       int `json:"after"`
	Improvement int `json:"improvement"`
	// PercentImprovement is nil when Before is zero.
	PercentImprovement *float64 `json:"percent_improvement"`
}

// ComparisonSummary describes the spread of percentage improvements.
// Cutoffs with an undefined percentage are left out.
type ComparisonSummary struct {
	Cutoffs       int     `json:"cutoffs"`
	Defined       int     `json:"defined"`
	MeanPercent   float64 `json:"mean_percent"`
	MedianPercent float64 `json:"median_percent"`
	MinPercent    float64 `json:"min_percent"`
	MaxPercent    float64 `json:"max_percent"`
	StdDevPercent float64 `json:"stddev_percent"`
}

// Comparison is the before/after evaluation of a ranking change.
type Comparison struct {
	Label   string             `json:"label,omitempty"`
	Before  *Sweep             `json:"before"`
	After   *Sweep             `json:"after"`
	Records []ComparisonRecord `json:"records"`
	Summary ComparisonSummary  `json:"summary"`
}
