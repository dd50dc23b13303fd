package security

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Request limits.
const (
	MaxCutoff          = 10000
	MaxCutoffs         = 64
	MaxLabelLength     = 200
	MaxRunQueries      = 100000
	MaxResultsPerQuery = MaxCutoff
	MaxListLimit       = 500
	MaxRequestSize     = 64 * 1024 * 1024 // 64MB
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      interface{}
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// ValidateCutoffs checks a cutoff list supplied by a client. Ordering and
// duplicates are normalized later.
func ValidateCutoffs(cutoffs []int) error {
	if len(cutoffs) > MaxCutoffs {
		return &ValidationError{
			Field:      "cutoffs",
			Value:      len(cutoffs),
			Constraint: fmt.Sprintf("at most %d cutoffs", MaxCutoffs),
		}
	}
	for _, k := range cutoffs {
		if k < 1 || k > MaxCutoff {
			return &ValidationError{
				Field:      "cutoffs",
				Value:      k,
				Constraint: fmt.Sprintf("must be between 1 and %d", MaxCutoff),
			}
		}
	}
	return nil
}

// ValidateLabel checks an optional comparison label.
func ValidateLabel(label string) error {
	if !utf8.ValidString(label) {
		return &ValidationError{Field: "label", Constraint: "must be valid UTF-8"}
	}
	if n := utf8.RuneCountInString(label); n > MaxLabelLength {
		return &ValidationError{
			Field:      "label",
			Value:      n,
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxLabelLength),
		}
	}
	return nil
}

// ValidateBand checks an expected improvement band in percent. A nil bound
// is open.
func ValidateBand(minPct, maxPct *float64) error {
	if minPct != nil && maxPct != nil && *minPct > *maxPct {
		return &ValidationError{
			Field:      "band",
			Value:      fmt.Sprintf("[%g, %g]", *minPct, *maxPct),
			Constraint: "min must not exceed max",
		}
	}
	return nil
}

// ValidateRun checks the size of a run uploaded inline.
func ValidateRun(run map[string][]string) error {
	if len(run) > MaxRunQueries {
		return &ValidationError{
			Field:      "run",
			Value:      len(run),
			Constraint: fmt.Sprintf("at most %d queries", MaxRunQueries),
		}
	}
	for qid, docs := range run {
		if qid == "" {
			return &ValidationError{Field: "run", Constraint: "query id must not be empty"}
		}
		if len(docs) > MaxResultsPerQuery {
			return &ValidationError{
				Field:      "run." + qid,
				Value:      len(docs),
				Constraint: fmt.Sprintf("at most %d results per query", MaxResultsPerQuery),
			}
		}
	}
	return nil
}

// ValidateHistoryID checks that id is a UUID.
func ValidateHistoryID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &ValidationError{Field: "id", Value: id, Constraint: "must be a UUID"}
	}
	return nil
}

// ValidateListLimit checks a page size. Zero selects the default.
func ValidateListLimit(limit int) error {
	if limit < 0 || limit > MaxListLimit {
		return &ValidationError{
			Field:      "limit",
			Value:      limit,
			Constraint: fmt.Sprintf("must be between 0 and %d", MaxListLimit),
		}
	}
	return nil
}
