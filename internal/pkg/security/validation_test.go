package security

import (
	"fmt"
	"strings"
	"testing"
)

func ptr(f float64) *float64 { return &f }

func TestValidateCutoffs(t *testing.T) {
	tooMany := make([]int, MaxCutoffs+1)
	for i := range tooMany {
		tooMany[i] = i + 1
	}

	tests := []struct {
		name    string
		cutoffs []int
		wantErr bool
	}{
		{"nil", nil, false},
		{"typical", []int{1, 10, 100, 1000}, false},
		{"unsorted with duplicates", []int{100, 10, 10}, false},
		{"zero", []int{0, 10}, true},
		{"negative", []int{-5}, true},
		{"too large", []int{MaxCutoff + 1}, true},
		{"too many", tooMany, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCutoffs(tt.cutoffs)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCutoffs(%v) error = %v, wantErr %v", tt.cutoffs, err, tt.wantErr)
			}
		})
	}
}

func TestValidateLabel(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		wantErr bool
	}{
		{"empty", "", false},
		{"normal", "synonym expansion v2", false},
		{"max length", strings.Repeat("a", MaxLabelLength), false},
		{"too long", strings.Repeat("a", MaxLabelLength+1), true},
		{"invalid utf8", "bad\xff", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLabel(tt.label)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLabel() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateBand(t *testing.T) {
	tests := []struct {
		name     string
		min, max *float64
		wantErr  bool
	}{
		{"open", nil, nil, false},
		{"min only", ptr(30), nil, false},
		{"max only", nil, ptr(40), false},
		{"valid", ptr(30), ptr(40), false},
		{"equal", ptr(35), ptr(35), false},
		{"inverted", ptr(40), ptr(30), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBand(tt.min, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBand() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRun(t *testing.T) {
	if err := ValidateRun(map[string][]string{"q1": {"d1", "d2"}}); err != nil {
		t.Errorf("ValidateRun() valid run error = %v", err)
	}
	if err := ValidateRun(map[string][]string{"": {"d1"}}); err == nil {
		t.Error("ValidateRun() should reject empty query id")
	}

	long := make([]string, MaxResultsPerQuery+1)
	for i := range long {
		long[i] = fmt.Sprintf("d%d", i)
	}
	err := ValidateRun(map[string][]string{"q1": long})
	if err == nil || !strings.Contains(err.Error(), "run.q1") {
		t.Errorf("ValidateRun() oversized list error = %v", err)
	}
}

func TestValidateHistoryID(t *testing.T) {
	if err := ValidateHistoryID("8f14e45f-ceea-4672-9f0c-3a1e8d3b9f7a"); err != nil {
		t.Errorf("ValidateHistoryID() valid id error = %v", err)
	}
	for _, id := range []string{"", "missing", "../etc/passwd"} {
		if err := ValidateHistoryID(id); err == nil {
			t.Errorf("ValidateHistoryID(%q) should fail", id)
		}
	}
}

func TestValidateListLimit(t *testing.T) {
	for _, tt := range []struct {
		limit   int
		wantErr bool
	}{{0, false}, {50, false}, {MaxListLimit, false}, {-1, true}, {MaxListLimit + 1, true}} {
		err := ValidateListLimit(tt.limit)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateListLimit(%d) error = %v, wantErr %v", tt.limit, err, tt.wantErr)
		}
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "cutoffs", Value: 0, Constraint: "must be positive"}
	if !strings.Contains(err.Error(), "cutoffs") || !strings.Contains(err.Error(), "got: 0") {
		t.Errorf("Error() = %q", err.Error())
	}

	errNoValue := &ValidationError{Field: "label", Constraint: "required"}
	if strings.Contains(errNoValue.Error(), "got:") {
		t.Errorf("Error() = %q, should omit value", errNoValue.Error())
	}
}
