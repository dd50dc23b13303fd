package main

import (
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

func TestParseCutoffs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []int
		wantErr bool
	}{
		{"empty", "", nil, false},
		{"blank", "   ", nil, false},
		{"single", "10", []int{10}, false},
		{"list", "1, 3,5,10", []int{1, 3, 5, 10}, false},
		{"trailing comma", "5,10,", []int{5, 10}, false},
		{"not a number", "5,ten", nil, true},
		{"zero", "0,5", nil, true},
		{"negative", "-1", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCutoffs(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCutoffs(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseCutoffs(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func bandCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := compareCmd()
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cmd
}

func TestBandFlags(t *testing.T) {
	t.Run("unset and not enforced", func(t *testing.T) {
		lo, hi := bandFlags(bandCommand(t), false, 30, 40)
		if lo != nil || hi != nil {
			t.Errorf("bandFlags() = %v, %v, want nil, nil", lo, hi)
		}
	})

	t.Run("unset and enforced", func(t *testing.T) {
		lo, hi := bandFlags(bandCommand(t), true, 30, 40)
		if lo == nil || hi == nil || *lo != 30 || *hi != 40 {
			t.Errorf("bandFlags() = %v, %v, want 30, 40", lo, hi)
		}
	})

	t.Run("flags override config", func(t *testing.T) {
		lo, hi := bandFlags(bandCommand(t, "--min", "10"), true, 30, 40)
		if lo == nil || *lo != 10 {
			t.Errorf("min = %v, want 10", lo)
		}
		if hi != nil {
			t.Errorf("max = %v, want nil", *hi)
		}
	})

	t.Run("zero is a bound", func(t *testing.T) {
		lo, hi := bandFlags(bandCommand(t, "--min", "0", "--max", "0"), false, 30, 40)
		if lo == nil || hi == nil || *lo != 0 || *hi != 0 {
			t.Errorf("bandFlags() = %v, %v, want 0, 0", lo, hi)
		}
	})
}

func TestReportFormat(t *testing.T) {
	cmd := evaluateCmd()
	got, err := reportFormat(cmd, "markdown")
	if err != nil || got != "markdown" {
		t.Errorf("reportFormat() = %q, %v, want markdown", got, err)
	}

	if err := cmd.Flags().Parse([]string{"-f", "csv"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	got, err = reportFormat(cmd, "markdown")
	if err != nil || got != "csv" {
		t.Errorf("reportFormat() = %q, %v, want csv", got, err)
	}

	if _, err := reportFormat(cmd, ""); err != nil {
		t.Errorf("reportFormat() with flag set error = %v", err)
	}

	if _, err := reportFormat(evaluateCmd(), "xml"); err == nil {
		t.Error("reportFormat() with unknown default should fail")
	}
}

func TestCommandTree(t *testing.T) {
	cmd := historyCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	want := []string{"delete", "list", "show"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("history subcommands = %v, want %v", names, want)
	}

	if f := eventsCmd().Flags().Lookup("since"); f == nil {
		t.Error("events command missing --since")
	}
}
