package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/harness"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
	"github.com/ricesearch/rice-eval/internal/report"
)

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score one ranking at each cutoff",
		Long: `Score a ranking against the judgments at each cutoff.

The ranking comes from a run file (--run; .json or TREC run format) or
from a search API (--url). Remote sources need --queries for the query
text.`,
		RunE: runEvaluate,
	}

	cmd.Flags().String("run", "", "run file")
	cmd.Flags().String("url", "", "search API base URL")
	cmd.Flags().String("store", "", "store on the search API")
	cmd.Flags().String("cutoffs", "", "comma-separated cutoffs (default from config)")
	cmd.Flags().StringP("format", "f", "", "report format: text, markdown, csv, json (default from config)")

	return cmd
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	runPath, _ := cmd.Flags().GetString("run")
	url, _ := cmd.Flags().GetString("url")
	store, _ := cmd.Flags().GetString("store")
	cutoffsFlag, _ := cmd.Flags().GetString("cutoffs")

	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := reportFormat(cmd, cfg.Eval.ReportFormat)
	if err != nil {
		return err
	}
	cutoffs, err := parseCutoffs(cutoffsFlag)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, log, true)
	if err != nil {
		return err
	}
	defer a.close()

	src, err := a.runSource("run", runPath, url, store)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sweep, err := a.svc.Evaluate(ctx, src, cutoffs)
	if err != nil {
		return err
	}
	return report.RenderSweep(os.Stdout, sweep, format)
}

func compareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare a ranking before and after a change",
		Long: `Score two rankings with the same judgments, queries and cutoffs and
report the improvement at each cutoff.

Each side comes from a run file or a search API URL. With --min and/or
--max the command exits with status 3 when any defined percentage
improvement falls outside the band, or none is defined.`,
		RunE: runCompare,
	}

	cmd.Flags().String("before", "", "run file before the change")
	cmd.Flags().String("after", "", "run file after the change")
	cmd.Flags().String("before-url", "", "search API before the change")
	cmd.Flags().String("after-url", "", "search API after the change")
	cmd.Flags().String("before-store", "", "store on the before search API")
	cmd.Flags().String("after-store", "", "store on the after search API")
	cmd.Flags().String("label", "", "label stored with the comparison")
	cmd.Flags().String("cutoffs", "", "comma-separated cutoffs (default from config)")
	cmd.Flags().StringP("format", "f", "", "report format: text, markdown, csv, json (default from config)")
	cmd.Flags().Float64("min", 0, "lowest expected percentage improvement")
	cmd.Flags().Float64("max", 0, "highest expected percentage improvement")
	cmd.Flags().Bool("save", true, "store the comparison when history is enabled")

	return cmd
}

func runCompare(cmd *cobra.Command, _ []string) error {
	beforePath, _ := cmd.Flags().GetString("before")
	afterPath, _ := cmd.Flags().GetString("after")
	beforeURL, _ := cmd.Flags().GetString("before-url")
	afterURL, _ := cmd.Flags().GetString("after-url")
	beforeStore, _ := cmd.Flags().GetString("before-store")
	afterStore, _ := cmd.Flags().GetString("after-store")
	label, _ := cmd.Flags().GetString("label")
	cutoffsFlag, _ := cmd.Flags().GetString("cutoffs")
	save, _ := cmd.Flags().GetBool("save")

	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format, err := reportFormat(cmd, cfg.Eval.ReportFormat)
	if err != nil {
		return err
	}
	cutoffs, err := parseCutoffs(cutoffsFlag)
	if err != nil {
		return err
	}
	minPct, maxPct := bandFlags(cmd, cfg.Eval.EnforceBand, cfg.Eval.BandMinPercent, cfg.Eval.BandMaxPercent)
	if err := security.ValidateBand(minPct, maxPct); err != nil {
		return err
	}
	if err := security.ValidateLabel(label); err != nil {
		return err
	}

	a, err := newApp(cfg, log, true)
	if err != nil {
		return err
	}
	defer a.close()

	before, err := a.runSource("before", beforePath, beforeURL, beforeStore)
	if err != nil {
		return err
	}
	after, err := a.runSource("after", afterPath, afterURL, afterStore)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := a.svc.Compare(ctx, harness.CompareRequest{
		Label:   label,
		Before:  before,
		After:   after,
		Cutoffs: cutoffs,
		Save:    save && a.history != nil,
	})
	if err != nil {
		return err
	}

	if err := report.Render(os.Stdout, res.Comparison, format); err != nil {
		return err
	}
	if res.ID != "" {
		fmt.Fprintf(os.Stderr, "Saved comparison %s\n", res.ID)
	}

	if minPct == nil && maxPct == nil {
		return nil
	}
	lo, hi := harness.BandBounds(minPct, maxPct)
	if !res.Comparison.WithinBand(lo, hi) {
		return &exitError{
			code: 3,
			msg:  fmt.Sprintf("improvement outside expected band [%g%%, %g%%]", lo, hi),
		}
	}
	return nil
}

// bandFlags returns the band from --min/--max, falling back to the
// configured band when it is enforced.
func bandFlags(cmd *cobra.Command, enforce bool, cfgMin, cfgMax float64) (minPct, maxPct *float64) {
	if cmd.Flags().Changed("min") {
		v, _ := cmd.Flags().GetFloat64("min")
		minPct = &v
	}
	if cmd.Flags().Changed("max") {
		v, _ := cmd.Flags().GetFloat64("max")
		maxPct = &v
	}
	if minPct == nil && maxPct == nil && enforce {
		minPct, maxPct = &cfgMin, &cfgMax
	}
	return minPct, maxPct
}

// reportFormat returns --format, or the configured default.
func reportFormat(cmd *cobra.Command, def string) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = def
	}
	for _, f := range report.Formats {
		if f == format {
			return format, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q", format)
}
