// Package report renders evaluation results as tables, CSV or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/gocarina/gocsv"

	"github.com/ricesearch/rice-eval/internal/evaluation"
)

// Output formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatCSV      = "csv"
	FormatJSON     = "json"
)

// Formats lists every supported format.
var Formats = []string{FormatText, FormatMarkdown, FormatCSV, FormatJSON}

// NotAvailable is printed for an undefined percentage.
const NotAvailable = "n/a"

// comparisonRow is one CSV row of a comparison.
type comparisonRow struct {
	Cutoff             int    `csv:"cutoff"`
	Before             int    `csv:"before"`
	After              int    `csv:"after"`
	Improvement        int    `csv:"improvement"`
	PercentImprovement string `csv:"percent_improvement"`
}

// sweepRow is one CSV row of a single sweep.
type sweepRow struct {
	Cutoff    int    `csv:"cutoff"`
	Score     int    `csv:"score"`
	Queries   int    `csv:"queries"`
	Returned  int    `csv:"returned"`
	Relevant  int    `csv:"relevant_returned"`
	NDCG      string `csv:"ndcg"`
	Precision string `csv:"precision"`
	Recall    string `csv:"recall"`
	MRR       string `csv:"mrr"`
	MAP       string `csv:"map"`
}

// Render writes cmp in the requested format.
func Render(w io.Writer, cmp *evaluation.Comparison, format string) error {
	switch format {
	case FormatText, "":
		return renderComparisonText(w, cmp)
	case FormatMarkdown:
		return renderComparisonMarkdown(w, cmp)
	case FormatCSV:
		return renderComparisonCSV(w, cmp)
	case FormatJSON:
		return renderJSON(w, cmp)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

// RenderSweep writes the scores of a single source.
func RenderSweep(w io.Writer, sweep *evaluation.Sweep, format string) error {
	switch format {
	case FormatText, "":
		return renderSweepText(w, sweep)
	case FormatMarkdown:
		return renderSweepMarkdown(w, sweep)
	case FormatCSV:
		return renderSweepCSV(w, sweep)
	case FormatJSON:
		return renderJSON(w, sweep)
	default:
		return fmt.Errorf("unsupported report format: %s", format)
	}
}

// FormatPercent renders a percentage improvement with two decimals.
func FormatPercent(p *float64) string {
	if p == nil {
		return NotAvailable
	}
	return fmt.Sprintf("%.2f%%", *p)
}

func formatSigned(n int) string {
	if n > 0 {
		return "+" + humanize.Comma(int64(n))
	}
	return humanize.Comma(int64(n))
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func summaryLine(s evaluation.ComparisonSummary) string {
	if s.Defined == 0 {
		return fmt.Sprintf("Average improvement: %s (no cutoff has a non-zero baseline)", NotAvailable)
	}
	return fmt.Sprintf("Average improvement: %.2f%% over %d of %d cutoffs (median %.2f%%, min %.2f%%, max %.2f%%, stddev %.2f)",
		s.MeanPercent, s.Defined, s.Cutoffs, s.MedianPercent, s.MinPercent, s.MaxPercent, s.StdDevPercent)
}

func renderComparisonText(w io.Writer, cmp *evaluation.Comparison) error {
	if cmp.Label != "" {
		fmt.Fprintf(w, "%s\n\n", cmp.Label)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Results\tBefore\tAfter\tImprovement\t% Improvement\t")
	for _, r := range cmp.Records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t\n",
			r.Cutoff,
			humanize.Comma(int64(r.Before)),
			humanize.Comma(int64(r.After)),
			formatSigned(r.Improvement),
			FormatPercent(r.PercentImprovement),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "\n%s\n", summaryLine(cmp.Summary))
	return err
}

func renderComparisonMarkdown(w io.Writer, cmp *evaluation.Comparison) error {
	var b strings.Builder
	if cmp.Label != "" {
		fmt.Fprintf(&b, "### %s\n\n", cmp.Label)
	}

	b.WriteString("| Results | Before | After | Improvement | % Improvement |\n")
	b.WriteString("|--------:|-------:|------:|------------:|--------------:|\n")
	for _, r := range cmp.Records {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
			r.Cutoff,
			humanize.Comma(int64(r.Before)),
			humanize.Comma(int64(r.After)),
			formatSigned(r.Improvement),
			FormatPercent(r.PercentImprovement),
		)
	}
	fmt.Fprintf(&b, "\n%s\n", summaryLine(cmp.Summary))

	_, err := io.WriteString(w, b.String())
	return err
}

func renderComparisonCSV(w io.Writer, cmp *evaluation.Comparison) error {
	rows := make([]*comparisonRow, 0, len(cmp.Records))
	for _, r := range cmp.Records {
		pct := ""
		if r.PercentImprovement != nil {
			pct = strconv.FormatFloat(*r.PercentImprovement, 'f', 4, 64)
		}
		rows = append(rows, &comparisonRow{
			Cutoff:             r.Cutoff,
			Before:             r.Before,
			After:              r.After,
			Improvement:        r.Improvement,
			PercentImprovement: pct,
		})
	}
	return gocsv.Marshal(&rows, w)
}

func renderSweepText(w io.Writer, sweep *evaluation.Sweep) error {
	if sweep.Source != "" {
		fmt.Fprintf(w, "Source: %s\n\n", sweep.Source)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Results\tScore\tReturned\tRelevant\tNDCG\tP@k\tR@k\tMRR\tMAP\t")
	for _, s := range sweep.Scores {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			s.Cutoff,
			humanize.Comma(int64(s.Score)),
			humanize.Comma(int64(s.Returned)),
			humanize.Comma(int64(s.RelevantReturned)),
			formatMetric(s.MeanNDCG),
			formatMetric(s.MeanPrecision),
			formatMetric(s.MeanRecall),
			formatMetric(s.MeanMRR),
			formatMetric(s.MAP),
		)
	}
	return tw.Flush()
}

func renderSweepMarkdown(w io.Writer, sweep *evaluation.Sweep) error {
	var b strings.Builder
	if sweep.Source != "" {
		fmt.Fprintf(&b, "### %s\n\n", sweep.Source)
	}

	b.WriteString("| Results | Score | Returned | Relevant | NDCG | P@k | R@k | MRR | MAP |\n")
	b.WriteString("|--------:|------:|---------:|---------:|-----:|----:|----:|----:|----:|\n")
	for _, s := range sweep.Scores {
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			s.Cutoff,
			humanize.Comma(int64(s.Score)),
			humanize.Comma(int64(s.Returned)),
			humanize.Comma(int64(s.RelevantReturned)),
			formatMetric(s.MeanNDCG),
			formatMetric(s.MeanPrecision),
			formatMetric(s.MeanRecall),
			formatMetric(s.MeanMRR),
			formatMetric(s.MAP),
		)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderSweepCSV(w io.Writer, sweep *evaluation.Sweep) error {
	rows := make([]*sweepRow, 0, len(sweep.Scores))
	for _, s := range sweep.Scores {
		rows = append(rows, &sweepRow{
			Cutoff:    s.Cutoff,
			Score:     s.Score,
			Queries:   s.QueryCount,
			Returned:  s.Returned,
			Relevant:  s.RelevantReturned,
			NDCG:      formatMetric(s.MeanNDCG),
			Precision: formatMetric(s.MeanPrecision),
			Recall:    formatMetric(s.MeanRecall),
			MRR:       formatMetric(s.MeanMRR),
			MAP:       formatMetric(s.MAP),
		})
	}
	return gocsv.Marshal(&rows, w)
}

func renderJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
