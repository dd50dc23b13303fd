package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/history"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
	"github.com/ricesearch/rice-eval/internal/report"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect stored comparisons",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored comparisons, most recent first",
		Args:  cobra.NoArgs,
		RunE:  runHistoryList,
	}
	list.Flags().IntP("limit", "n", history.DefaultListLimit, "maximum number of comparisons")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stored comparison",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
	show.Flags().StringP("format", "f", "", "report format: text, markdown, csv, json (default from config)")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored comparison",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryDelete,
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

// openHistory opens the configured history store. It works even when
// history is disabled for new comparisons.
func openHistory(cmd *cobra.Command) (*history.Store, string, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return nil, "", err
	}
	return store, cfg.Eval.ReportFormat, nil
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	if err := security.ValidateListLimit(limit); err != nil {
		return err
	}

	store, _, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No stored comparisons.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLABEL\tBEFORE\tAFTER\tCUTOFFS\tMEAN\tCREATED")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.Label, s.BeforeSource, s.AfterSource, s.Cutoffs,
			report.FormatPercent(s.MeanPercent),
			humanize.Time(s.CreatedAt),
		)
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := security.ValidateHistoryID(id); err != nil {
		return err
	}

	store, def, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	format, err := reportFormat(cmd, def)
	if err != nil {
		return err
	}

	entry, err := store.Get(context.Background(), id)
	if err != nil {
		return err
	}

	if format == report.FormatJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	}
	fmt.Printf("Comparison %s (%s)\n\n", entry.ID, entry.CreatedAt.Format(time.RFC3339))
	return report.Render(os.Stdout, entry.Comparison, format)
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	if err := security.ValidateHistoryID(id); err != nil {
		return err
	}

	store, _, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(context.Background(), id); err != nil {
		return err
	}
	fmt.Printf("Deleted comparison %s\n", id)
	return nil
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show events from the event log",
		Long: `Print events recorded in the JSONL event log (RICE_EVAL_EVENT_LOG or
--log), oldest first.`,
		Args: cobra.NoArgs,
		RunE: runEvents,
	}

	cmd.Flags().String("log", "", "event log path (default from config)")
	cmd.Flags().Duration("since", 0, "only events newer than this, e.g. 24h")
	cmd.Flags().IntP("limit", "n", 50, "show only the most recent events (0 for all)")
	cmd.Flags().Bool("json", false, "print raw JSON lines")

	return cmd
}

func runEvents(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("log")
	sinceFlag, _ := cmd.Flags().GetDuration("since")
	limit, _ := cmd.Flags().GetInt("limit")
	raw, _ := cmd.Flags().GetBool("json")

	if path == "" {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path = cfg.Bus.EventLog
	}
	if path == "" {
		return fmt.Errorf("no event log configured (--log or RICE_EVAL_EVENT_LOG)")
	}

	var since time.Time
	if sinceFlag > 0 {
		since = time.Now().Add(-sinceFlag)
	}

	events, err := bus.ReadEvents(path, since, limit)
	if err != nil {
		return err
	}

	if raw {
		enc := json.NewEncoder(os.Stdout)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTOPIC\tSOURCE\tID\tCORRELATION")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Format(time.RFC3339),
			e.Topic,
			e.Event.Source,
			e.Event.ID,
			e.Event.CorrelationID,
		)
	}
	return tw.Flush()
}
