// Package main provides the rice-eval binary: relevancy evaluation of search
// rankings against human judgments, from the command line, over HTTP, gRPC
// health checks and MCP.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// exitError carries a specific process exit code.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	rootCmd := &cobra.Command{
		Use:   "rice-eval",
		Short: "Relevancy evaluation for search rankings",
		Long: `rice-eval scores ranked search results against human relevance judgments
and reports how a ranking change (for example synonym query expansion)
moves the score at each result cutoff.

The score at cutoff k is the sum of relevance grades of the first k
documents returned for every query. Unjudged documents count as 0.

Examples:
  rice-eval evaluate --judgments qrels.txt --run after.json
  rice-eval compare --judgments qrels.txt --before bm25.run --after expanded.run --min 30 --max 40
  rice-eval serve --http-port 8090
  rice-eval history list`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().String("judgments", "", "judgments file (.tsv with header, otherwise TREC qrels)")
	rootCmd.PersistentFlags().String("queries", "", "queries file (JSONL); required for remote sources")

	rootCmd.AddCommand(
		evaluateCmd(),
		compareCmd(),
		serveCmd(),
		mcpCmd(),
		historyCmd(),
		eventsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rice-eval %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}
