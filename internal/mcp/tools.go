package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ricesearch/rice-eval/internal/report"
)

// runSpecSchema describes one side of an evaluation.
func runSpecSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Name shown in reports",
			},
			"run": map[string]interface{}{
				"type":        "object",
				"description": "Ranked document IDs per query ID, best first",
				"additionalProperties": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"type": "string"},
				},
			},
			"remote": map[string]interface{}{
				"type":        "boolean",
				"description": "Query the configured search API instead of an inline run",
			},
			"store": map[string]interface{}{
				"type":        "string",
				"description": "Store on the search API (remote only)",
			},
		},
	}
}

var (
	cutoffsSchema = map[string]interface{}{
		"type":        "array",
		"description": "Result counts to score at (default: configured cutoffs)",
		"items":       map[string]interface{}{"type": "integer", "minimum": 1},
	}
	formatSchema = map[string]interface{}{
		"type":        "string",
		"description": "Report format",
		"enum":        report.Formats,
		"default":     report.FormatText,
	}
)

func statusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "evaluation_status",
		Description: "Show the loaded judgments, queries, default cutoffs and enabled features.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

func evaluateRunTool() mcp.Tool {
	return mcp.Tool{
		Name:        "evaluate_run",
		Description: "Score a ranking against the relevance judgments at each cutoff. The score is the sum of relevance grades of the returned documents.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"source":  runSpecSchema("Ranking to evaluate"),
				"cutoffs": cutoffsSchema,
				"format":  formatSchema,
			},
			Required: []string{"source"},
		},
	}
}

func compareRunsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "compare_runs",
		Description: "Compare a ranking before and after a change (e.g. query expansion) and report the score improvement at each cutoff.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"label": map[string]interface{}{
					"type":        "string",
					"description": "Label stored with the comparison",
				},
				"before":  runSpecSchema("Baseline ranking"),
				"after":   runSpecSchema("Ranking after the change"),
				"cutoffs": cutoffsSchema,
				"save": map[string]interface{}{
					"type":        "boolean",
					"description": "Store the comparison in history (default: true when history is enabled)",
				},
				"band_min": map[string]interface{}{
					"type":        "number",
					"description": "Lowest expected percentage improvement",
				},
				"band_max": map[string]interface{}{
					"type":        "number",
					"description": "Highest expected percentage improvement",
				},
				"format": formatSchema,
			},
			Required: []string{"before", "after"},
		},
	}
}

func listHistoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_history",
		Description: "List stored comparisons, most recent first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of comparisons (default: 50)",
					"minimum":     1,
				},
			},
		},
	}
}

func getHistoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_history",
		Description: "Show a stored comparison.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Comparison ID",
				},
				"format": formatSchema,
			},
			Required: []string{"id"},
		},
	}
}
