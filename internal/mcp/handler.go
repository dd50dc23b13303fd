package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ricesearch/rice-eval/internal/harness"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
	"github.com/ricesearch/rice-eval/internal/report"
)

// Handler implements the evaluation tools.
type Handler struct {
	svc *harness.Service
	log *logger.Logger
}

// NewHandler creates a handler backed by svc.
func NewHandler(svc *harness.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Register adds every tool to s.
func (h *Handler) Register(s *server.MCPServer) {
	s.AddTool(statusTool(), h.handleStatus)
	s.AddTool(evaluateRunTool(), h.handleEvaluateRun)
	s.AddTool(compareRunsTool(), h.handleCompareRuns)
	s.AddTool(listHistoryTool(), h.handleListHistory)
	s.AddTool(getHistoryTool(), h.handleGetHistory)
}

func (h *Handler) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(h.svc.Status()), nil
}

func (h *Handler) handleEvaluateRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var spec harness.RunSpec
	if err := decodeArg(args, "source", &spec); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cutoffs, err := cutoffsArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format, err := formatArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	src, err := h.svc.Source(spec, "run")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	sweep, err := h.svc.Evaluate(ctx, src, cutoffs)
	if err != nil {
		h.log.WithContext(ctx).Error("Evaluation failed", "source", src.Name(), "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("evaluation failed: %v", err)), nil
	}

	var buf bytes.Buffer
	if err := report.RenderSweep(&buf, sweep, format); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (h *Handler) handleCompareRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var before, after harness.RunSpec
	if err := decodeArg(args, "before", &before); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := decodeArg(args, "after", &after); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cutoffs, err := cutoffsArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format, err := formatArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	label, _ := args["label"].(string)
	if err := security.ValidateLabel(label); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	minPct, maxPct := floatArg(args, "band_min"), floatArg(args, "band_max")
	if err := security.ValidateBand(minPct, maxPct); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	beforeSrc, err := h.svc.Source(before, "before")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	afterSrc, err := h.svc.Source(after, "after")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := h.svc.Compare(ctx, harness.CompareRequest{
		Label:   label,
		Before:  beforeSrc,
		After:   afterSrc,
		Cutoffs: cutoffs,
		Save:    getBoolDefault(args, "save", h.svc.History() != nil),
	})
	if err != nil {
		h.log.WithContext(ctx).Error("Comparison failed", "label", security.SanitizeForLog(label), "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("comparison failed: %v", err)), nil
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, res.Comparison, format); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if format != report.FormatJSON {
		if res.ID != "" {
			fmt.Fprintf(&buf, "saved as %s\n", res.ID)
		}
		if minPct != nil || maxPct != nil {
			lo, hi := harness.BandBounds(minPct, maxPct)
			fmt.Fprintf(&buf, "within band: %t\n", res.Comparison.WithinBand(lo, hi))
		}
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (h *Handler) handleListHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store := h.svc.History()
	if store == nil {
		return mcp.NewToolResultError("history is disabled"), nil
	}
	args, err := arguments(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	limit := getIntDefault(args, "limit", 0)
	if err := security.ValidateListLimit(limit); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	list, err := store.List(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}

	rows := make([]map[string]interface{}, len(list))
	for i, sum := range list {
		rows[i] = map[string]interface{}{
			"id":            sum.ID,
			"label":         sum.Label,
			"before_source": sum.BeforeSource,
			"after_source":  sum.AfterSource,
			"cutoffs":       sum.Cutoffs,
			"mean_percent":  report.FormatPercent(sum.MeanPercent),
			"created_at":    sum.CreatedAt,
		}
	}
	return jsonResult(map[string]interface{}{"comparisons": rows, "total": len(rows)}), nil
}

func (h *Handler) handleGetHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store := h.svc.History()
	if store == nil {
		return mcp.NewToolResultError("history is disabled"), nil
	}
	args, err := arguments(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, _ := args["id"].(string)
	if err := security.ValidateHistoryID(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	format, err := formatArg(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	entry, err := store.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, entry.Comparison, format); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

// arguments returns the call arguments. A call without arguments gets an
// empty map.
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid arguments")
	}
	return args, nil
}

// decodeArg converts the JSON value args[key] into v.
func decodeArg(args map[string]interface{}, key string, v interface{}) error {
	raw, ok := args[key]
	if !ok || raw == nil {
		return fmt.Errorf("%s parameter is required", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	return nil
}

func cutoffsArg(args map[string]interface{}) ([]int, error) {
	if _, ok := args["cutoffs"]; !ok {
		return nil, nil
	}
	var cutoffs []int
	if err := decodeArg(args, "cutoffs", &cutoffs); err != nil {
		return nil, err
	}
	if err := security.ValidateCutoffs(cutoffs); err != nil {
		return nil, err
	}
	return cutoffs, nil
}

func formatArg(args map[string]interface{}) (string, error) {
	format, _ := args["format"].(string)
	if format == "" {
		return report.FormatText, nil
	}
	for _, f := range report.Formats {
		if f == format {
			return format, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q", format)
}

func floatArg(args map[string]interface{}, key string) *float64 {
	if v, ok := args[key].(float64); ok {
		return &v
	}
	return nil
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func jsonResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(data))
}
