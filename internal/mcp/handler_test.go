package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/harness"
	"github.com/ricesearch/rice-eval/internal/history"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
)

func newTestHandler(t *testing.T, withHistory bool) *Handler {
	t.Helper()

	opts := harness.Options{Cutoffs: []int{1, 2}, Log: logger.Discard()}
	if withHistory {
		store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
		if err != nil {
			t.Fatalf("history.Open() error = %v", err)
		}
		t.Cleanup(func() { store.Close() })
		opts.History = store
	}

	js := evaluation.NewJudgmentSetFrom([]evaluation.RelevanceJudgment{
		{QueryID: "q1", DocID: "d1", Relevance: 2},
		{QueryID: "q1", DocID: "d2", Relevance: 1},
		{QueryID: "q2", DocID: "d3", Relevance: 3},
	})
	return NewHandler(harness.New(js, nil, opts), logger.Discard())
}

func call(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return text.Text
}

var (
	beforeArg = map[string]interface{}{
		"name": "before",
		"run": map[string]interface{}{
			"q1": []interface{}{"d9", "d1"},
			"q2": []interface{}{"d8", "d7"},
		},
	}
	afterArg = map[string]interface{}{
		"name": "after",
		"run": map[string]interface{}{
			"q1": []interface{}{"d1", "d2"},
			"q2": []interface{}{"d3", "d7"},
		},
	}
)

func TestEvaluateRun(t *testing.T) {
	h := newTestHandler(t, false)

	res, err := h.handleEvaluateRun(context.Background(), call("evaluate_run", map[string]interface{}{
		"source":  afterArg,
		"cutoffs": []interface{}{float64(1), float64(2)},
		"format":  "json",
	}))
	if err != nil {
		t.Fatalf("handleEvaluateRun() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("tool error: %s", resultText(t, res))
	}

	var sweep evaluation.Sweep
	if err := json.Unmarshal([]byte(resultText(t, res)), &sweep); err != nil {
		t.Fatalf("decode sweep: %v", err)
	}
	if len(sweep.Scores) != 2 || sweep.Scores[0].Score != 5 || sweep.Scores[1].Score != 6 {
		t.Errorf("sweep = %+v", sweep.Scores)
	}
}

func TestEvaluateRunErrors(t *testing.T) {
	h := newTestHandler(t, false)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing source", map[string]interface{}{}},
		{"bad cutoff", map[string]interface{}{"source": afterArg, "cutoffs": []interface{}{float64(0)}}},
		{"bad format", map[string]interface{}{"source": afterArg, "format": "xml"}},
		{"remote not configured", map[string]interface{}{"source": map[string]interface{}{"remote": true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.handleEvaluateRun(context.Background(), call("evaluate_run", tt.args))
			if err != nil {
				t.Fatalf("handleEvaluateRun() error = %v", err)
			}
			if !res.IsError {
				t.Errorf("expected tool error, got %q", resultText(t, res))
			}
		})
	}
}

func TestCompareRunsSavesHistory(t *testing.T) {
	h := newTestHandler(t, true)

	res, err := h.handleCompareRuns(context.Background(), call("compare_runs", map[string]interface{}{
		"label":    "expansion",
		"before":   beforeArg,
		"after":    afterArg,
		"band_min": float64(100),
		"band_max": float64(250),
	}))
	if err != nil {
		t.Fatalf("handleCompareRuns() error = %v", err)
	}
	text := resultText(t, res)
	if res.IsError {
		t.Fatalf("tool error: %s", text)
	}
	for _, want := range []string{"expansion", "200.00%", "n/a", "saved as ", "within band: true"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}

	res, err = h.handleListHistory(context.Background(), call("list_history", nil))
	if err != nil {
		t.Fatalf("handleListHistory() error = %v", err)
	}
	var list struct {
		Comparisons []struct {
			ID    string `json:"id"`
			Label string `json:"label"`
		} `json:"comparisons"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || list.Comparisons[0].Label != "expansion" {
		t.Fatalf("list = %+v", list)
	}

	res, err = h.handleGetHistory(context.Background(), call("get_history", map[string]interface{}{
		"id":     list.Comparisons[0].ID,
		"format": "csv",
	}))
	if err != nil {
		t.Fatalf("handleGetHistory() error = %v", err)
	}
	if res.IsError || !strings.Contains(resultText(t, res), "200.0000") {
		t.Errorf("get_history = %q", resultText(t, res))
	}
}

func TestCompareRunsValidation(t *testing.T) {
	h := newTestHandler(t, false)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing after", map[string]interface{}{"before": beforeArg}},
		{"inverted band", map[string]interface{}{"before": beforeArg, "after": afterArg, "band_min": float64(50), "band_max": float64(10)}},
		{"save without history", map[string]interface{}{"before": beforeArg, "after": afterArg, "save": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.handleCompareRuns(context.Background(), call("compare_runs", tt.args))
			if err != nil {
				t.Fatalf("handleCompareRuns() error = %v", err)
			}
			if !res.IsError {
				t.Errorf("expected tool error, got %q", resultText(t, res))
			}
		})
	}
}

func TestHistoryToolsDisabled(t *testing.T) {
	h := newTestHandler(t, false)

	res, _ := h.handleListHistory(context.Background(), call("list_history", nil))
	if !res.IsError {
		t.Error("list_history without history should fail")
	}
	res, _ = h.handleGetHistory(context.Background(), call("get_history", map[string]interface{}{"id": "x"}))
	if !res.IsError {
		t.Error("get_history without history should fail")
	}
}

func TestStatusTool(t *testing.T) {
	h := newTestHandler(t, false)

	res, err := h.handleStatus(context.Background(), call("evaluation_status", nil))
	if err != nil {
		t.Fatalf("handleStatus() error = %v", err)
	}
	var st harness.Status
	if err := json.Unmarshal([]byte(resultText(t, res)), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Judgments != 3 || st.JudgedQueries != 2 {
		t.Errorf("status = %+v", st)
	}
}

func TestServerListsTools(t *testing.T) {
	srv := NewServer(ServerConfig{
		TCPAddr: "127.0.0.1:0",
		Handler: newTestHandler(t, false),
		Log:     logger.Discard(),
	})

	msg := json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp := srv.MCPServer().HandleMessage(context.Background(), msg)
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	for _, name := range []string{"evaluation_status", "evaluate_run", "compare_runs", "list_history", "get_history"} {
		if !strings.Contains(string(data), `"`+name+`"`) {
			t.Errorf("tools/list missing %s: %s", name, data)
		}
	}
}
