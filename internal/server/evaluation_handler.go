package server

import (
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/ricesearch/rice-eval/internal/dataset"
	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/harness"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
)

// EvaluationHandler serves dataset loading, evaluation and comparison.
type EvaluationHandler struct {
	svc *harness.Service
	log *logger.Logger
}

// NewEvaluationHandler creates a handler backed by svc.
func NewEvaluationHandler(svc *harness.Service, log *logger.Logger) *EvaluationHandler {
	return &EvaluationHandler{svc: svc, log: log}
}

// RegisterRoutes registers the evaluation routes on mux.
func (h *EvaluationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/evaluation/status", h.handleStatus)
	mux.HandleFunc("POST /v1/evaluation/judgments", h.handleLoadJudgments)
	mux.HandleFunc("POST /v1/evaluation/queries", h.handleLoadQueries)
	mux.HandleFunc("POST /v1/evaluation/evaluate", h.handleEvaluate)
	mux.HandleFunc("POST /v1/evaluation/compare", h.handleCompare)
}

// EvaluateRequest is the body of POST /v1/evaluation/evaluate.
type EvaluateRequest struct {
	Source  harness.RunSpec `json:"source"`
	Cutoffs []int           `json:"cutoffs,omitempty"`
}

// Band is an expected range of percentage improvement. Nil bounds are open.
type Band struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// CompareRequest is the body of POST /v1/evaluation/compare.
type CompareRequest struct {
	Label   string          `json:"label,omitempty"`
	Before  harness.RunSpec `json:"before"`
	After   harness.RunSpec `json:"after"`
	Cutoffs []int           `json:"cutoffs,omitempty"`
	// Save defaults to true when history is enabled.
	Save *bool `json:"save,omitempty"`
	Band *Band `json:"band,omitempty"`
}

// CompareResponse is the JSON response of a comparison.
type CompareResponse struct {
	ID         string                 `json:"id,omitempty"`
	Comparison *evaluation.Comparison `json:"comparison"`
	WithinBand *bool                  `json:"within_band,omitempty"`
}

// JudgmentsRequest is the JSON form of a judgment upload.
type JudgmentsRequest struct {
	Judgments []evaluation.RelevanceJudgment `json:"judgments"`
}

// QueriesRequest is the JSON form of a query upload.
type QueriesRequest struct {
	Queries []evaluation.Query `json:"queries"`
}

// LoadResponse reports what an upload loaded.
type LoadResponse struct {
	Loaded int            `json:"loaded"`
	Status harness.Status `json:"status"`
}

func (h *EvaluationHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// handleLoadJudgments accepts JSON, the tab-separated judgment format or
// TREC qrels, selected by Content-Type.
func (h *EvaluationHandler) handleLoadJudgments(w http.ResponseWriter, r *http.Request) {
	var (
		judgments []evaluation.RelevanceJudgment
		err       error
	)

	body := http.MaxBytesReader(w, r.Body, security.MaxRequestSize)
	switch mediaType(r) {
	case "application/json":
		var req JudgmentsRequest
		if err = decodeJSON(w, r, &req); err == nil {
			judgments, err = checkJudgments(req.Judgments)
		}
	case "text/tab-separated-values":
		judgments, err = dataset.ReadJudgmentsTSV(body)
	default:
		judgments, err = dataset.ReadQrels(body)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if len(judgments) == 0 {
		writeError(w, apperrors.ValidationError("no judgments in request"))
		return
	}

	js := evaluation.NewJudgmentSetFrom(judgments)
	h.svc.SetJudgments(js)
	writeJSON(w, http.StatusOK, LoadResponse{Loaded: js.Len(), Status: h.svc.Status()})
}

// handleLoadQueries accepts JSON or JSON Lines, selected by Content-Type.
func (h *EvaluationHandler) handleLoadQueries(w http.ResponseWriter, r *http.Request) {
	var (
		queries []evaluation.Query
		err     error
	)

	if mediaType(r) == "application/json" {
		var req QueriesRequest
		if err = decodeJSON(w, r, &req); err == nil {
			queries, err = checkQueries(req.Queries)
		}
	} else {
		queries, err = dataset.ReadQueries(http.MaxBytesReader(w, r.Body, security.MaxRequestSize))
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if len(queries) == 0 {
		writeError(w, apperrors.ValidationError("no queries in request"))
		return
	}

	h.svc.SetQueries(queries)
	writeJSON(w, http.StatusOK, LoadResponse{Loaded: len(queries), Status: h.svc.Status()})
}

func (h *EvaluationHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	format, err := requestFormat(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req EvaluateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := security.ValidateCutoffs(req.Cutoffs); err != nil {
		writeError(w, err)
		return
	}

	src, err := h.svc.Source(req.Source, "run")
	if err != nil {
		writeError(w, err)
		return
	}

	sweep, err := h.svc.Evaluate(r.Context(), src, req.Cutoffs)
	if err != nil {
		logFailure(h.log, r, "Evaluation failed", err, "source", src.Name())
		writeError(w, err)
		return
	}
	writeSweep(w, format, sweep)
}

func (h *EvaluationHandler) handleCompare(w http.ResponseWriter, r *http.Request) {
	format, err := requestFormat(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req CompareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := validateCompare(req); err != nil {
		writeError(w, err)
		return
	}

	before, err := h.svc.Source(req.Before, "before")
	if err != nil {
		writeError(w, err)
		return
	}
	after, err := h.svc.Source(req.After, "after")
	if err != nil {
		writeError(w, err)
		return
	}

	save := h.svc.History() != nil
	if req.Save != nil {
		save = *req.Save
	}

	res, err := h.svc.Compare(r.Context(), harness.CompareRequest{
		Label:   req.Label,
		Before:  before,
		After:   after,
		Cutoffs: req.Cutoffs,
		Save:    save,
	})
	if err != nil {
		logFailure(h.log, r, "Comparison failed", err, "label", security.SanitizeForLog(req.Label))
		writeError(w, err)
		return
	}

	resp := CompareResponse{ID: res.ID, Comparison: res.Comparison}
	if req.Band != nil {
		lo, hi := harness.BandBounds(req.Band.Min, req.Band.Max)
		within := res.Comparison.WithinBand(lo, hi)
		resp.WithinBand = &within
	}
	writeComparison(w, format, res.Comparison, resp)
}

func validateCompare(req CompareRequest) error {
	if err := security.ValidateLabel(req.Label); err != nil {
		return err
	}
	if err := security.ValidateCutoffs(req.Cutoffs); err != nil {
		return err
	}
	if req.Band != nil {
		return security.ValidateBand(req.Band.Min, req.Band.Max)
	}
	return nil
}

func checkJudgments(judgments []evaluation.RelevanceJudgment) ([]evaluation.RelevanceJudgment, error) {
	for i, j := range judgments {
		if j.QueryID == "" || j.DocID == "" {
			return nil, apperrors.ValidationError(fmt.Sprintf("judgment %d: query_id and doc_id are required", i))
		}
	}
	return judgments, nil
}

func checkQueries(queries []evaluation.Query) ([]evaluation.Query, error) {
	seen := make(map[string]struct{}, len(queries))
	for i, q := range queries {
		q.ID = evaluation.CanonicalID(q.ID)
		queries[i].ID = q.ID
		if q.ID == "" {
			return nil, apperrors.ValidationError(fmt.Sprintf("query %d: id is required", i))
		}
		if strings.TrimSpace(q.Text) == "" {
			return nil, apperrors.ValidationError(fmt.Sprintf("query %s has no text", q.ID))
		}
		if _, ok := seen[q.ID]; ok {
			return nil, apperrors.New(apperrors.CodeParse, fmt.Sprintf("duplicate query id %q", q.ID))
		}
		seen[q.ID] = struct{}{}
	}
	return queries, nil
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}
