package server

import (
	"net/http"
	"strconv"

	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/history"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
)

// HistoryHandler serves stored comparisons. A nil store answers 503.
type HistoryHandler struct {
	store *history.Store
	log   *logger.Logger
}

// NewHistoryHandler creates a history handler.
func NewHistoryHandler(store *history.Store, log *logger.Logger) *HistoryHandler {
	return &HistoryHandler{store: store, log: log}
}

// RegisterRoutes registers the history routes on mux.
func (h *HistoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/history", h.handleList)
	mux.HandleFunc("GET /v1/history/{id}", h.handleGet)
	mux.HandleFunc("GET /v1/history/{id}/records", h.handleRecords)
	mux.HandleFunc("DELETE /v1/history/{id}", h.handleDelete)
}

// ListResponse is the response of GET /v1/history.
type ListResponse struct {
	Comparisons []history.Summary `json:"comparisons"`
	Total       int               `json:"total"`
}

// RecordsResponse is the response of GET /v1/history/{id}/records.
type RecordsResponse struct {
	ID      string                        `json:"id"`
	Records []evaluation.ComparisonRecord `json:"records"`
}

func (h *HistoryHandler) available(w http.ResponseWriter) bool {
	if h.store == nil {
		writeError(w, apperrors.New(apperrors.CodeUnavailable, "history is disabled"))
		return false
	}
	return true
}

func (h *HistoryHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, apperrors.ValidationError("limit must be an integer"))
			return
		}
		limit = n
	}
	if err := security.ValidateListLimit(limit); err != nil {
		writeError(w, err)
		return
	}

	list, err := h.store.List(r.Context(), limit)
	if err != nil {
		h.log.WithContext(r.Context()).Error("Failed to list history", "error", err)
		writeError(w, err)
		return
	}
	if list == nil {
		list = []history.Summary{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Comparisons: list, Total: len(list)})
}

func (h *HistoryHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	id := r.PathValue("id")
	if err := security.ValidateHistoryID(id); err != nil {
		writeError(w, err)
		return
	}

	entry, err := h.store.Get(r.Context(), id)
	if err != nil {
		logFailure(h.log, r, "Failed to load comparison", err, "id", id)
		writeError(w, err)
		return
	}

	format, err := requestFormat(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeComparison(w, format, entry.Comparison, entry)
}

func (h *HistoryHandler) handleRecords(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	id := r.PathValue("id")
	if err := security.ValidateHistoryID(id); err != nil {
		writeError(w, err)
		return
	}

	records, err := h.store.Records(r.Context(), id)
	if err != nil {
		logFailure(h.log, r, "Failed to load records", err, "id", id)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordsResponse{ID: id, Records: records})
}

func (h *HistoryHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	id := r.PathValue("id")
	if err := security.ValidateHistoryID(id); err != nil {
		writeError(w, err)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		logFailure(h.log, r, "Failed to delete comparison", err, "id", id)
		writeError(w, err)
		return
	}

	h.log.WithContext(r.Context()).Info("Comparison deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}
