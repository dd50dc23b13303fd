package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/ricesearch/rice-eval/internal/evaluation"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/pkg/security"
	"github.com/ricesearch/rice-eval/internal/report"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a JSON error response. Validation failures from
// the security package become 400s.
func writeError(w http.ResponseWriter, err error) {
	var verr *security.ValidationError
	if errors.As(err, &verr) {
		apperrors.WriteError(w, apperrors.ValidationError(verr.Error()).WithDetail("field", verr.Field))
		return
	}
	apperrors.WriteError(w, err)
}

// logFailure logs a failed operation. Errors the client caused are logged at
// debug level.
func logFailure(log *logger.Logger, r *http.Request, msg string, err error, args ...any) {
	l := log.WithContext(r.Context())
	args = append(args, "error", err)
	if apperrors.IsValidation(err) || apperrors.IsNotFound(err) {
		l.Debug(msg, args...)
		return
	}
	l.Error(msg, args...)
}

// decodeJSON decodes a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, security.MaxRequestSize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.InvalidRequestError("request body too large")
		}
		if errors.Is(err, io.EOF) {
			return apperrors.InvalidRequestError("request body is empty")
		}
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "invalid JSON body", err)
	}
	return nil
}

// requestFormat returns the report format asked for with ?format=, or JSON.
func requestFormat(r *http.Request) (string, error) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		return report.FormatJSON, nil
	}
	for _, f := range report.Formats {
		if f == format {
			return format, nil
		}
	}
	return "", apperrors.ValidationError("unsupported format: "+format).
		WithDetail("formats", strings.Join(report.Formats, ","))
}

func contentType(format string) string {
	switch format {
	case report.FormatJSON:
		return "application/json"
	case report.FormatCSV:
		return "text/csv; charset=utf-8"
	case report.FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// writeSweep writes sweep in format. JSON responses use the plain encoder so
// they match other endpoints.
func writeSweep(w http.ResponseWriter, format string, sweep *evaluation.Sweep) {
	if format == report.FormatJSON {
		writeJSON(w, http.StatusOK, sweep)
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	_ = report.RenderSweep(w, sweep, format)
}

func writeComparison(w http.ResponseWriter, format string, cmp *evaluation.Comparison, resp interface{}) {
	if format == report.FormatJSON {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	w.Header().Set("Content-Type", contentType(format))
	_ = report.Render(w, cmp, format)
}
