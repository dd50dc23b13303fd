package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  New(CodeValidation, "invalid input"),
			want: "VALIDATION_ERROR: invalid input",
		},
		{
			name: "with wrapped error",
			err:  Wrap(CodeInternal, "something failed", errors.New("underlying")),
			want: "INTERNAL_ERROR: something failed: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeInvalidRequest, http.StatusBadRequest},
		{CodeParse, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeTimeout, http.StatusGatewayTimeout},
		{CodeSource, http.StatusBadGateway},
		{CodeStorage, http.StatusInternalServerError},
		{CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test")
			if status := err.HTTPStatus(); status != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", status, tt.status)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	err := ParseError("qrels.tsv", 7, errors.New("expected 3 fields"))

	if err.Code != CodeParse {
		t.Errorf("Code = %s, want %s", err.Code, CodeParse)
	}
	if err.Details["file"] != "qrels.tsv" || err.Details["line"] != "7" {
		t.Errorf("Details = %v, want file and line", err.Details)
	}
}

func TestAs_WrappedChain(t *testing.T) {
	inner := SourceError("http", errors.New("connection refused"))
	outer := fmt.Errorf("evaluating cutoff 10: %w", inner)

	appErr, ok := As(outer)
	if !ok {
		t.Fatal("As() did not find AppError in chain")
	}
	if appErr.Code != CodeSource {
		t.Errorf("Code = %s, want %s", appErr.Code, CodeSource)
	}
	if !HasCode(outer, CodeSource) {
		t.Error("HasCode() = false, want true")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NotFoundError("report")) {
		t.Error("IsNotFound(NotFoundError) = false, want true")
	}
	if IsNotFound(ValidationError("test")) {
		t.Error("IsNotFound(ValidationError) = true, want false")
	}
	if IsNotFound(errors.New("standard error")) {
		t.Error("IsNotFound(standard error) = true, want false")
	}
}

func TestIsValidation(t *testing.T) {
	if !IsValidation(ValidationError("test")) {
		t.Error("IsValidation(ValidationError) = false, want true")
	}
	if IsValidation(NotFoundError("test")) {
		t.Error("IsValidation(NotFoundError) = true, want false")
	}
}

func TestWriteError(t *testing.T) {
	t.Run("app error keeps code", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, ValidationError("cutoffs must be positive"))

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}

		var resp ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Code != CodeValidation {
			t.Errorf("Code = %s, want %s", resp.Code, CodeValidation)
		}
	})

	t.Run("plain error is sanitized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteError(rec, errors.New("dial tcp 10.0.0.3:6379: refused"))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
		}

		var resp ErrorResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Error != "internal server error" {
			t.Errorf("Error = %q, want sanitized message", resp.Error)
		}
	})
}
