package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, "http://localhost:8080")
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, 30*time.Second)
	}
}

func TestClientNew(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		c := New(Config{})
		if c.BaseURL() != "http://localhost:8080" {
			t.Errorf("BaseURL() = %q, want %q", c.BaseURL(), "http://localhost:8080")
		}
		if c.userAgent != "rice-eval" {
			t.Errorf("userAgent = %q, want %q", c.userAgent, "rice-eval")
		}
	})

	t.Run("trailing slash trimmed", func(t *testing.T) {
		c := New(Config{
			BaseURL: "http://custom:9000/",
			Timeout: 60 * time.Second,
		})
		if c.BaseURL() != "http://custom:9000" {
			t.Errorf("BaseURL() = %q, want %q", c.BaseURL(), "http://custom:9000")
		}
	})
}

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/healthz")
		}
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want %q", r.Method, http.MethodGet)
		}

		if err := json.NewEncoder(w).Encode(HealthResponse{
			Status:  "ok",
			Version: "1.0.0",
		}); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("Status = %q, want %q", resp.Status, "ok")
	}
	if resp.Version != "1.0.0" {
		t.Errorf("Version = %q, want %q", resp.Version, "1.0.0")
	}
}

func TestClientSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want %q", r.Method, http.MethodPost)
		}
		if r.URL.Path != "/v1/search" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/v1/search")
		}
		if ua := r.Header.Get("User-Agent"); ua != "rice-eval" {
			t.Errorf("User-Agent = %q, want %q", ua, "rice-eval")
		}

		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		if req.Query != "sort a list" {
			t.Errorf("Query = %q, want %q", req.Query, "sort a list")
		}
		if req.TopK != 10 {
			t.Errorf("TopK = %d, want %d", req.TopK, 10)
		}

		if err := json.NewEncoder(w).Encode(SearchResponse{
			Query: req.Query,
			Results: []SearchResult{
				{ID: "doc-2", Score: 0.95},
				{ID: "doc-7", Score: 0.80},
			},
			Total: 2,
		}); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	resp, err := c.Search(context.Background(), SearchRequest{
		Query: "sort a list",
		TopK:  10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ids := resp.IDs()
	if len(ids) != 2 || ids[0] != "doc-2" || ids[1] != "doc-7" {
		t.Errorf("IDs() = %v, want [doc-2 doc-7]", ids)
	}
}

func TestClientSearchStore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/stores/default/search" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/v1/stores/default/search")
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Store: "default"})
	resp, err := c.Search(context.Background(), SearchRequest{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.IDs()) != 0 {
		t.Errorf("IDs() = %v, want empty", resp.IDs())
	}
}

func TestClientAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		if err := json.NewEncoder(w).Encode(APIError{
			Code:    "NOT_FOUND",
			Message: "store not found",
		}); err != nil {
			t.Errorf("failed to encode response: %v", err)
		}
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	_, err := c.Search(context.Background(), SearchRequest{Query: "q"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != "NOT_FOUND" {
		t.Errorf("Code = %q, want %q", apiErr.Code, "NOT_FOUND")
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want %d", apiErr.Status, http.StatusNotFound)
	}
}

func TestClientPlainTextError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	_, err := c.Search(context.Background(), SearchRequest{Query: "q"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Message != "upstream down" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "upstream down")
	}
}

func TestClientConnectionError(t *testing.T) {
	c := New(Config{
		BaseURL: "http://localhost:99999", // Invalid port
		Timeout: 1 * time.Second,
	})

	_, err := c.Health(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestAPIErrorString(t *testing.T) {
	err := &APIError{
		Status:  400,
		Code:    "TEST_ERROR",
		Message: "test message",
	}

	expected := "HTTP 400 TEST_ERROR: test message"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}
