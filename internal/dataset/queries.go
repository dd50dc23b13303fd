// Package dataset reads evaluation inputs: queries, relevance judgments and
// precomputed runs.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ricesearch/rice-eval/internal/evaluation"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
)

const maxLineSize = 4 * 1024 * 1024

// queryRecord is one line of a queries JSONL file.
type queryRecord struct {
	ID       json.RawMessage `json:"_id"`
	Text     string          `json:"text"`
	Metadata struct {
		Query string `json:"query"`
	} `json:"metadata"`
}

// LoadQueries reads queries from a JSONL file.
func LoadQueries(path string) ([]evaluation.Query, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open queries: %w", err)
	}
	defer f.Close()

	return readQueries(f, path)
}

// ReadQueries reads JSONL queries, one object per line. Blank lines are
// skipped.
func ReadQueries(r io.Reader) ([]evaluation.Query, error) {
	return readQueries(r, "<queries>")
}

func readQueries(r io.Reader, name string) ([]evaluation.Query, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var queries []evaluation.Query
	seen := make(map[string]int)
	line := 0

	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var rec queryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, apperrors.ParseError(name, line, err)
		}

		id, err := parseID(rec.ID)
		if err != nil {
			return nil, apperrors.ParseError(name, line, err)
		}

		text := rec.Metadata.Query
		if text == "" {
			text = rec.Text
		}
		if strings.TrimSpace(text) == "" {
			return nil, apperrors.ParseError(name, line, fmt.Errorf("query %s has no text", id))
		}

		if prev, dup := seen[id]; dup {
			return nil, apperrors.ParseError(name, line, fmt.Errorf("query %s already defined on line %d", id, prev))
		}
		seen[id] = line

		queries = append(queries, evaluation.Query{ID: id, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}

	return queries, nil
}

// parseID accepts a JSON string or number and returns the canonical ID.
func parseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("missing _id")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("empty _id")
		}
		return evaluation.CanonicalID(s), nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("_id must be a string or number: %s", raw)
	}
	return evaluation.CanonicalID(n.String()), nil
}
