package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ricesearch/rice-eval/internal/evaluation"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// Run maps query IDs to ranked document IDs, best first.
type Run map[string][]string

// LoadRun reads a run file. Files ending in .json hold a JSON object of
// query ID to document ID list; anything else is read as a TREC run.
func LoadRun(path string) (Run, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return readRunJSON(f, path)
	}
	return readTRECRun(f, path)
}

// ReadRunJSON reads a run encoded as {"query_id": ["doc", ...]}.
func ReadRunJSON(r io.Reader) (Run, error) {
	return readRunJSON(r, "<run>")
}

func readRunJSON(r io.Reader, name string) (Run, error) {
	var run Run
	if err := json.NewDecoder(r).Decode(&run); err != nil {
		return nil, apperrors.ParseError(name, 0, err)
	}
	return run.Canonical(), nil
}

type trecEntry struct {
	docID string
	rank  int
}

// ReadTRECRun reads "qid Q0 docid rank score tag" lines. Documents are
// ordered by rank; equal ranks keep file order.
func ReadTRECRun(r io.Reader) (Run, error) {
	return readTRECRun(r, "<run>")
}

func readTRECRun(r io.Reader, name string) (Run, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	entries := make(map[string][]trecEntry)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 6 {
			return nil, apperrors.ParseError(name, line, fmt.Errorf("expected 6 fields, got %d", len(fields)))
		}

		rank, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, apperrors.ParseError(name, line, fmt.Errorf("invalid rank %q", fields[3]))
		}
		if _, err := strconv.ParseFloat(fields[4], 64); err != nil {
			return nil, apperrors.ParseError(name, line, fmt.Errorf("invalid score %q", fields[4]))
		}

		qid := evaluation.CanonicalID(fields[0])
		entries[qid] = append(entries[qid], trecEntry{docID: fields[2], rank: rank})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read run: %w", err)
	}

	run := make(Run, len(entries))
	for qid, list := range entries {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].rank < list[j].rank
		})
		docs := make([]string, len(list))
		for i, e := range list {
			docs[i] = e.docID
		}
		run[qid] = docs
	}

	return run, nil
}

// QueryIDs returns the run's query IDs in sorted order.
func (r Run) QueryIDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Canonical returns the run keyed by canonical query IDs. When two keys
// collapse to the same ID, the key already in canonical form wins, then the
// lowest key in sort order.
func (r Run) Canonical() Run {
	out := make(Run, len(r))
	for _, id := range r.QueryIDs() {
		cid := evaluation.CanonicalID(id)
		if _, taken := out[cid]; taken && id != cid {
			continue
		}
		out[cid] = r[id]
	}
	return out
}
