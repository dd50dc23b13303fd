package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/ricesearch/rice-eval/internal/evaluation"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
)

// judgmentRow is one data row of a judgments TSV. Columns are positional:
// query ID, document ID, grade.
type judgmentRow struct {
	QueryID string `csv:"query-id"`
	DocID   string `csv:"corpus-id"`
	Score   grade  `csv:"score"`
}

// grade is a decimal relevance grade cell.
type grade int

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (g *grade) UnmarshalCSV(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid grade %q", s)
	}
	*g = grade(n)
	return nil
}

// errNoRows is what gocsv reports for a table with no data rows.
const errNoRows = "empty csv file given"

// LoadJudgments reads a judgments file. Files ending in .tsv are read as a
// tab-separated table with a header; anything else as TREC qrels.
func LoadJudgments(path string) (*evaluation.JudgmentSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open judgments: %w", err)
	}
	defer f.Close()

	var judgments []evaluation.RelevanceJudgment
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		judgments, err = readJudgmentsTSV(f, path)
	} else {
		judgments, err = readQrels(f, path)
	}
	if err != nil {
		return nil, err
	}

	return evaluation.NewJudgmentSetFrom(judgments), nil
}

// ReadJudgmentsTSV reads tab-separated judgments. The first line is a header
// and is skipped.
func ReadJudgmentsTSV(r io.Reader) ([]evaluation.RelevanceJudgment, error) {
	return readJudgmentsTSV(r, "<judgments>")
}

func readJudgmentsTSV(r io.Reader, name string) ([]evaluation.RelevanceJudgment, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = 3
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, csvParseError(name, err)
	}

	var rows []judgmentRow
	if err := gocsv.UnmarshalCSVWithoutHeaders(reader, &rows); err != nil {
		if err.Error() == errNoRows {
			return nil, nil
		}
		return nil, csvParseError(name, err)
	}

	judgments := make([]evaluation.RelevanceJudgment, 0, len(rows))
	for i, row := range rows {
		j, err := newJudgment(row.QueryID, row.DocID, int(row.Score))
		if err != nil {
			return nil, apperrors.ParseError(name, i+2, err)
		}
		judgments = append(judgments, j)
	}

	return judgments, nil
}

// ReadQrels reads TREC qrels: "qid iteration docid grade" per line.
func ReadQrels(r io.Reader) ([]evaluation.RelevanceJudgment, error) {
	return readQrels(r, "<qrels>")
}

func readQrels(r io.Reader, name string) ([]evaluation.RelevanceJudgment, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var judgments []evaluation.RelevanceJudgment
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 4 {
			return nil, apperrors.ParseError(name, line, fmt.Errorf("expected 4 fields, got %d", len(fields)))
		}

		grade, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, apperrors.ParseError(name, line, fmt.Errorf("invalid grade %q", fields[3]))
		}
		j, err := newJudgment(fields[0], fields[2], grade)
		if err != nil {
			return nil, apperrors.ParseError(name, line, err)
		}
		judgments = append(judgments, j)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read qrels: %w", err)
	}

	return judgments, nil
}

// newJudgment builds a judgment. Grades may be negative, as in TREC qrels
// that mark spam with -2.
func newJudgment(queryID, docID string, grade int) (evaluation.RelevanceJudgment, error) {
	queryID = strings.TrimSpace(queryID)
	docID = strings.TrimSpace(docID)
	if queryID == "" || docID == "" {
		return evaluation.RelevanceJudgment{}, fmt.Errorf("query and document IDs are required")
	}

	return evaluation.RelevanceJudgment{
		QueryID:   evaluation.CanonicalID(queryID),
		DocID:     docID,
		Relevance: grade,
	}, nil
}

// csvParseError converts a CSV error to a PARSE_ERROR. encoding/csv reports
// file lines and sets StartLine; gocsv counts data rows from 1 and leaves
// StartLine unset, so its lines are shifted past the header.
func csvParseError(name string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		line := pe.Line
		if pe.StartLine == 0 {
			line++
		}
		return apperrors.ParseError(name, line, pe.Err)
	}
	return apperrors.ParseError(name, 0, err)
}
