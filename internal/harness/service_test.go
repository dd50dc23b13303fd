package harness

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ricesearch/rice-eval/internal/bus"
	"github.com/ricesearch/rice-eval/internal/dataset"
	"github.com/ricesearch/rice-eval/internal/evaluation"
	"github.com/ricesearch/rice-eval/internal/history"
	apperrors "github.com/ricesearch/rice-eval/internal/pkg/errors"
	"github.com/ricesearch/rice-eval/internal/pkg/logger"
	"github.com/ricesearch/rice-eval/internal/source"
)

func testJudgments() *evaluation.JudgmentSet {
	return evaluation.NewJudgmentSetFrom([]evaluation.RelevanceJudgment{
		{QueryID: "q1", DocID: "d1", Relevance: 2},
		{QueryID: "q1", DocID: "d2", Relevance: 1},
		{QueryID: "q2", DocID: "d3", Relevance: 3},
	})
}

var (
	beforeRun = dataset.Run{"q1": {"d9", "d1"}, "q2": {"d8", "d7"}}
	afterRun  = dataset.Run{"q1": {"d1", "d2"}, "q2": {"d3", "d7"}}
)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	opts.Log = logger.Discard()
	opts.Cutoffs = []int{1, 2}
	return New(testJudgments(), nil, opts)
}

func TestServiceEvaluate(t *testing.T) {
	svc := newTestService(t, Options{})

	sweep, err := svc.Evaluate(context.Background(), source.NewRunSource("after", afterRun), nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}

	if len(sweep.Scores) != 2 {
		t.Fatalf("got %d scores, want 2", len(sweep.Scores))
	}
	// k=1: d1 (2) + d3 (3); k=2 adds d2 (1).
	if sweep.Scores[0].Score != 5 || sweep.Scores[1].Score != 6 {
		t.Errorf("scores = %d, %d, want 5, 6", sweep.Scores[0].Score, sweep.Scores[1].Score)
	}
	if sweep.Scores[0].QueryCount != 2 {
		t.Errorf("QueryCount = %d, want 2 judged queries", sweep.Scores[0].QueryCount)
	}
}

func TestServiceEvaluateExplicitCutoffs(t *testing.T) {
	svc := newTestService(t, Options{})

	sweep, err := svc.Evaluate(context.Background(), source.NewRunSource("after", afterRun), []int{10})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(sweep.Scores) != 1 || sweep.Scores[0].Cutoff != 10 {
		t.Errorf("scores = %+v, want single cutoff 10", sweep.Scores)
	}
}

type textSource struct{}

func (textSource) Name() string { return "remote" }
func (textSource) Search(_ context.Context, q evaluation.Query, k int) ([]string, error) {
	return []string{"d1"}, nil
}

func TestServiceNeedsQueriesForRemote(t *testing.T) {
	svc := newTestService(t, Options{})

	_, err := svc.Evaluate(context.Background(), textSource{}, nil)
	if !apperrors.IsValidation(err) {
		t.Fatalf("Evaluate() error = %v, want validation error", err)
	}

	svc.SetQueries([]evaluation.Query{{ID: "q1", Text: "first"}})
	sweep, err := svc.Evaluate(context.Background(), textSource{}, nil)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if sweep.Scores[0].Score != 2 {
		t.Errorf("score = %d, want 2", sweep.Scores[0].Score)
	}
}

func TestServiceNoJudgments(t *testing.T) {
	svc := New(nil, nil, Options{Log: logger.Discard()})

	if svc.Ready() {
		t.Error("Ready() = true without judgments")
	}
	_, err := svc.Evaluate(context.Background(), source.NewRunSource("r", afterRun), nil)
	if !apperrors.HasCode(err, apperrors.CodeUnavailable) {
		t.Errorf("Evaluate() error = %v, want unavailable", err)
	}

	svc.SetJudgments(testJudgments())
	if !svc.Ready() {
		t.Error("Ready() = false after SetJudgments")
	}
}

func TestServiceStatus(t *testing.T) {
	svc := newTestService(t, Options{
		Remote: func(store string) (evaluation.Source, error) { return textSource{}, nil },
	})
	svc.SetQueries([]evaluation.Query{{ID: "q1", Text: "a"}, {ID: "q2", Text: "b"}, {ID: "q3", Text: "c"}})

	st := svc.Status()
	if st.Judgments != 3 || st.JudgedQueries != 2 || st.Queries != 3 {
		t.Errorf("Status() = %+v", st)
	}
	if !st.Remote || st.History {
		t.Errorf("Status() remote/history = %v/%v, want true/false", st.Remote, st.History)
	}
}

func TestServiceRemoteSource(t *testing.T) {
	svc := newTestService(t, Options{})
	if _, err := svc.RemoteSource(""); !apperrors.HasCode(err, apperrors.CodeUnavailable) {
		t.Errorf("RemoteSource() error = %v, want unavailable", err)
	}

	var gotStore string
	svc = newTestService(t, Options{Remote: func(store string) (evaluation.Source, error) {
		gotStore = store
		return textSource{}, nil
	}})
	if _, err := svc.RemoteSource("expanded"); err != nil {
		t.Fatalf("RemoteSource() error = %v", err)
	}
	if gotStore != "expanded" {
		t.Errorf("factory got store %q, want expanded", gotStore)
	}
}

func TestServiceCompare(t *testing.T) {
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	defer store.Close()

	b := bus.NewMemoryBus(logger.Discard())
	defer b.Close()

	var (
		mu     sync.Mutex
		events []bus.Event
		wg     sync.WaitGroup
	)
	wg.Add(1)
	b.Subscribe(context.Background(), bus.TopicComparisonCompleted, func(ctx context.Context, e bus.Event) error {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		wg.Done()
		return nil
	})

	svc := newTestService(t, Options{History: store, Bus: b})

	res, err := svc.Compare(context.Background(), CompareRequest{
		Label:  "expansion",
		Before: source.NewRunSource("before", beforeRun),
		After:  source.NewRunSource("after", afterRun),
		Save:   true,
	})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if res.ID == "" {
		t.Fatal("Compare() with Save returned no ID")
	}
	cmp := res.Comparison
	if len(cmp.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(cmp.Records))
	}
	// k=1 before: d9, d8 -> 0, so the percentage is undefined.
	if cmp.Records[0].Before != 0 || cmp.Records[0].After != 5 || cmp.Records[0].PercentImprovement != nil {
		t.Errorf("record k=1 = %+v", cmp.Records[0])
	}
	// k=2 before: d1 -> 2; after: 6.
	if cmp.Records[1].Before != 2 || cmp.Records[1].After != 6 || cmp.Records[1].Improvement != 4 {
		t.Errorf("record k=2 = %+v", cmp.Records[1])
	}

	entry, err := store.Get(context.Background(), res.ID)
	if err != nil {
		t.Fatalf("store.Get() error = %v", err)
	}
	if entry.Label != "expansion" {
		t.Errorf("stored label = %q", entry.Label)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for comparison event")
	}
	mu.Lock()
	defer mu.Unlock()
	if events[0].CorrelationID != res.ID {
		t.Errorf("event correlation = %q, want %q", events[0].CorrelationID, res.ID)
	}
}

func TestServiceCompareWithoutHistory(t *testing.T) {
	svc := newTestService(t, Options{})

	_, err := svc.Compare(context.Background(), CompareRequest{
		Before: source.NewRunSource("before", beforeRun),
		After:  source.NewRunSource("after", afterRun),
		Save:   true,
	})
	if !apperrors.HasCode(err, apperrors.CodeUnavailable) {
		t.Errorf("Compare() error = %v, want unavailable", err)
	}

	res, err := svc.Compare(context.Background(), CompareRequest{
		Before: source.NewRunSource("before", beforeRun),
		After:  source.NewRunSource("after", afterRun),
	})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if res.ID != "" {
		t.Errorf("unsaved comparison has ID %q", res.ID)
	}
}

func TestServiceCompareMissingSource(t *testing.T) {
	svc := newTestService(t, Options{})
	_, err := svc.Compare(context.Background(), CompareRequest{Before: source.NewRunSource("b", beforeRun)})
	if !apperrors.IsValidation(err) {
		t.Errorf("Compare() error = %v, want validation error", err)
	}
}

func TestServiceSource(t *testing.T) {
	svc := newTestService(t, Options{})

	tests := []struct {
		name     string
		spec     RunSpec
		wantName string
		wantErr  bool
	}{
		{"named run", RunSpec{Name: "bm25", Run: map[string][]string{"q1": {"d1"}}}, "bm25", false},
		{"unnamed run", RunSpec{Run: map[string][]string{"q1": {"d1"}}}, "before", false},
		{"empty", RunSpec{}, "", true},
		{"run and remote", RunSpec{Run: map[string][]string{"q1": {"d1"}}, Remote: true}, "", true},
		{"empty query id", RunSpec{Run: map[string][]string{"": {"d1"}}}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := svc.Source(tt.spec, "before")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Source() error = %v", err)
			}
			if src.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", src.Name(), tt.wantName)
			}
		})
	}
}

func TestBandBounds(t *testing.T) {
	lo, hi := BandBounds(nil, nil)
	if !math.IsInf(lo, -1) || !math.IsInf(hi, 1) {
		t.Errorf("BandBounds(nil, nil) = %v, %v", lo, hi)
	}

	minPct, maxPct := 25.0, 35.0
	lo, hi = BandBounds(&minPct, &maxPct)
	if lo != 25 || hi != 35 {
		t.Errorf("BandBounds() = %v, %v, want 25, 35", lo, hi)
	}
}
