package bus

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ricesearch/rice-eval/internal/pkg/logger"
)

func TestEventLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "events.jsonl")

	t.Run("RequiresPath", func(t *testing.T) {
		if _, err := NewEventLogger(""); err == nil {
			t.Error("NewEventLogger(\"\") should error")
		}
	})

	t.Run("LogAndRead", func(t *testing.T) {
		l, err := NewEventLogger(logPath)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}

		base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		for i, id := range []string{"e1", "e2", "e3"} {
			l.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
			if err := l.Log(TopicEvaluationCompleted, Event{ID: id, Type: TopicEvaluationCompleted}); err != nil {
				t.Fatalf("Log failed: %v", err)
			}
		}
		if err := l.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		if _, err := os.Stat(logPath); err != nil {
			t.Fatalf("log file missing: %v", err)
		}

		all, err := ReadEvents(logPath, time.Time{}, 0)
		if err != nil {
			t.Fatalf("ReadEvents failed: %v", err)
		}
		if len(all) != 3 || all[0].Event.ID != "e1" || all[0].Topic != TopicEvaluationCompleted {
			t.Fatalf("ReadEvents = %+v", all)
		}

		since, err := ReadEvents(logPath, base, 0)
		if err != nil {
			t.Fatalf("ReadEvents failed: %v", err)
		}
		if len(since) != 2 || since[0].Event.ID != "e2" {
			t.Errorf("ReadEvents since = %+v, want e2, e3", since)
		}

		latest, err := ReadEvents(logPath, time.Time{}, 1)
		if err != nil {
			t.Fatalf("ReadEvents failed: %v", err)
		}
		if len(latest) != 1 || latest[0].Event.ID != "e3" {
			t.Errorf("ReadEvents limit 1 = %+v, want e3", latest)
		}
	})

	t.Run("Append", func(t *testing.T) {
		l, err := NewEventLogger(logPath)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		l.Log("other", Event{ID: "e4"})
		l.Close()

		events, _ := ReadEvents(logPath, time.Time{}, 0)
		if len(events) != 4 {
			t.Errorf("got %d events after reopen, want 4", len(events))
		}
	})

	t.Run("LogAfterClose", func(t *testing.T) {
		l, err := NewEventLogger(logPath)
		if err != nil {
			t.Fatalf("NewEventLogger failed: %v", err)
		}
		l.Close()
		if err := l.Log("x", Event{}); err == nil {
			t.Error("Log after Close should error")
		}
		if err := l.Close(); err != nil {
			t.Errorf("second Close error = %v", err)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		events, err := ReadEvents(filepath.Join(t.TempDir(), "none.jsonl"), time.Time{}, 0)
		if err != nil {
			t.Fatalf("ReadEvents failed: %v", err)
		}
		if len(events) != 0 {
			t.Errorf("got %d events, want 0", len(events))
		}
	})

	t.Run("SkipsMalformedLines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.jsonl")
		content := "not json\n" + `{"event":{"id":"ok"},"topic":"t","timestamp":"2025-01-01T00:00:00Z"}` + "\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		events, err := ReadEvents(path, time.Time{}, 0)
		if err != nil {
			t.Fatalf("ReadEvents failed: %v", err)
		}
		if len(events) != 1 || events[0].Event.ID != "ok" {
			t.Errorf("events = %+v", events)
		}
	})
}

func TestLoggedBus(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "events.jsonl")
	eventLogger, err := NewEventLogger(logPath)
	if err != nil {
		t.Fatalf("NewEventLogger failed: %v", err)
	}

	inner := NewMemoryBus(logger.Discard())
	bus := NewLoggedBus(inner, eventLogger, logger.Discard())

	var wg sync.WaitGroup
	wg.Add(1)
	var received Event
	bus.Subscribe(context.Background(), TopicComparisonCompleted, func(ctx context.Context, event Event) error {
		received = event
		wg.Done()
		return nil
	})

	event := NewEvent(TopicComparisonCompleted, "test", nil)
	if err := bus.Publish(context.Background(), TopicComparisonCompleted, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	waitGroup(t, &wg, time.Second)

	if received.ID != event.ID {
		t.Errorf("subscriber got %q, want %q", received.ID, event.ID)
	}

	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	logged, err := ReadEvents(logPath, time.Time{}, 0)
	if err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	if len(logged) != 1 || logged[0].Event.ID != event.ID || logged[0].Topic != TopicComparisonCompleted {
		t.Errorf("logged = %+v", logged)
	}

	if err := bus.Publish(context.Background(), TopicComparisonCompleted, event); err == nil {
		t.Error("Publish after Close should error")
	}
}
