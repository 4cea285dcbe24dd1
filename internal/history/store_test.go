package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/uwabamin5/scroll-copy/internal/state"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func terminalState(status state.Status) *state.RunState {
	st := state.New(
		state.Target{URL: "http://example.test", ContainerSelector: "#panel"},
		state.Files{RawOutput: "raw.txt", FinalOutput: "final.txt"},
		state.Runtime{DedupeMode: "exact"},
	)
	st.Progress.LoopCount = 9
	st.Progress.TotalLinesSeen = 120
	st.Progress.UniqueLinesSeen = 47
	_ = st.Transition(status)
	return st
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := terminalState(state.StatusCompleted)
	second := terminalState(state.StatusInterrupted)
	second.RecordError("E_RETRY_EXCEEDED", "max retries exceeded", 4)

	if err := s.Record(ctx, first); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, second); err != nil {
		t.Fatalf("Record: %v", err)
	}

	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len = %d, want 2", len(runs))
	}

	byID := make(map[string]Run)
	for _, r := range runs {
		byID[r.RunID] = r
	}
	got := byID[first.RunID]
	if got.Status != "completed" || got.UniqueLines != 47 || got.LoopCount != 9 {
		t.Errorf("completed row = %+v", got)
	}
	got = byID[second.RunID]
	if got.Status != "interrupted" || got.ErrorCode != "E_RETRY_EXCEEDED" {
		t.Errorf("interrupted row = %+v", got)
	}
}

func TestRecordUpsertsSameRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st := terminalState(state.StatusInterrupted)
	if err := s.Record(ctx, st); err != nil {
		t.Fatal(err)
	}

	// A resumed run finishing again replaces its earlier row.
	resumed := terminalState(state.StatusCompleted)
	resumed.RunID = st.RunID
	resumed.Progress.UniqueLinesSeen = 80
	if err := s.Record(ctx, resumed); err != nil {
		t.Fatal(err)
	}

	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("len = %d, want 1", len(runs))
	}
	if runs[0].Status != "completed" || runs[0].UniqueLines != 80 {
		t.Errorf("row = %+v", runs[0])
	}
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.Record(ctx, terminalState(state.StatusCompleted)); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Fatalf("len = %d, want 3", len(runs))
	}
}
