package harvest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/uwabamin5/scroll-copy/internal/state"
)

// fakeDriver plays back a script of extraction results, one per call.
// Beyond the script it yields nothing, which drives idle termination.
type fakeDriver struct {
	script       []func() ([]Record, error)
	extractCalls int
	scrollCalls  int
	offset       int
}

func (d *fakeDriver) Extract(ctx context.Context, mode ExtractMode) ([]Record, error) {
	i := d.extractCalls
	d.extractCalls++
	if i < len(d.script) {
		return d.script[i]()
	}
	return nil, nil
}

func (d *fakeDriver) ScrollBy(ctx context.Context, step int) error {
	d.scrollCalls++
	d.offset += step
	return nil
}

func (d *fakeDriver) ScrollOffset(ctx context.Context) (int, error) {
	return d.offset, nil
}

func yield(recs ...Record) func() ([]Record, error) {
	return func() ([]Record, error) { return recs, nil }
}

func fail(msg string) func() ([]Record, error) {
	return func() ([]Record, error) { return nil, errors.New(msg) }
}

func newTestHarvester(t *testing.T, cfg LoopConfig, drv PageDriver) (*Harvester, *state.RunState, *state.CheckpointStore, *RawLog) {
	t.Helper()
	dir := t.TempDir()
	store := state.NewCheckpointStore(filepath.Join(dir, "state.json"))
	st := state.New(
		state.Target{URL: "http://example.test", ContainerSelector: "#panel"},
		state.Files{RawOutput: filepath.Join(dir, "raw.txt")},
		state.Runtime{MaxIdleScrolls: cfg.MaxIdleScrolls, MaxRetries: cfg.MaxRetries, DedupeMode: "exact"},
	)
	raw, err := OpenRawLog(st.Files.RawOutput)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { raw.Close() })
	return New(cfg, drv, raw, NewAccumulator(), st, store), st, store, raw
}

func TestIdleTermination(t *testing.T) {
	drv := &fakeDriver{script: []func() ([]Record, error){
		yield(Record{Speaker: "A", Text: "one"}),
		yield(Record{Speaker: "A", Text: "one"}, Record{Speaker: "B", Text: "two"}),
	}}
	cfg := LoopConfig{
		MaxIdleScrolls:     3,
		ScrollStep:         400,
		CheckpointInterval: 2,
		MaxRetries:         1,
	}
	h, st, store, _ := newTestHarvester(t, cfg, drv)

	status, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != state.StatusCompleted {
		t.Fatalf("status = %s, want completed", status)
	}

	// Two productive iterations, then exactly three idle ones.
	if drv.extractCalls != 5 {
		t.Errorf("extract calls = %d, want 5", drv.extractCalls)
	}
	// Every iteration scrolls once; nothing scrolls after termination.
	if drv.scrollCalls != drv.extractCalls {
		t.Errorf("scroll calls = %d, want %d", drv.scrollCalls, drv.extractCalls)
	}

	if st.Progress.TotalLinesSeen != 3 {
		t.Errorf("total = %d, want 3", st.Progress.TotalLinesSeen)
	}
	if st.Progress.UniqueLinesSeen != 2 {
		t.Errorf("unique = %d, want 2", st.Progress.UniqueLinesSeen)
	}
	if st.Progress.IdleScrollCount != 3 {
		t.Errorf("idle = %d, want 3", st.Progress.IdleScrollCount)
	}
	if st.Progress.ScrollTop != 5*400 {
		t.Errorf("scroll_top = %d, want %d", st.Progress.ScrollTop, 5*400)
	}

	saved, err := store.Load()
	if err != nil {
		t.Fatalf("Load after run: %v", err)
	}
	if saved.Status != state.StatusCompleted {
		t.Errorf("persisted status = %s, want completed", saved.Status)
	}
	if saved.Progress.UniqueLinesSeen != 2 {
		t.Errorf("persisted unique = %d, want 2", saved.Progress.UniqueLinesSeen)
	}
	if saved.LastError != nil {
		t.Errorf("persisted last_error = %+v, want nil", saved.LastError)
	}
}

func TestRetryBudgetExceeded(t *testing.T) {
	drv := &fakeDriver{}
	for i := 0; i < 16; i++ {
		drv.script = append(drv.script, fail(fmt.Sprintf("timeout %d", i)))
	}
	cfg := LoopConfig{MaxIdleScrolls: 5, ScrollStep: 100, CheckpointInterval: 1, MaxRetries: 3}
	h, st, store, _ := newTestHarvester(t, cfg, drv)

	status, err := h.Run(context.Background())
	if !errors.Is(err, ErrRetryExceeded) {
		t.Fatalf("err = %v, want ErrRetryExceeded", err)
	}
	if status != state.StatusInterrupted {
		t.Fatalf("status = %s, want interrupted", status)
	}

	// The failing iteration is attempted max_retries+1 times, no more.
	if drv.extractCalls != cfg.MaxRetries+1 {
		t.Errorf("attempts = %d, want %d", drv.extractCalls, cfg.MaxRetries+1)
	}
	if drv.scrollCalls != 0 {
		t.Errorf("scroll calls = %d, want 0", drv.scrollCalls)
	}

	saved, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if saved.Status != state.StatusInterrupted {
		t.Errorf("persisted status = %s, want interrupted", saved.Status)
	}
	if saved.LastError == nil || saved.LastError.Code != CodeRetryExceeded {
		t.Errorf("persisted last_error = %+v, want code %s", saved.LastError, CodeRetryExceeded)
	}
	if saved.LastError != nil && saved.LastError.RetryCount != cfg.MaxRetries+1 {
		t.Errorf("retry_count = %d, want %d", saved.LastError.RetryCount, cfg.MaxRetries+1)
	}
	if !st.Status.Terminal() {
		t.Errorf("in-memory status %s not terminal", st.Status)
	}
}

func TestFailureCounterResetsOnSuccess(t *testing.T) {
	// Two faults, a good iteration, two more faults: with max-retries 2 the
	// budget is never exceeded because success resets the counter.
	drv := &fakeDriver{script: []func() ([]Record, error){
		fail("timeout"),
		fail("timeout"),
		yield(Record{Text: "alpha"}),
		fail("timeout"),
		fail("timeout"),
		yield(Record{Text: "beta"}),
	}}
	cfg := LoopConfig{MaxIdleScrolls: 2, ScrollStep: 100, CheckpointInterval: 1, MaxRetries: 2}
	h, st, _, _ := newTestHarvester(t, cfg, drv)

	status, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if status != state.StatusCompleted {
		t.Fatalf("status = %s, want completed", status)
	}
	if st.Progress.UniqueLinesSeen != 2 {
		t.Errorf("unique = %d, want 2", st.Progress.UniqueLinesSeen)
	}
}

func TestCanceledContext(t *testing.T) {
	drv := &fakeDriver{}
	cfg := LoopConfig{MaxIdleScrolls: 3, ScrollStep: 100, CheckpointInterval: 1, MaxRetries: 1}
	h, _, store, _ := newTestHarvester(t, cfg, drv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	status, err := h.Run(ctx)
	if status != state.StatusInterrupted {
		t.Fatalf("status = %s, want interrupted", status)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if drv.extractCalls != 0 {
		t.Errorf("extract calls = %d, want 0", drv.extractCalls)
	}

	saved, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if saved.Status != state.StatusInterrupted {
		t.Errorf("persisted status = %s, want interrupted", saved.Status)
	}
}

func TestWriteFaultEndsRun(t *testing.T) {
	drv := &fakeDriver{script: []func() ([]Record, error){
		yield(Record{Text: "alpha"}),
	}}
	cfg := LoopConfig{MaxIdleScrolls: 3, ScrollStep: 100, CheckpointInterval: 1, MaxRetries: 5}
	h, _, _, raw := newTestHarvester(t, cfg, drv)

	// Closing the raw log makes the first append fail like a disk error.
	raw.Close()

	status, err := h.Run(context.Background())
	if status != state.StatusFailed {
		t.Fatalf("status = %s, want failed", status)
	}
	if KindOf(err) != KindWrite {
		t.Fatalf("fault kind = %v, want write", KindOf(err))
	}
	// Write faults are terminal, never retried.
	if drv.extractCalls != 1 {
		t.Errorf("extract calls = %d, want 1", drv.extractCalls)
	}
}

func TestDedupAcrossIterations(t *testing.T) {
	// The final artifact's size must equal the count of distinct non-empty
	// lines ever appended, however duplicates arrive across iterations.
	drv := &fakeDriver{script: []func() ([]Record, error){
		yield(Record{Speaker: "A", Text: "Hello"}, Record{Speaker: "B", Text: "World"}),
		yield(Record{Speaker: "B", Text: "World"}, Record{Speaker: "C", Text: "!"}),
		yield(Record{Speaker: "A", Text: "Hello"}),
	}}
	cfg := LoopConfig{MaxIdleScrolls: 2, ScrollStep: 100, CheckpointInterval: 10, MaxRetries: 1}
	h, st, _, raw := newTestHarvester(t, cfg, drv)

	status, err := h.Run(context.Background())
	if err != nil || status != state.StatusCompleted {
		t.Fatalf("Run = %s, %v", status, err)
	}

	finalPath := filepath.Join(t.TempDir(), "final.txt")
	total, unique, err := Finalize(raw.Path(), finalPath)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if total != st.Progress.TotalLinesSeen {
		t.Errorf("finalize total = %d, state total = %d", total, st.Progress.TotalLinesSeen)
	}
	if unique != st.Progress.UniqueLinesSeen {
		t.Errorf("finalize unique = %d, state unique = %d", unique, st.Progress.UniqueLinesSeen)
	}
	if unique != 3 {
		t.Errorf("unique = %d, want 3", unique)
	}
}
