package harvest

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/uwabamin5/scroll-copy/internal/state"
)

// PageDriver is the narrow slice of the browser-automation surface the loop
// needs. Session setup (navigation, container wait) happens before the loop;
// any error from these calls mid-loop is treated as recoverable.
type PageDriver interface {
	Extract(ctx context.Context, mode ExtractMode) ([]Record, error)
	ScrollBy(ctx context.Context, step int) error
	ScrollOffset(ctx context.Context) (int, error)
}

// LoopConfig carries the runtime knobs for one run.
type LoopConfig struct {
	Mode               ExtractMode
	MaxIdleScrolls     int
	ScrollStep         int
	ScrollInterval     time.Duration
	CheckpointInterval int
	MaxRetries         int
	RetryWait          time.Duration
}

// Harvester drives one run: extract, dedup, scroll, checkpoint, until the
// page stops yielding new lines. Iterations are strictly sequential; the
// driver session, accumulator, and raw log are owned by this one loop.
type Harvester struct {
	cfg   LoopConfig
	drv   PageDriver
	raw   *RawLog
	acc   *Accumulator
	st    *state.RunState
	store *state.CheckpointStore
	pace  *rate.Limiter
}

func New(cfg LoopConfig, drv PageDriver, raw *RawLog, acc *Accumulator, st *state.RunState, store *state.CheckpointStore) *Harvester {
	return &Harvester{
		cfg:   cfg,
		drv:   drv,
		raw:   raw,
		acc:   acc,
		st:    st,
		store: store,
		// rate.Every treats a non-positive interval as unlimited, which is
		// what tests want.
		pace: rate.NewLimiter(rate.Every(cfg.ScrollInterval), 1),
	}
}

// Run executes the loop until idle termination, fault escalation, or context
// cancellation. The returned status has already been persisted; err is nil
// only for StatusCompleted.
func (h *Harvester) Run(ctx context.Context) (state.Status, error) {
	failures := 0

	for h.st.Progress.IdleScrollCount < h.cfg.MaxIdleScrolls {
		if err := ctx.Err(); err != nil {
			return h.finish(state.StatusInterrupted, CodeUnexpected, "run canceled: "+err.Error(), failures), err
		}

		err := h.iterate(ctx)
		if err == nil {
			failures = 0
			if err := h.pace.Wait(ctx); err != nil {
				return h.finish(state.StatusInterrupted, CodeUnexpected, "run canceled: "+err.Error(), failures), err
			}
			continue
		}

		switch KindOf(err) {
		case KindRecoverable:
			failures++
			h.st.RecordError(CodeLoopOperationFailed, err.Error(), failures)
			if serr := h.store.Save(h.st); serr != nil {
				return h.finish(state.StatusFailed, CodeWriteFailed, serr.Error(), failures), WriteFault(serr)
			}
			if failures > h.cfg.MaxRetries {
				log.Printf("[run] retry budget spent after %d consecutive failures", failures)
				return h.finish(state.StatusInterrupted, CodeRetryExceeded, ErrRetryExceeded.Error(), failures), ErrRetryExceeded
			}
			log.Printf("[run] recoverable fault (attempt %d/%d): %v", failures, h.cfg.MaxRetries+1, err)
			select {
			case <-time.After(h.cfg.RetryWait):
			case <-ctx.Done():
				return h.finish(state.StatusInterrupted, CodeUnexpected, "run canceled: "+ctx.Err().Error(), failures), ctx.Err()
			}
		case KindWrite:
			return h.finish(state.StatusFailed, CodeWriteFailed, err.Error(), failures), err
		default:
			return h.finish(state.StatusFailed, CodeUnexpected, err.Error(), failures), err
		}
	}

	return h.finish(state.StatusCompleted, "", "", 0), nil
}

// iterate is one pass of the state machine: extract, append, dedup, idle
// bookkeeping, scroll, checkpoint at the configured cadence.
func (h *Harvester) iterate(ctx context.Context) error {
	records, err := h.drv.Extract(ctx, h.cfg.Mode)
	if err != nil {
		return Recoverable(err)
	}

	lines := make([]string, 0, len(records))
	for _, r := range records {
		if ln := r.Line(); ln != "" {
			lines = append(lines, ln)
		}
	}

	newUnique := h.acc.Observe(lines)
	if err := h.raw.Append(lines); err != nil {
		return err
	}

	p := &h.st.Progress
	p.TotalLinesSeen += len(lines)
	p.UniqueLinesSeen = h.acc.Size()
	p.LoopCount++

	if newUnique > 0 {
		p.IdleScrollCount = 0
		now := time.Now()
		p.LastNewLineAt = &now
	} else {
		p.IdleScrollCount++
	}

	if err := h.drv.ScrollBy(ctx, h.cfg.ScrollStep); err != nil {
		return Recoverable(err)
	}
	offset, err := h.drv.ScrollOffset(ctx)
	if err != nil {
		return Recoverable(err)
	}
	p.ScrollTop = offset
	h.st.ClearError()
	h.st.Touch()

	interval := h.cfg.CheckpointInterval
	if interval < 1 {
		interval = 1
	}
	if p.LoopCount%interval == 0 {
		if err := h.store.Save(h.st); err != nil {
			return WriteFault(err)
		}
		log.Printf("[checkpoint] loop=%d total=%d unique=%d idle=%d",
			p.LoopCount, p.TotalLinesSeen, p.UniqueLinesSeen, p.IdleScrollCount)
	}
	return nil
}

// finish moves the run to its terminal status and persists it one last time.
// Persisting here is best effort: the terminal condition itself must not be
// masked by a failing disk.
func (h *Harvester) finish(st state.Status, code, message string, retryCount int) state.Status {
	h.st.Progress.UniqueLinesSeen = h.acc.Size()
	if code != "" {
		h.st.RecordError(code, message, retryCount)
	}
	if err := h.st.Transition(st); err != nil {
		log.Printf("[run] %v", err)
	}
	if err := h.store.Save(h.st); err != nil {
		log.Printf("[checkpoint] final save failed: %v", err)
	}
	return h.st.Status
}
