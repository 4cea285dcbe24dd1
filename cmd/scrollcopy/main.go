// scrollcopy incrementally harvests text out of a virtualized-scroll web
// view (a live transcript panel, typically) into a deduplicated, ordered
// text file, with checkpointed, resumable progress.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uwabamin5/scroll-copy/internal/config"
	"github.com/uwabamin5/scroll-copy/internal/driver"
	"github.com/uwabamin5/scroll-copy/internal/harvest"
	"github.com/uwabamin5/scroll-copy/internal/history"
	"github.com/uwabamin5/scroll-copy/internal/inspect"
	"github.com/uwabamin5/scroll-copy/internal/state"
)

// Exit codes are part of the contract with invoking shells: stable and
// distinct per terminal condition.
const (
	exitOK            = 0
	exitConfigError   = 10
	exitSelectorError = 20
	exitRetryExceeded = 30
	exitWriteError    = 40
	exitUnexpected    = 50
	exitInterrupted   = 60
)

func main() {
	log.SetFlags(0)
	os.Exit(dispatch(os.Args[1:]))
}

func dispatch(args []string) int {
	if len(args) == 0 {
		usage()
		return exitConfigError
	}
	switch args[0] {
	case "run":
		return runCmd(args[1:])
	case "finalize":
		return finalizeCmd(args[1:])
	case "doctor":
		return doctorCmd(args[1:])
	case "history":
		return historyCmd(args[1:])
	case "help", "-h", "--help":
		usage()
		return exitOK
	default:
		log.Printf("[config error] unknown command: %s", args[0])
		usage()
		return exitConfigError
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: scrollcopy <command> [flags]

commands:
  run       harvest a scrolling view into a raw log and final output
  finalize  deduplicate an existing raw log into the final output
  doctor    probe selectors against the live page and suggest candidates
  history   list recent runs from the run registry

run 'scrollcopy <command> -h' for flags.
`)
}

func runCmd(args []string) int {
	defaults := config.Defaults()
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "optional YAML config file")
	url := fs.String("url", "", "page URL (optional with -connect-existing or -resume)")
	container := fs.String("container", "", "scroll container selector")
	lineSelector := fs.String("line-selector", defaults.LineSelector, "text element selector")
	entrySelector := fs.String("entry-selector", defaults.EntrySelector, "entry parent selector")
	speakerSelector := fs.String("speaker-selector", defaults.SpeakerSelector, "speaker label selector")
	textOnly := fs.Bool("text-only", false, "harvest text only, no speaker labels")
	outputRaw := fs.String("output-raw", defaults.OutputRaw, "append-only raw log path")
	outputFinal := fs.String("output-final", defaults.OutputFinal, "deduplicated output path")
	stateFile := fs.String("state-file", defaults.StateFile, "checkpoint path")
	historyDB := fs.String("history-db", defaults.HistoryDB, "run registry database path")
	resume := fs.Bool("resume", false, "resume from the checkpoint")
	maxIdleScrolls := fs.Int("max-idle-scrolls", defaults.MaxIdleScrolls, "consecutive idle scrolls before finishing")
	scrollStep := fs.Int("scroll-step", defaults.ScrollStep, "pixels per scroll")
	scrollIntervalMS := fs.Int("scroll-interval-ms", defaults.ScrollIntervalMS, "delay between iterations, in milliseconds")
	checkpointInterval := fs.Int("checkpoint-interval", defaults.CheckpointInterval, "iterations between checkpoints")
	maxRetries := fs.Int("max-retries", defaults.MaxRetries, "consecutive recoverable faults tolerated")
	retryWaitMS := fs.Int("retry-wait-ms", defaults.RetryWaitMS, "backoff between retries, in milliseconds")
	timeoutMS := fs.Int("timeout-ms", defaults.TimeoutMS, "navigation and wait timeout, in milliseconds")
	dedupeMode := fs.String("dedupe-mode", defaults.DedupeMode, "dedupe mode (exact)")
	headless := fs.Bool("headless", defaults.Headless, "run the browser headless")
	doFinalize := fs.Bool("finalize", defaults.Finalize, "finalize after a completed run")
	connectExisting := fs.Bool("connect-existing", false, "attach to a browser running with a debug port")
	debugPort := fs.Int("debug-port", defaults.DebugPort, "CDP debug port for -connect-existing")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	cfg := defaults
	if *cfgPath != "" {
		if err := config.LoadFile(*cfgPath, &cfg); err != nil {
			log.Printf("[config error] %v", err)
			return exitConfigError
		}
	}
	// Explicit flags beat the config file; unset flags keep file values.
	override := map[string]func(){
		"url":                 func() { cfg.URL = *url },
		"container":           func() { cfg.Container = *container },
		"line-selector":       func() { cfg.LineSelector = *lineSelector },
		"entry-selector":      func() { cfg.EntrySelector = *entrySelector },
		"speaker-selector":    func() { cfg.SpeakerSelector = *speakerSelector },
		"text-only":           func() { cfg.TextOnly = *textOnly },
		"output-raw":          func() { cfg.OutputRaw = *outputRaw },
		"output-final":        func() { cfg.OutputFinal = *outputFinal },
		"state-file":          func() { cfg.StateFile = *stateFile },
		"history-db":          func() { cfg.HistoryDB = *historyDB },
		"max-idle-scrolls":    func() { cfg.MaxIdleScrolls = *maxIdleScrolls },
		"scroll-step":         func() { cfg.ScrollStep = *scrollStep },
		"scroll-interval-ms":  func() { cfg.ScrollIntervalMS = *scrollIntervalMS },
		"checkpoint-interval": func() { cfg.CheckpointInterval = *checkpointInterval },
		"max-retries":         func() { cfg.MaxRetries = *maxRetries },
		"retry-wait-ms":       func() { cfg.RetryWaitMS = *retryWaitMS },
		"timeout-ms":          func() { cfg.TimeoutMS = *timeoutMS },
		"dedupe-mode":         func() { cfg.DedupeMode = *dedupeMode },
		"headless":            func() { cfg.Headless = *headless },
		"finalize":            func() { cfg.Finalize = *doFinalize },
		"connect-existing":    func() { cfg.ConnectExisting = *connectExisting },
		"debug-port":          func() { cfg.DebugPort = *debugPort },
	}
	fs.Visit(func(f *flag.Flag) {
		if fn, ok := override[f.Name]; ok {
			fn()
		}
	})
	cfg.Resume = *resume

	store := state.NewCheckpointStore(cfg.StateFile)
	var prior *state.RunState
	if cfg.Resume {
		if !store.Exists() {
			log.Printf("[config error] state file not found: %s", cfg.StateFile)
			return exitConfigError
		}
		var err error
		prior, err = store.Load()
		if err != nil {
			log.Printf("[config error] %v", err)
			return exitConfigError
		}
		cfg.BackfillFromState(prior)
	}
	if err := config.Validate(cfg); err != nil {
		log.Printf("[config error] %v", err)
		return exitConfigError
	}

	lock, err := state.AcquireRunLock(cfg.StateFile)
	if err != nil {
		log.Printf("[config error] %v", err)
		return exitConfigError
	}
	defer lock.Release()

	if !cfg.Resume {
		if _, err := os.Stat(cfg.OutputRaw); err == nil {
			if err := os.Remove(cfg.OutputRaw); err != nil {
				log.Printf("[write error] %v", err)
				return exitWriteError
			}
			log.Printf("[init] removed existing raw output: %s", cfg.OutputRaw)
		}
	}

	st := state.New(
		state.Target{URL: cfg.URL, ContainerSelector: cfg.Container, LineSelector: cfg.LineSelector},
		state.Files{RawOutput: cfg.OutputRaw, FinalOutput: cfg.OutputFinal},
		state.Runtime{
			MaxIdleScrolls:   cfg.MaxIdleScrolls,
			ScrollStep:       cfg.ScrollStep,
			ScrollIntervalMS: cfg.ScrollIntervalMS,
			MaxRetries:       cfg.MaxRetries,
			RetryWaitMS:      cfg.RetryWaitMS,
			DedupeMode:       cfg.DedupeMode,
		},
	)

	acc := harvest.NewAccumulator()
	if cfg.Resume && prior != nil {
		st.RunID = prior.RunID
		st.Timestamps.StartedAt = prior.Timestamps.StartedAt
		st.Progress.LoopCount = prior.Progress.LoopCount
		st.Progress.IdleScrollCount = prior.Progress.IdleScrollCount

		// The raw log, not the checkpoint, is the source of truth for what
		// has been seen: replay it to rebuild the dedup set and counters.
		if f, err := os.Open(cfg.OutputRaw); err == nil {
			total, rerr := acc.Replay(f)
			f.Close()
			if rerr != nil {
				log.Printf("[config error] replay raw log: %v", rerr)
				return exitConfigError
			}
			st.Progress.TotalLinesSeen = total
			st.Progress.UniqueLinesSeen = acc.Size()
		}
		log.Printf("[resume] run=%s loop=%d total=%d unique=%d",
			st.RunID, st.Progress.LoopCount, st.Progress.TotalLinesSeen, st.Progress.UniqueLinesSeen)
	}

	if err := store.Save(st); err != nil {
		log.Printf("[write error] %v", err)
		return exitWriteError
	}

	raw, err := harvest.OpenRawLog(cfg.OutputRaw)
	if err != nil {
		log.Printf("[write error] %v", err)
		return exitWriteError
	}
	defer raw.Close()

	sess, err := driver.Open(driver.Options{
		URL:               cfg.URL,
		ContainerSelector: cfg.Container,
		EntrySelector:     cfg.EntrySelector,
		SpeakerSelector:   cfg.SpeakerSelector,
		LineSelector:      cfg.LineSelector,
		Headless:          cfg.Headless,
		Timeout:           cfg.Timeout(),
		ConnectExisting:   cfg.ConnectExisting,
		DebugPort:         cfg.DebugPort,
	})
	if err != nil {
		st.RecordError(harvest.CodeOf(err), err.Error(), 0)
		_ = st.Transition(state.StatusFailed)
		if serr := store.Save(st); serr != nil {
			log.Printf("[write error] %v", serr)
		}
		recordHistory(cfg.HistoryDB, st)
		if harvest.KindOf(err) == harvest.KindContainerNotFound {
			log.Printf("[selector error] %v", err)
			return exitSelectorError
		}
		log.Printf("[unexpected error] %v", err)
		return exitUnexpected
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode := harvest.ModeWithSpeaker
	if cfg.TextOnly {
		mode = harvest.ModeTextOnly
	}
	h := harvest.New(harvest.LoopConfig{
		Mode:               mode,
		MaxIdleScrolls:     cfg.MaxIdleScrolls,
		ScrollStep:         cfg.ScrollStep,
		ScrollInterval:     cfg.ScrollInterval(),
		CheckpointInterval: cfg.CheckpointInterval,
		MaxRetries:         cfg.MaxRetries,
		RetryWait:          cfg.RetryWait(),
	}, sess, raw, acc, st, store)

	status, runErr := h.Run(ctx)
	recordHistory(cfg.HistoryDB, st)

	switch status {
	case state.StatusCompleted:
		if cfg.Finalize {
			total, unique, err := harvest.Finalize(cfg.OutputRaw, cfg.OutputFinal)
			if err != nil {
				if harvest.KindOf(err) == harvest.KindWrite {
					log.Printf("[write error] %v", err)
					return exitWriteError
				}
				log.Printf("[unexpected error] finalize failed: %v", err)
				return exitUnexpected
			}
			log.Printf("[finalize] total=%d, unique=%d, output=%s", total, unique, cfg.OutputFinal)
		}
		log.Printf("[run] completed")
		return exitOK
	case state.StatusInterrupted:
		if errors.Is(runErr, harvest.ErrRetryExceeded) {
			log.Printf("[run] %v", runErr)
			return exitRetryExceeded
		}
		log.Printf("[run] interrupted: %v", runErr)
		return exitInterrupted
	default:
		if harvest.KindOf(runErr) == harvest.KindWrite {
			log.Printf("[write error] %v", runErr)
			return exitWriteError
		}
		log.Printf("[unexpected error] %v", runErr)
		return exitUnexpected
	}
}

// recordHistory is best effort: a broken registry must not change the run's
// outcome.
func recordHistory(path string, st *state.RunState) {
	if path == "" {
		return
	}
	reg, err := history.Open(path)
	if err != nil {
		log.Printf("[history] open %s: %v", path, err)
		return
	}
	defer reg.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := reg.Record(ctx, st); err != nil {
		log.Printf("[history] record run %s: %v", st.RunID, err)
	}
}

func finalizeCmd(args []string) int {
	defaults := config.Defaults()
	fs := flag.NewFlagSet("finalize", flag.ContinueOnError)
	outputRaw := fs.String("output-raw", defaults.OutputRaw, "raw log to read")
	outputFinal := fs.String("output-final", defaults.OutputFinal, "deduplicated output path")
	dedupeMode := fs.String("dedupe-mode", defaults.DedupeMode, "dedupe mode (exact)")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	if *dedupeMode != "exact" {
		log.Printf("[config error] unsupported dedupe mode: %q", *dedupeMode)
		return exitConfigError
	}

	total, unique, err := harvest.Finalize(*outputRaw, *outputFinal)
	if err != nil {
		switch harvest.KindOf(err) {
		case harvest.KindConfig:
			log.Printf("[config error] %v", err)
			return exitConfigError
		case harvest.KindWrite:
			log.Printf("[write error] %v", err)
			return exitWriteError
		default:
			log.Printf("[unexpected error] %v", err)
			return exitUnexpected
		}
	}
	log.Printf("[finalize] total=%d, unique=%d, output=%s", total, unique, *outputFinal)
	return exitOK
}

func doctorCmd(args []string) int {
	defaults := config.Defaults()
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	url := fs.String("url", "", "page URL (optional with -connect-existing)")
	container := fs.String("container", "", "scroll container selector")
	lineSelector := fs.String("line-selector", defaults.LineSelector, "text element selector")
	entrySelector := fs.String("entry-selector", defaults.EntrySelector, "entry parent selector")
	speakerSelector := fs.String("speaker-selector", defaults.SpeakerSelector, "speaker label selector")
	textOnly := fs.Bool("text-only", false, "probe text-only extraction")
	headless := fs.Bool("headless", defaults.Headless, "run the browser headless")
	timeoutMS := fs.Int("timeout-ms", defaults.TimeoutMS, "navigation and wait timeout, in milliseconds")
	connectExisting := fs.Bool("connect-existing", false, "attach to a browser running with a debug port")
	debugPort := fs.Int("debug-port", defaults.DebugPort, "CDP debug port for -connect-existing")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	if *container == "" {
		log.Printf("[config error] container is required")
		return exitConfigError
	}
	if *url == "" && !*connectExisting {
		log.Printf("[config error] url is required (optional with -connect-existing)")
		return exitConfigError
	}

	sess, err := driver.Open(driver.Options{
		URL:               *url,
		ContainerSelector: *container,
		EntrySelector:     *entrySelector,
		SpeakerSelector:   *speakerSelector,
		LineSelector:      *lineSelector,
		Headless:          *headless,
		Timeout:           time.Duration(*timeoutMS) * time.Millisecond,
		ConnectExisting:   *connectExisting,
		DebugPort:         *debugPort,
	})
	if err != nil {
		if harvest.KindOf(err) == harvest.KindContainerNotFound {
			printJSON(inspect.Report{ContainerFound: false, ContainerSelector: *container})
			return exitSelectorError
		}
		log.Printf("[unexpected error] doctor failed: %v", err)
		return exitUnexpected
	}
	defer sess.Close()

	report, err := inspect.Diagnose(context.Background(), sess, inspect.Selectors{
		Container: *container,
		Entry:     *entrySelector,
		Speaker:   *speakerSelector,
		Line:      *lineSelector,
		TextOnly:  *textOnly,
	})
	if err != nil {
		log.Printf("[unexpected error] doctor failed: %v", err)
		return exitUnexpected
	}
	printJSON(report)
	if !report.ContainerFound {
		return exitSelectorError
	}
	return exitOK
}

func historyCmd(args []string) int {
	defaults := config.Defaults()
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	historyDB := fs.String("history-db", defaults.HistoryDB, "run registry database path")
	limit := fs.Int("limit", 20, "max runs to list")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	reg, err := history.Open(*historyDB)
	if err != nil {
		log.Printf("[unexpected error] open %s: %v", *historyDB, err)
		return exitUnexpected
	}
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runs, err := reg.Recent(ctx, *limit)
	if err != nil {
		log.Printf("[unexpected error] %v", err)
		return exitUnexpected
	}
	for _, r := range runs {
		line := fmt.Sprintf("%s  %-11s  loops=%-5d total=%-7d unique=%-7d %s",
			r.FinishedAt.Format(time.RFC3339), r.Status, r.LoopCount, r.TotalLines, r.UniqueLines, r.URL)
		if r.ErrorCode != "" {
			line += "  " + r.ErrorCode
		}
		fmt.Println(line)
	}
	return exitOK
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("[unexpected error] %v", err)
		return
	}
	fmt.Println(string(b))
}
