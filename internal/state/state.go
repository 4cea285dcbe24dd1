// Package state holds the persisted RunState: the single source of truth
// for resuming an interrupted harvest.
package state

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is checked on load; a checkpoint with a different version is
// rejected rather than partially trusted.
const SchemaVersion = 1

// Status of a run. Transitions are forward-only: running may move to any
// terminal status, terminal statuses never change again.
type Status string

const (
	StatusRunning     Status = "running"
	StatusCompleted   Status = "completed"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
)

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusInterrupted || s == StatusFailed
}

type Target struct {
	URL               string `json:"url"`
	ContainerSelector string `json:"container_selector"`
	LineSelector      string `json:"line_selector"`
}

type Progress struct {
	LoopCount       int        `json:"loop_count"`
	ScrollTop       int        `json:"scroll_top"`
	TotalLinesSeen  int        `json:"total_lines_seen"`
	UniqueLinesSeen int        `json:"unique_lines_seen"`
	IdleScrollCount int        `json:"idle_scroll_count"`
	LastNewLineAt   *time.Time `json:"last_new_line_at"`
}

type Files struct {
	RawOutput   string `json:"raw_output"`
	FinalOutput string `json:"final_output"`
}

// Runtime snapshots the parameters the run was started with, so a resumed
// run can be reasoned about from the state file alone.
type Runtime struct {
	MaxIdleScrolls   int    `json:"max_idle_scrolls"`
	ScrollStep       int    `json:"scroll_step"`
	ScrollIntervalMS int    `json:"scroll_interval_ms"`
	MaxRetries       int    `json:"max_retries"`
	RetryWaitMS      int    `json:"retry_wait_ms"`
	DedupeMode       string `json:"dedupe_mode"`
}

type Timestamps struct {
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LastError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	At         time.Time `json:"at"`
	RetryCount int       `json:"retry_count"`
}

type RunState struct {
	Version    int        `json:"version"`
	RunID      string     `json:"run_id"`
	Status     Status     `json:"status"`
	Target     Target     `json:"target"`
	Progress   Progress   `json:"progress"`
	Files      Files      `json:"files"`
	Runtime    Runtime    `json:"runtime"`
	Timestamps Timestamps `json:"timestamps"`
	LastError  *LastError `json:"last_error"`
}

// NewRunID builds an opaque, sortable run identifier: UTC stamp plus a short
// random suffix.
func NewRunID() string {
	ts := time.Now().UTC().Format("20060102T150405Z")
	return ts + "_" + uuid.NewString()[:6]
}

// New creates a fresh running state.
func New(target Target, files Files, runtime Runtime) *RunState {
	now := time.Now()
	return &RunState{
		Version:    SchemaVersion,
		RunID:      NewRunID(),
		Status:     StatusRunning,
		Target:     target,
		Files:      files,
		Runtime:    runtime,
		Timestamps: Timestamps{StartedAt: now, UpdatedAt: now},
	}
}

// Transition moves the run to st. Moving out of a terminal status is refused.
func (s *RunState) Transition(st Status) error {
	if s.Status.Terminal() {
		return fmt.Errorf("run %s is already %s, cannot become %s", s.RunID, s.Status, st)
	}
	s.Status = st
	s.Touch()
	return nil
}

// Touch stamps the update time.
func (s *RunState) Touch() {
	s.Timestamps.UpdatedAt = time.Now()
}

// RecordError sets last_error and stamps the update time.
func (s *RunState) RecordError(code, message string, retryCount int) {
	s.LastError = &LastError{
		Code:       code,
		Message:    message,
		At:         time.Now(),
		RetryCount: retryCount,
	}
	s.Touch()
}

// ClearError wipes last_error after a successful iteration.
func (s *RunState) ClearError() {
	s.LastError = nil
}
