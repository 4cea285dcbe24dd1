package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks a fully assembled run configuration. Errors are collected
// so the user sees every problem at once.
func Validate(cfg Config) error {
	var errs []string

	if !cfg.ConnectExisting && !cfg.Resume && cfg.URL == "" {
		errs = append(errs, "url is required (optional with -connect-existing or -resume)")
	}
	if cfg.Container == "" {
		errs = append(errs, "container is required (backfilled from the state file with -resume)")
	}
	if cfg.TextOnly && cfg.LineSelector == "" {
		errs = append(errs, "line-selector is required in text-only mode")
	}
	if cfg.DedupeMode != "exact" {
		errs = append(errs, fmt.Sprintf("unsupported dedupe mode: %q", cfg.DedupeMode))
	}
	if cfg.MaxIdleScrolls < 1 {
		errs = append(errs, "max-idle-scrolls must be >= 1")
	}
	if cfg.ScrollStep < 1 {
		errs = append(errs, "scroll-step must be >= 1")
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, "max-retries must be >= 0")
	}
	if cfg.CheckpointInterval < 1 {
		errs = append(errs, "checkpoint-interval must be >= 1")
	}
	if cfg.ScrollIntervalMS < 0 || cfg.RetryWaitMS < 0 {
		errs = append(errs, "scroll-interval-ms and retry-wait-ms must be >= 0")
	}
	if cfg.TimeoutMS < 1 {
		errs = append(errs, "timeout-ms must be >= 1")
	}
	if cfg.ConnectExisting && (cfg.DebugPort < 1 || cfg.DebugPort > 65535) {
		errs = append(errs, "debug-port must be 1..65535")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}
