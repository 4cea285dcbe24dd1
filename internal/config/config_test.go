package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/uwabamin5/scroll-copy/internal/state"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.URL = "http://example.test"
	cfg.Container = "#panel"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing url", func(c *Config) { c.URL = "" }, "url is required"},
		{"url optional when attaching", func(c *Config) { c.URL = ""; c.ConnectExisting = true }, ""},
		{"url optional on resume", func(c *Config) { c.URL = ""; c.Resume = true }, ""},
		{"missing container", func(c *Config) { c.Container = "" }, "container is required"},
		{"text only without line selector", func(c *Config) { c.TextOnly = true; c.LineSelector = "" }, "line-selector is required"},
		{"bad dedupe mode", func(c *Config) { c.DedupeMode = "fuzzy" }, "unsupported dedupe mode"},
		{"zero idle threshold", func(c *Config) { c.MaxIdleScrolls = 0 }, "max-idle-scrolls"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "max-retries"},
		{"bad debug port", func(c *Config) { c.ConnectExisting = true; c.DebugPort = 0 }, "debug-port"},
	}
	for _, tt := range tests {
		cfg := validConfig()
		tt.mutate(&cfg)
		err := Validate(cfg)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("%s: unexpected error: %v", tt.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: err = %v, want containing %q", tt.name, err, tt.wantErr)
		}
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.URL = ""
	cfg.Container = ""
	cfg.DedupeMode = "fuzzy"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"url", "container", "dedupe"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scrollcopy.yml")
	content := `
url: http://example.test/meeting
container: "#transcript"
max_idle_scrolls: 12
scroll_interval_ms: 250
headless: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := LoadFile(path, &cfg); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.URL != "http://example.test/meeting" || cfg.Container != "#transcript" {
		t.Errorf("target = %q / %q", cfg.URL, cfg.Container)
	}
	if cfg.MaxIdleScrolls != 12 {
		t.Errorf("max_idle_scrolls = %d, want 12", cfg.MaxIdleScrolls)
	}
	if cfg.ScrollInterval() != 250*time.Millisecond {
		t.Errorf("scroll interval = %v, want 250ms", cfg.ScrollInterval())
	}
	if cfg.Headless {
		t.Error("headless = true, file sets false")
	}
	// Untouched fields keep their defaults.
	if cfg.ScrollStep != 400 || cfg.DedupeMode != "exact" {
		t.Errorf("defaults disturbed: step=%d mode=%q", cfg.ScrollStep, cfg.DedupeMode)
	}
}

func TestBackfillFromState(t *testing.T) {
	st := state.New(
		state.Target{
			URL:               "http://example.test/old",
			ContainerSelector: "#saved",
			LineSelector:      `[class^="savedText-"]`,
		},
		state.Files{}, state.Runtime{},
	)

	cfg := Defaults()
	cfg.Resume = true
	cfg.BackfillFromState(st)
	if cfg.URL != "http://example.test/old" {
		t.Errorf("url = %q", cfg.URL)
	}
	if cfg.Container != "#saved" {
		t.Errorf("container = %q", cfg.Container)
	}
	if cfg.LineSelector != `[class^="savedText-"]` {
		t.Errorf("line selector = %q", cfg.LineSelector)
	}

	// Explicit values are not overwritten.
	cfg2 := Defaults()
	cfg2.URL = "http://example.test/new"
	cfg2.Container = "#mine"
	cfg2.BackfillFromState(st)
	if cfg2.URL != "http://example.test/new" || cfg2.Container != "#mine" {
		t.Errorf("explicit values overwritten: %q / %q", cfg2.URL, cfg2.Container)
	}
}
