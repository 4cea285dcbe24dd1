// Package config assembles the run configuration from defaults, an optional
// YAML file, command-line flags, and on resume the saved checkpoint.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/uwabamin5/scroll-copy/internal/state"
)

const (
	DefaultLineSelector    = `[class^="entryText-"]`
	DefaultEntrySelector   = `[class^="baseEntry-"]`
	DefaultSpeakerSelector = `[id^="timestampSpeakerAriaLabel-"]`
)

type Config struct {
	URL             string `yaml:"url"`
	Container       string `yaml:"container"`
	LineSelector    string `yaml:"line_selector"`
	EntrySelector   string `yaml:"entry_selector"`
	SpeakerSelector string `yaml:"speaker_selector"`
	TextOnly        bool   `yaml:"text_only"`

	OutputRaw   string `yaml:"output_raw"`
	OutputFinal string `yaml:"output_final"`
	StateFile   string `yaml:"state_file"`
	HistoryDB   string `yaml:"history_db"`

	Resume bool `yaml:"-"`

	MaxIdleScrolls     int `yaml:"max_idle_scrolls"`
	ScrollStep         int `yaml:"scroll_step"`
	ScrollIntervalMS   int `yaml:"scroll_interval_ms"`
	CheckpointInterval int `yaml:"checkpoint_interval"`
	MaxRetries         int `yaml:"max_retries"`
	RetryWaitMS        int `yaml:"retry_wait_ms"`
	TimeoutMS          int `yaml:"timeout_ms"`

	DedupeMode string `yaml:"dedupe_mode"`
	Headless   bool   `yaml:"headless"`
	Finalize   bool   `yaml:"finalize"`

	ConnectExisting bool `yaml:"connect_existing"`
	DebugPort       int  `yaml:"debug_port"`
}

func Defaults() Config {
	return Config{
		LineSelector:       DefaultLineSelector,
		EntrySelector:      DefaultEntrySelector,
		SpeakerSelector:    DefaultSpeakerSelector,
		OutputRaw:          "./raw_output.txt",
		OutputFinal:        "./final_output.txt",
		StateFile:          "./state.json",
		HistoryDB:          "./runs.db",
		MaxIdleScrolls:     8,
		ScrollStep:         400,
		ScrollIntervalMS:   600,
		CheckpointInterval: 5,
		MaxRetries:         3,
		RetryWaitMS:        1000,
		TimeoutMS:          30000,
		DedupeMode:         "exact",
		Headless:           true,
		Finalize:           true,
		DebugPort:          9222,
	}
}

func (c Config) ScrollInterval() time.Duration {
	return time.Duration(c.ScrollIntervalMS) * time.Millisecond
}

func (c Config) RetryWait() time.Duration {
	return time.Duration(c.RetryWaitMS) * time.Millisecond
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// LoadFile overlays the YAML file at path onto cfg in place.
func LoadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, cfg)
}

// BackfillFromState fills target fields left empty on the command line from
// a loaded checkpoint, so `run -resume` needs no repeated selectors.
func (c *Config) BackfillFromState(st *state.RunState) {
	if c.URL == "" {
		c.URL = st.Target.URL
	}
	if c.Container == "" {
		c.Container = st.Target.ContainerSelector
	}
	if c.LineSelector == "" || c.LineSelector == DefaultLineSelector {
		if st.Target.LineSelector != "" {
			c.LineSelector = st.Target.LineSelector
		}
	}
}
