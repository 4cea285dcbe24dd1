// Package inspect implements the selector pre-flight: it probes the
// configured selectors against the live page and analyzes a snapshot of the
// markup to propose candidates when they drift.
package inspect

import (
	"context"
	"strings"

	"github.com/uwabamin5/scroll-copy/internal/harvest"

	"golang.org/x/sync/errgroup"
)

// Prober is the slice of the driver session the doctor needs.
type Prober interface {
	ContainerCount() (int, error)
	Count(selector string) (int, error)
	SampleEntry() (*harvest.Record, error)
	HTML() (string, error)
}

// Selectors under diagnosis.
type Selectors struct {
	Container string
	Entry     string
	Speaker   string
	Line      string
	TextOnly  bool
}

// Report is the doctor's JSON output.
type Report struct {
	ContainerFound    bool            `json:"containerFound"`
	ContainerSelector string          `json:"containerSelector"`
	Mode              string          `json:"mode"`
	LineCount         int             `json:"lineCount,omitempty"`
	LineSelector      string          `json:"lineSelector,omitempty"`
	EntryCount        int             `json:"entryCount,omitempty"`
	SpeakerCount      int             `json:"speakerCount,omitempty"`
	TextCount         int             `json:"textCount,omitempty"`
	EntrySelector     string          `json:"entrySelector,omitempty"`
	SpeakerSelector   string          `json:"speakerSelector,omitempty"`
	SampleEntry       *harvest.Record `json:"sampleEntry,omitempty"`
	Candidates        *Analysis       `json:"candidates,omitempty"`
}

// Diagnose probes the configured selectors. When the container exists the
// per-selector counts are gathered concurrently; the page session itself is
// only read, never mutated.
func Diagnose(ctx context.Context, p Prober, sel Selectors) (*Report, error) {
	report := &Report{
		ContainerSelector: sel.Container,
	}
	if sel.TextOnly {
		report.Mode = "text_only"
	} else {
		report.Mode = "with_speaker"
	}

	n, err := p.ContainerCount()
	if err != nil {
		return nil, err
	}
	report.ContainerFound = n > 0
	if !report.ContainerFound {
		return report, nil
	}

	if sel.TextOnly {
		count, err := p.Count(sel.Line)
		if err != nil {
			return nil, err
		}
		report.LineCount = count
		report.LineSelector = sel.Line
		return report, nil
	}

	report.EntrySelector = sel.Entry
	report.SpeakerSelector = sel.Speaker
	report.LineSelector = sel.Line

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		count, err := p.Count(sel.Entry)
		report.EntryCount = count
		return err
	})
	g.Go(func() error {
		count, err := p.Count(sel.Speaker)
		report.SpeakerCount = count
		return err
	})
	g.Go(func() error {
		count, err := p.Count(sel.Line)
		report.TextCount = count
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if report.EntryCount > 0 {
		sample, err := p.SampleEntry()
		if err != nil {
			return nil, err
		}
		report.SampleEntry = sample
	}

	html, err := p.HTML()
	if err != nil {
		return nil, err
	}
	analysis, err := AnalyzeHTML(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	report.Candidates = analysis
	return report, nil
}
