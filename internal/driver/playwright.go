// Package driver adapts Playwright-driven Chromium to the narrow page
// surface the harvest loop consumes: extract visible entries, scroll, read
// the scroll offset.
package driver

import (
	"context"
	"fmt"
	"log"
	"time"

	pw "github.com/playwright-community/playwright-go"

	"github.com/uwabamin5/scroll-copy/internal/harvest"
)

// Options describe how to reach the target page and which selectors shape an
// entry.
type Options struct {
	URL               string
	ContainerSelector string
	EntrySelector     string
	SpeakerSelector   string
	LineSelector      string
	Headless          bool
	Timeout           time.Duration

	// ConnectExisting attaches over CDP to a browser already running with a
	// debug port instead of launching a fresh one. URL is optional then; the
	// page that is already open is used as-is.
	ConnectExisting bool
	DebugPort       int
}

// Session owns one browser page and the resolved scroll container for the
// duration of a run. It is not safe for concurrent use; the loop calls it
// strictly sequentially.
type Session struct {
	pwr       *pw.Playwright
	browser   pw.Browser
	page      pw.Page
	container pw.Locator
	opts      Options
}

const textOnlyJS = `
(el, lineSelector) => {
  const nodes = [...el.querySelectorAll(lineSelector)];
  return nodes
    .map(n => (n.innerText ?? n.textContent ?? '').trim())
    .filter(Boolean);
}`

const withSpeakerJS = `
(el, config) => {
  const entries = [...el.querySelectorAll(config.entrySelector)];
  return entries.map(entry => {
    const speakerEl = entry.querySelector(config.speakerSelector);
    const textEl = entry.querySelector(config.lineSelector);
    const speaker = (speakerEl?.innerText ?? speakerEl?.textContent ?? '').trim();
    const text = (textEl?.innerText ?? textEl?.textContent ?? '').trim();
    return { speaker, text };
  }).filter(e => e.text);
}`

// Open establishes the browser session, navigates (or attaches), and
// resolves the scroll container. A structurally absent container is a
// container-not-found fault; everything else surfaces as a plain error.
func Open(opts Options) (*Session, error) {
	pwr, err := pw.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	s := &Session{pwr: pwr, opts: opts}
	if err := s.open(); err != nil {
		_ = pwr.Stop()
		return nil, err
	}
	return s, nil
}

func (s *Session) open() error {
	timeout := pw.Float(float64(s.opts.Timeout.Milliseconds()))

	if s.opts.ConnectExisting {
		endpoint := fmt.Sprintf("http://localhost:%d", s.opts.DebugPort)
		browser, err := s.pwr.Chromium.ConnectOverCDP(endpoint)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", endpoint, err)
		}
		s.browser = browser

		contexts := browser.Contexts()
		if len(contexts) == 0 {
			return fmt.Errorf("connected browser has no contexts")
		}
		pages := contexts[0].Pages()
		if len(pages) > 0 {
			s.page = pages[0]
		} else {
			page, err := contexts[0].NewPage()
			if err != nil {
				return fmt.Errorf("open page: %w", err)
			}
			s.page = page
		}
		log.Printf("[driver] attached to existing browser (url=%s)", s.page.URL())

		if s.opts.URL != "" && s.page.URL() != s.opts.URL {
			if _, err := s.page.Goto(s.opts.URL, pw.PageGotoOptions{
				WaitUntil: pw.WaitUntilStateDomcontentloaded,
				Timeout:   timeout,
			}); err != nil {
				return fmt.Errorf("navigate to %s: %w", s.opts.URL, err)
			}
		}
	} else {
		browser, err := s.pwr.Chromium.Launch(pw.BrowserTypeLaunchOptions{
			Headless: pw.Bool(s.opts.Headless),
		})
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		s.browser = browser

		page, err := browser.NewPage()
		if err != nil {
			return fmt.Errorf("open page: %w", err)
		}
		s.page = page

		if _, err := page.Goto(s.opts.URL, pw.PageGotoOptions{
			WaitUntil: pw.WaitUntilStateDomcontentloaded,
			Timeout:   timeout,
		}); err != nil {
			return fmt.Errorf("navigate to %s: %w", s.opts.URL, err)
		}
	}

	container := s.page.Locator(s.opts.ContainerSelector)
	count, err := container.Count()
	if err != nil {
		return fmt.Errorf("probe container %s: %w", s.opts.ContainerSelector, err)
	}
	if count == 0 {
		return harvest.ContainerNotFound(s.opts.ContainerSelector)
	}
	s.container = container.First()
	if err := s.container.WaitFor(pw.LocatorWaitForOptions{
		State:   pw.WaitForSelectorStateVisible,
		Timeout: timeout,
	}); err != nil {
		return fmt.Errorf("wait for container %s: %w", s.opts.ContainerSelector, err)
	}
	return nil
}

// Extract reads the currently rendered entries out of the container.
func (s *Session) Extract(ctx context.Context, mode harvest.ExtractMode) ([]harvest.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if mode == harvest.ModeTextOnly {
		res, err := s.container.Evaluate(textOnlyJS, s.opts.LineSelector)
		if err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
		items, ok := res.([]any)
		if !ok {
			return nil, fmt.Errorf("extract: unexpected result %T", res)
		}
		records := make([]harvest.Record, 0, len(items))
		for _, it := range items {
			if text, ok := it.(string); ok && text != "" {
				records = append(records, harvest.Record{Text: text})
			}
		}
		return records, nil
	}

	res, err := s.container.Evaluate(withSpeakerJS, map[string]any{
		"entrySelector":   s.opts.EntrySelector,
		"speakerSelector": s.opts.SpeakerSelector,
		"lineSelector":    s.opts.LineSelector,
	})
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	items, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("extract: unexpected result %T", res)
	}
	records := make([]harvest.Record, 0, len(items))
	for _, it := range items {
		entry, ok := it.(map[string]any)
		if !ok {
			continue
		}
		text, _ := entry["text"].(string)
		if text == "" {
			continue
		}
		speaker, _ := entry["speaker"].(string)
		records = append(records, harvest.Record{
			Speaker: harvest.NormalizeSpeaker(speaker),
			Text:    text,
		})
	}
	return records, nil
}

// ScrollBy scrolls the container down by step pixels.
func (s *Session) ScrollBy(ctx context.Context, step int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.container.Evaluate(`(el, step) => { el.scrollBy(0, step); }`, step); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// ScrollOffset reads the container's current scrollTop.
func (s *Session) ScrollOffset(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	res, err := s.container.Evaluate(`(el) => el.scrollTop`, nil)
	if err != nil {
		return 0, fmt.Errorf("read scroll offset: %w", err)
	}
	switch v := res.(type) {
	case float64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("read scroll offset: unexpected result %T", res)
	}
}

// Count probes how many elements match selector inside the container.
func (s *Session) Count(selector string) (int, error) {
	return s.container.Locator(selector).Count()
}

// ContainerCount probes the container selector itself, page-wide.
func (s *Session) ContainerCount() (int, error) {
	return s.page.Locator(s.opts.ContainerSelector).Count()
}

// SampleEntry extracts the first entry for diagnostics, nil when none match.
func (s *Session) SampleEntry() (*harvest.Record, error) {
	records, err := s.Extract(context.Background(), harvest.ModeWithSpeaker)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// HTML snapshots the full page markup for offline structure analysis.
func (s *Session) HTML() (string, error) {
	return s.page.Content()
}

// Close tears down the page, browser, and playwright driver.
func (s *Session) Close() error {
	var firstErr error
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			firstErr = err
		}
	}
	if s.pwr != nil {
		if err := s.pwr.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
