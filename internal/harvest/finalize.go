package harvest

import (
	"os"
	"path/filepath"
	"strings"
)

// DedupeExact removes exact duplicates from lines, keeping first-occurrence
// order.
func DedupeExact(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		if _, ok := seen[ln]; ok {
			continue
		}
		seen[ln] = struct{}{}
		out = append(out, ln)
	}
	return out
}

// Finalize reads the raw log, drops empty lines, deduplicates by exact match
// preserving first appearance, and overwrites finalPath with the result. It
// returns the non-empty total and the unique count, and is idempotent over
// an unchanged raw log. It is deliberately independent of the loop so an
// interrupted run's log can still be finalized.
func Finalize(rawPath, finalPath string) (total, unique int, err error) {
	if _, err := os.Stat(rawPath); err != nil {
		return 0, 0, ConfigFault("raw file not found: %s", rawPath)
	}
	all, err := ReadLines(rawPath)
	if err != nil {
		return 0, 0, err
	}

	lines := make([]string, 0, len(all))
	for _, ln := range all {
		if ln != "" {
			lines = append(lines, ln)
		}
	}
	deduped := DedupeExact(lines)

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return 0, 0, WriteFault(err)
	}
	var b strings.Builder
	for _, ln := range deduped {
		b.WriteString(ln)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(finalPath, []byte(b.String()), 0o644); err != nil {
		return 0, 0, WriteFault(err)
	}
	return len(lines), len(deduped), nil
}
