package harvest

import (
	"bufio"
	"io"
)

// Accumulator is the exact-string dedup set for a single run. It is owned by
// the harvest loop and rebuilt on resume by replaying the raw log, so the log
// stays the single source of truth for what has been seen.
type Accumulator struct {
	seen map[string]struct{}
}

func NewAccumulator() *Accumulator {
	return &Accumulator{seen: make(map[string]struct{})}
}

// Observe adds lines to the seen set and reports how many were new. Empty
// lines are ignored; membership is exact-match only.
func (a *Accumulator) Observe(lines []string) int {
	newUnique := 0
	for _, ln := range lines {
		if ln == "" {
			continue
		}
		if _, ok := a.seen[ln]; ok {
			continue
		}
		a.seen[ln] = struct{}{}
		newUnique++
	}
	return newUnique
}

// Size reports the number of distinct lines observed so far.
func (a *Accumulator) Size() int {
	return len(a.seen)
}

// Replay feeds every line from r through Observe and returns the total line
// count, empty lines included. Used on resume to reconstruct the seen set
// from the raw log.
func (a *Accumulator) Replay(r io.Reader) (total int, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		total++
		a.Observe([]string{sc.Text()})
	}
	return total, sc.Err()
}
