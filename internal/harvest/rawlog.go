package harvest

import (
	"bufio"
	"os"
	"path/filepath"
)

// RawLog is the append-only record of everything extracted, duplicates
// included. It is never rewritten during a run, which is what makes resume
// safe: replaying it reconstructs the dedup set exactly.
type RawLog struct {
	path string
	f    *os.File
}

// OpenRawLog opens path for appending, creating parent directories as
// needed.
func OpenRawLog(path string) (*RawLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, WriteFault(err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, WriteFault(err)
	}
	return &RawLog{path: path, f: f}, nil
}

func (l *RawLog) Path() string { return l.path }

// Append writes one line per entry. A short write surfaces as a write fault;
// nothing already in the file is ever touched.
func (l *RawLog) Append(lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	w := bufio.NewWriter(l.f)
	for _, ln := range lines {
		if _, err := w.WriteString(ln + "\n"); err != nil {
			return WriteFault(err)
		}
	}
	if err := w.Flush(); err != nil {
		return WriteFault(err)
	}
	return nil
}

func (l *RawLog) Close() error {
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// ReadLines returns every line of the file at path. A missing file reads as
// empty, matching fresh-start semantics.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out, sc.Err()
}
