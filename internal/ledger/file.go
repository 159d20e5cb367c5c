package ledger

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// FileLedger appends one JSON record per line at a fixed path. Each
// record is written with a single O_APPEND write, which keeps appends
// atomic across independent processes for line-sized records. Queries
// open their own read handle and never take the append lock.
type FileLedger struct {
	path string
	mu   sync.Mutex
}

// NewFileLedger returns a ledger backed by path. The file is created
// on first append.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Path returns the backing file path.
func (l *FileLedger) Path() string { return l.path }

// Append writes one immutable record.
func (l *FileLedger) Append(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("ledger: marshal entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("ledger: append: %w", err)
	}
	return nil
}

// Query scans the file snapshot visible at open time. A missing file
// is an empty ledger, not an error.
func (l *FileLedger) Query(filter Filter) ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: open for query: %w", err)
	}
	defer f.Close()

	var out []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("ledger: corrupt record: %w", err)
		}
		if filter.matches(e) {
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan: %w", err)
	}
	return out, nil
}

var _ Ledger = (*FileLedger)(nil)
