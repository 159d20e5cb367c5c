package ledger

import "sync"

// MemoryLedger keeps entries in process memory. Used by tests and by
// callers that audit elsewhere.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// Append records one immutable entry.
func (l *MemoryLedger) Append(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

// Query returns matching entries in append order.
func (l *MemoryLedger) Query(f Filter) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len reports the number of entries appended so far.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

var _ Ledger = (*MemoryLedger)(nil)
