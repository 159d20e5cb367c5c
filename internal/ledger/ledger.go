// Package ledger owns the append-only audit record of successful
// operations.
//
// Ownership boundary:
// - the Entry shape and the append/query interface
// - a JSONL file implementation (one record per line, O_APPEND)
// - an in-memory implementation for tests and embedding
//
// The ledger is injected into a session, never a package singleton.
// Failed operations (missing consent, unrecoverable integrity) never
// produce an entry.
package ledger

import (
	"time"

	"github.com/quietbloom/veil/internal/ritual"
)

// Action names the operation class an entry records.
type Action string

const (
	ActionEncode Action = "encode"
	ActionDecode Action = "decode"
)

// Entry is one immutable audit record.
type Entry struct {
	Timestamp       time.Time           `json:"timestamp"`
	Action          Action              `json:"action"`
	Caller          string              `json:"caller"`
	FileRef         string              `json:"file_ref"`
	MessageSHA256   string              `json:"message_sha256"`
	IntegrityStatus string              `json:"integrity_status"`
	Ritual          []ritual.StepStatus `json:"ritual"`
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	Action Action
	Caller string
	Since  time.Time
}

func (f Filter) matches(e Entry) bool {
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.Caller != "" && e.Caller != f.Caller {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Ledger is the append/query seam. Append must be atomic at the
// storage layer; Query is a read-only scan that must not block
// concurrent appenders.
type Ledger interface {
	Append(e Entry) error
	Query(f Filter) ([]Entry, error)
}
