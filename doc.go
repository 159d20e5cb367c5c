// Package veil is the steganographic transport core: it hides and
// recovers structured payloads in the least-significant bits of a
// true-color image's pixel channels.
//
// Ownership boundary:
// - per-channel framing, capacity accounting, integrity, parity repair
// - consent gating and the append-only audit ledger
//
// Image file I/O, CLI parsing, and display surfaces are external
// collaborators: callers hand in a decoded pixel grid and take the
// mutated grid back.
package veil
