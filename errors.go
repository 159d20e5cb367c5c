package veil

import (
	"fmt"

	"github.com/quietbloom/veil/internal/bitpack"
	"github.com/quietbloom/veil/internal/frame"
	"github.com/quietbloom/veil/internal/integrity"
	"github.com/quietbloom/veil/internal/pixel"
)

// Error taxonomy. Every failure is fatal to the current operation and
// surfaces as one of these typed results; nothing is silently
// downgraded.
var (
	ErrCapacityExceeded = bitpack.ErrCapacityExceeded
	ErrBitsPerChannel   = bitpack.ErrBitsPerChannel
	ErrMalformedHeader  = frame.ErrMalformedHeader
	ErrLengthMismatch   = frame.ErrLengthMismatch
	ErrCRCMismatch      = frame.ErrCRCMismatch
	ErrSHAMismatch      = integrity.ErrSHAMismatch
	ErrEncoding         = frame.ErrEncoding
	ErrNotTrueColor     = pixel.ErrNotTrueColor
)

// Consent gate names.
const (
	GateBloom    = "bloom"
	GateRemember = "remember"
)

// ConsentRequiredError is returned when an operation runs before its
// gate's steps are all acknowledged. No pixel is touched and no ledger
// entry is written on this path.
type ConsentRequiredError struct {
	Gate string
}

func (e ConsentRequiredError) Error() string {
	return fmt.Sprintf("veil: consent required: %s gate not acknowledged", e.Gate)
}
