// Package integrity owns the cross-channel integrity contract.
//
// Ownership boundary:
// - CRC32 / SHA-256 / XOR-parity computation at encode time
// - verification and single-channel parity repair at decode time
//
// The parity scheme corrects at most one corrupted channel out of two.
// Simultaneous corruption of both channels, or corruption patterns
// that happen to preserve the parity, are beyond its ceiling.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/quietbloom/veil/internal/frame"
)

var ErrSHAMismatch = errors.New("integrity: sha-256 mismatch after parity repair")

// Status classifies the outcome of decode-time verification.
type Status string

const (
	StatusOK        Status = "ok"
	StatusRecovered Status = "recovered_with_parity"
	StatusFailedCRC Status = "failed_crc"
	StatusFailedSHA Status = "failed_sha256"
	// StatusLegacy marks a header-less decode that predates the
	// integrity channel. Nothing to verify, nothing to repair.
	StatusLegacy Status = "legacy"
)

// Record is the integrity channel payload. Computed once at encode
// time from the final message/metadata frame bytes; field order is
// fixed so the serialized form is deterministic.
type Record struct {
	MessageCRC32       string `json:"message_crc32"`
	MetadataCRC32      string `json:"metadata_crc32"`
	MessageSHA256      string `json:"message_sha256"`
	Parity             string `json:"parity"`
	CorrectedByteCount int    `json:"corrected_byte_count"`
	Status             Status `json:"status"`
}

// Outcome is the result of decode-time verification and repair.
// Message and Metadata are populated only on StatusOK and
// StatusRecovered; failure states never carry payload bytes out.
type Outcome struct {
	Status         Status
	Message        []byte
	Metadata       []byte
	CorrectedBytes int
	Record         Record
}

func crcHex(b []byte) string {
	return fmt.Sprintf("%08X", crc32.ChecksumIEEE(b))
}

func shaHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SHA256Hex renders the payload digest the way records store it.
func SHA256Hex(b []byte) string { return shaHex(b) }

// xorPad XORs a and b byte-wise, zero-padding the shorter side.
func xorPad(a, b []byte) []byte {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := range out {
		var x, y byte
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		out[i] = x ^ y
	}
	return out
}

// Compute builds the integrity record for finalized message and
// metadata frames. Parity covers the encoded frame bytes, rendered as
// fixed-width hex (two digits per byte).
func Compute(r, g frame.Frame) (Record, error) {
	rEnc, err := frame.Encode(r)
	if err != nil {
		return Record{}, err
	}
	gEnc, err := frame.Encode(g)
	if err != nil {
		return Record{}, err
	}
	return Record{
		MessageCRC32:  crcHex(r.Payload),
		MetadataCRC32: crcHex(g.Payload),
		MessageSHA256: shaHex(r.Payload),
		Parity:        strings.ToUpper(hex.EncodeToString(xorPad(rEnc, gEnc))),
		Status:        StatusOK,
	}, nil
}

// Marshal serializes a record for the integrity channel payload.
func Marshal(rec Record) ([]byte, error) {
	return json.Marshal(rec)
}

// Unmarshal parses an integrity channel payload.
func Unmarshal(b []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("integrity: parse record: %w", err)
	}
	return rec, nil
}

// parityBytes decodes the fixed-width hex parity, or nil if absent or
// malformed.
func (r Record) parityBytes() []byte {
	b, err := hex.DecodeString(strings.ToLower(r.Parity))
	if err != nil {
		return nil
	}
	return b
}

// ParityWidth returns the byte width the parity covers.
func (r Record) ParityWidth() int {
	return len(r.Parity) / 2
}

// hammingBytes counts positions where a and b differ, zero-padding the
// shorter side.
func hammingBytes(a, b []byte) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	d := 0
	for i := 0; i < n; i++ {
		var x, y byte
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			d++
		}
	}
	return d
}

// VerifyAndRepair checks the extracted message (r) and metadata (g)
// channels against the recorded integrity material and attempts a
// single-channel parity reconstruction when exactly one side fails.
//
// rRaw and gRaw are the raw unpacked channel bytes at parity width;
// rFrame/gFrame are nil when the channel failed frame decode.
func VerifyAndRepair(rRaw, gRaw []byte, rFrame, gFrame *frame.Frame, rec Record) Outcome {
	rOK := rFrame != nil && crcHex(rFrame.Payload) == rec.MessageCRC32
	gOK := gFrame != nil && crcHex(gFrame.Payload) == rec.MetadataCRC32

	out := Outcome{Record: rec}

	switch {
	case rOK && gOK:
		out.Status = StatusOK
		out.Message = rFrame.Payload
		out.Metadata = gFrame.Payload
	case rOK != gOK:
		parity := rec.parityBytes()
		if parity == nil {
			out.Status = StatusFailedCRC
			break
		}
		if rOK {
			repairMetadata(&out, gRaw, rFrame, parity, rec)
		} else {
			repairMessage(&out, rRaw, gFrame, parity, rec)
		}
	default:
		out.Status = StatusFailedCRC
	}

	out.Record.Status = out.Status
	out.Record.CorrectedByteCount = out.CorrectedBytes
	return out
}

// repairMessage reconstructs the message channel as
// metadata.encoded_bytes XOR parity. The intact side is re-encoded and
// zero-padded to parity width, mirroring how the parity was computed;
// raw channel bytes past the frame end are cover noise and must not
// feed the reconstruction.
func repairMessage(out *Outcome, rRaw []byte, gFrame *frame.Frame, parity []byte, rec Record) {
	gEnc, err := frame.Encode(*gFrame)
	if err != nil {
		out.Status = StatusFailedCRC
		return
	}
	repaired := xorPad(pad(gEnc, len(parity)), parity)
	f, size, ok := decodeRepaired(repaired)
	if !ok || crcHex(f.Payload) != rec.MessageCRC32 {
		out.Status = StatusFailedCRC
		return
	}
	if shaHex(f.Payload) != rec.MessageSHA256 {
		out.Status = StatusFailedSHA
		return
	}
	out.Status = StatusRecovered
	out.CorrectedBytes = hammingBytes(pad(rRaw, size), repaired[:size])
	out.Message = f.Payload
	out.Metadata = gFrame.Payload
}

// repairMetadata reconstructs the metadata channel; the message side
// is intact, so its SHA-256 is checked as-is.
func repairMetadata(out *Outcome, gRaw []byte, rFrame *frame.Frame, parity []byte, rec Record) {
	rEnc, err := frame.Encode(*rFrame)
	if err != nil {
		out.Status = StatusFailedCRC
		return
	}
	repaired := xorPad(pad(rEnc, len(parity)), parity)
	f, size, ok := decodeRepaired(repaired)
	if !ok || crcHex(f.Payload) != rec.MetadataCRC32 {
		out.Status = StatusFailedCRC
		return
	}
	if shaHex(rFrame.Payload) != rec.MessageSHA256 {
		out.Status = StatusFailedSHA
		return
	}
	out.Status = StatusRecovered
	out.CorrectedBytes = hammingBytes(pad(gRaw, size), repaired[:size])
	out.Message = rFrame.Payload
	out.Metadata = f.Payload
}

// decodeRepaired parses a parity-width reconstruction. The repaired
// buffer is zero-padded past the true frame end, so the frame is
// trimmed to its declared size before the strict decode. The size is
// returned so the corrected-byte count can stop at the frame end:
// beyond it the raw plane holds cover noise, not corruption.
func decodeRepaired(b []byte) (*frame.Frame, int, bool) {
	h, err := frame.DecodeHeader(b)
	if err != nil {
		return nil, 0, false
	}
	size := frame.EncodedSize(int(h.Length), h.Flags.HasCRC())
	if size > len(b) {
		return nil, 0, false
	}
	f, err := frame.Decode(b[:size])
	if err != nil {
		return nil, 0, false
	}
	return &f, size, true
}

func pad(b []byte, n int) []byte {
	if len(b) >= n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}
