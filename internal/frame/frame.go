// Package frame owns the per-channel wire format.
//
// Ownership boundary:
// - header layout: magic(4B ASCII) | flags(1B) | length(4B BE) |
//   crc32(4B BE, present iff flag bit0)
// - deterministic encode, strict decode, flag bitset validation
// - legacy null-terminated fallback for header-less embeds
//
// Channel roles are an in-memory concern of the multiplexer; the wire
// header carries no role byte.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
)

// Magic identifies a structured frame. Four ASCII bytes.
const Magic = "VEIL"

const (
	baseHeaderLen = 9
	crcHeaderLen  = 13
)

var (
	ErrMalformedHeader = errors.New("frame: malformed header")
	ErrLengthMismatch  = errors.New("frame: declared length does not match payload")
	ErrCRCMismatch     = errors.New("frame: payload crc32 mismatch")
	ErrEncoding        = errors.New("frame: malformed transport encoding")
)

// Kind tags the frame generation a decode resolved to.
type Kind uint8

const (
	// KindHeader is the structured single-frame format.
	KindHeader Kind = iota
	// KindLegacy is the header-less null-terminated format.
	KindLegacy
)

// Role is the logical purpose of the channel a frame travels in.
// Assigned by the multiplexer, never serialized.
type Role uint8

const (
	RoleMessage Role = iota
	RoleMetadata
	RoleIntegrity
)

// Header is the in-memory frame header.
type Header struct {
	Role   Role
	Flags  Flags
	Length uint32
	CRC32  uint32
}

// Frame is one header + payload unit embedded in one color channel.
type Frame struct {
	Kind    Kind
	Header  Header
	Payload []byte
}

// New builds a structured frame for a role. CRC32 is computed over the
// payload only when withCRC is set; bpc stamps the 4bpc flag bit.
func New(role Role, payload []byte, bpc int, withCRC bool) Frame {
	var flags Flags
	if withCRC {
		flags |= FlagCRC
	}
	if bpc == 4 {
		flags |= Flag4BPC
	}
	h := Header{Role: role, Flags: flags, Length: uint32(len(payload))}
	if withCRC {
		h.CRC32 = crc32.ChecksumIEEE(payload)
	}
	return Frame{Kind: KindHeader, Header: h, Payload: payload}
}

// HeaderLen returns the serialized header size for a flag set.
func HeaderLen(flags Flags) int {
	if flags.HasCRC() {
		return crcHeaderLen
	}
	return baseHeaderLen
}

// EncodedSize returns the full serialized frame size.
func EncodedSize(payloadLen int, withCRC bool) int {
	if withCRC {
		return crcHeaderLen + payloadLen
	}
	return baseHeaderLen + payloadLen
}

// Encode serializes a frame. Field order is fixed, so identical inputs
// always produce byte-identical output.
func Encode(f Frame) ([]byte, error) {
	if f.Kind == KindLegacy {
		return EncodeLegacy(f.Payload)
	}
	if err := f.Header.Flags.Validate(); err != nil {
		return nil, err
	}
	if int(f.Header.Length) != len(f.Payload) {
		return nil, ErrLengthMismatch
	}

	buf := make([]byte, 0, EncodedSize(len(f.Payload), f.Header.Flags.HasCRC()))
	buf = append(buf, Magic...)
	buf = append(buf, byte(f.Header.Flags))
	buf = binary.BigEndian.AppendUint32(buf, f.Header.Length)
	if f.Header.Flags.HasCRC() {
		buf = binary.BigEndian.AppendUint32(buf, f.Header.CRC32)
	}
	buf = append(buf, f.Payload...)
	return buf, nil
}

// DecodeHeader parses the leading header bytes without touching the
// payload. b must hold at least the base header; the CRC word is read
// only when the flag byte demands it.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < baseHeaderLen {
		return Header{}, ErrMalformedHeader
	}
	if !bytes.Equal(b[0:4], []byte(Magic)) {
		return Header{}, ErrMalformedHeader
	}
	flags := Flags(b[4])
	if err := flags.Validate(); err != nil {
		return Header{}, err
	}
	h := Header{Flags: flags, Length: binary.BigEndian.Uint32(b[5:9])}
	if flags.HasCRC() {
		if len(b) < crcHeaderLen {
			return Header{}, ErrMalformedHeader
		}
		h.CRC32 = binary.BigEndian.Uint32(b[9:13])
	}
	return h, nil
}

// IsStructured reports whether b leads with the frame magic.
func IsStructured(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[0:4], []byte(Magic))
}

// Decode parses one complete frame from b. The declared length must
// account for every remaining byte; a set CRC flag aborts decode on
// mismatch rather than returning a provisional payload. Bytes without
// the magic fall back to the legacy null-terminated reader.
func Decode(b []byte) (Frame, error) {
	if !IsStructured(b) {
		return DecodeLegacy(b)
	}
	h, err := DecodeHeader(b)
	if err != nil {
		return Frame{}, err
	}
	off := HeaderLen(h.Flags)
	if len(b)-off != int(h.Length) {
		return Frame{}, ErrLengthMismatch
	}
	payload := make([]byte, h.Length)
	copy(payload, b[off:])
	if h.Flags.HasCRC() {
		if crc32.ChecksumIEEE(payload) != h.CRC32 {
			return Frame{}, ErrCRCMismatch
		}
	}
	return Frame{Kind: KindHeader, Header: h, Payload: payload}, nil
}
