// Package channel owns the role-to-plane multiplexing contract.
//
// Ownership boundary:
// - fixed channel assignment: message->R, metadata->G, integrity->B
// - aggregate capacity verification before any pixel mutation
// - per-channel extraction with independent error reporting
//
// The bits-per-channel setting is recovered at extract time by probing
// the leading header bytes, so decode needs no out-of-band mode flag.
package channel

import (
	"github.com/quietbloom/veil/internal/bitpack"
	"github.com/quietbloom/veil/internal/frame"
	"github.com/quietbloom/veil/internal/integrity"
	"github.com/quietbloom/veil/internal/pixel"
)

// Fixed channel assignment. The mapping is part of the wire contract.
const (
	MessageChannel   = pixel.R
	MetadataChannel  = pixel.G
	IntegrityChannel = pixel.B
)

// Assign builds the message and metadata frames. The integrity frame
// is produced separately, after both are final, because it depends on
// their exact encoded bytes.
func Assign(message, metadata []byte, bpc int, withCRC bool) (r, g frame.Frame) {
	r = frame.New(frame.RoleMessage, message, bpc, withCRC)
	g = frame.New(frame.RoleMetadata, metadata, bpc, withCRC)
	return r, g
}

// Embed writes message, metadata, and the derived integrity record
// into their assigned channels. Every channel's encoded frame is
// verified against capacity before the first pixel is touched, so a
// failed embed leaves the cover byte-identical.
func Embed(img *pixel.Image, message, metadata []byte, bpc int, withCRC bool) (integrity.Record, error) {
	limit, err := bitpack.ChannelCapacity(img.W, img.H, bpc)
	if err != nil {
		return integrity.Record{}, err
	}

	r, g := Assign(message, metadata, bpc, withCRC)
	rec, err := integrity.Compute(r, g)
	if err != nil {
		return integrity.Record{}, err
	}
	recPayload, err := integrity.Marshal(rec)
	if err != nil {
		return integrity.Record{}, err
	}
	b := frame.New(frame.RoleIntegrity, recPayload, bpc, withCRC)

	encoded := make([][]byte, 3)
	for i, f := range []frame.Frame{r, g, b} {
		enc, err := frame.Encode(f)
		if err != nil {
			return integrity.Record{}, err
		}
		if len(enc) > limit {
			return integrity.Record{}, bitpack.ErrCapacityExceeded
		}
		encoded[i] = enc
	}

	for i, ch := range []pixel.Channel{MessageChannel, MetadataChannel, IntegrityChannel} {
		if err := bitpack.Pack(img, ch, encoded[i], bpc); err != nil {
			return integrity.Record{}, err
		}
	}
	return rec, nil
}

// ChannelResult is one channel's extraction outcome. Raw always holds
// the unpacked bytes so the integrity engine can attempt repair even
// when the frame itself failed to decode.
type ChannelResult struct {
	Frame *frame.Frame
	Raw   []byte
	Err   error
}

// Result is a full three-channel extraction. A failure in one channel
// does not suppress the others.
type Result struct {
	BPC       int
	Legacy    bool
	Message   ChannelResult
	Metadata  ChannelResult
	Integrity ChannelResult
	Record    *integrity.Record
}

// Extract pulls frames from all three channels. When no structured
// header is found at either bits-per-channel setting, the cover is
// treated as a legacy header-less embed on the message channel.
func Extract(img *pixel.Image) Result {
	bpc, ok := probeBPC(img)
	if !ok {
		return extractLegacy(img)
	}

	res := Result{BPC: bpc}
	res.Message = extractChannel(img, MessageChannel, frame.RoleMessage, bpc)
	res.Metadata = extractChannel(img, MetadataChannel, frame.RoleMetadata, bpc)
	res.Integrity = extractChannel(img, IntegrityChannel, frame.RoleIntegrity, bpc)

	if res.Integrity.Frame != nil {
		rec, err := integrity.Unmarshal(res.Integrity.Frame.Payload)
		if err != nil {
			res.Integrity.Err = err
		} else {
			res.Record = &rec
		}
	}

	// Repair operates at parity width; widen the raw views so the
	// corrupted side's bytes are available past its broken header.
	if res.Record != nil {
		w := res.Record.ParityWidth()
		res.Message.Raw = widen(img, MessageChannel, res.Message.Raw, w, bpc)
		res.Metadata.Raw = widen(img, MetadataChannel, res.Metadata.Raw, w, bpc)
	}
	return res
}

// probeBPC looks for a valid structured header at 1 then 4 bits per
// channel, consulting each channel in R, G, B order so a corrupted
// message header does not mask the mode. The header's 4bpc flag must
// agree with the setting that revealed it.
func probeBPC(img *pixel.Image) (int, bool) {
	for _, bpc := range []int{1, 4} {
		limit, err := bitpack.ChannelCapacity(img.W, img.H, bpc)
		if err != nil || limit == 0 {
			continue
		}
		n := frame.EncodedSize(0, true)
		if n > limit {
			n = limit
		}
		for _, ch := range []pixel.Channel{MessageChannel, MetadataChannel, IntegrityChannel} {
			hb, err := bitpack.Unpack(img, ch, n, bpc)
			if err != nil {
				continue
			}
			h, err := frame.DecodeHeader(hb)
			if err != nil {
				continue
			}
			if h.Flags.FourBPC() == (bpc == 4) {
				return bpc, true
			}
		}
	}
	return 0, false
}

func extractChannel(img *pixel.Image, ch pixel.Channel, role frame.Role, bpc int) ChannelResult {
	limit, err := bitpack.ChannelCapacity(img.W, img.H, bpc)
	if err != nil {
		return ChannelResult{Err: err}
	}
	n := frame.EncodedSize(0, true)
	if n > limit {
		n = limit
	}
	hb, err := bitpack.Unpack(img, ch, n, bpc)
	if err != nil {
		return ChannelResult{Err: err}
	}
	h, err := frame.DecodeHeader(hb)
	if err != nil {
		return ChannelResult{Raw: hb, Err: err}
	}
	size := frame.EncodedSize(int(h.Length), h.Flags.HasCRC())
	if size > limit {
		return ChannelResult{Raw: hb, Err: frame.ErrLengthMismatch}
	}
	full, err := bitpack.Unpack(img, ch, size, bpc)
	if err != nil {
		return ChannelResult{Raw: hb, Err: err}
	}
	f, err := frame.Decode(full)
	if err != nil {
		return ChannelResult{Raw: full, Err: err}
	}
	f.Header.Role = role
	return ChannelResult{Frame: &f, Raw: full}
}

// extractLegacy reads the header-less first-generation format: a
// null-terminated payload at 1 bit per channel on the message plane.
func extractLegacy(img *pixel.Image) Result {
	res := Result{BPC: 1, Legacy: true}
	limit, err := bitpack.ChannelCapacity(img.W, img.H, 1)
	if err != nil {
		res.Message.Err = err
		return res
	}
	raw, err := bitpack.Unpack(img, MessageChannel, limit, 1)
	if err != nil {
		res.Message.Err = err
		return res
	}
	f, err := frame.DecodeLegacy(raw)
	if err != nil {
		res.Message = ChannelResult{Raw: raw, Err: err}
		return res
	}
	f.Header.Role = frame.RoleMessage
	res.Message = ChannelResult{Frame: &f, Raw: raw}
	return res
}

// widen re-reads a channel's raw bytes out to parity width, capped at
// channel capacity.
func widen(img *pixel.Image, ch pixel.Channel, raw []byte, w, bpc int) []byte {
	if w <= len(raw) {
		return raw
	}
	limit, err := bitpack.ChannelCapacity(img.W, img.H, bpc)
	if err != nil {
		return raw
	}
	if w > limit {
		w = limit
	}
	if w <= len(raw) {
		return raw
	}
	wide, err := bitpack.Unpack(img, ch, w, bpc)
	if err != nil {
		return raw
	}
	return wide
}
