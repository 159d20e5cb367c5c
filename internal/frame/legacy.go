package frame

import "bytes"

// EncodeLegacy serializes the header-less first-generation format: raw
// payload bytes terminated by a single NUL. The payload itself may not
// contain NUL, which is why the format was retired.
func EncodeLegacy(payload []byte) ([]byte, error) {
	if bytes.IndexByte(payload, 0) >= 0 {
		return nil, ErrEncoding
	}
	out := make([]byte, len(payload)+1)
	copy(out, payload)
	return out, nil
}

// DecodeLegacy reads a header-less payload up to the first NUL. No
// header metadata, no integrity material.
func DecodeLegacy(b []byte) (Frame, error) {
	end := bytes.IndexByte(b, 0)
	if end < 0 {
		return Frame{}, ErrEncoding
	}
	payload := make([]byte, end)
	copy(payload, b[:end])
	return Frame{Kind: KindLegacy, Payload: payload}, nil
}
