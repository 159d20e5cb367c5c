// Package bitpack owns raw bit transport against a pixel grid.
//
// Ownership boundary:
// - capacity accounting for 1 and 4 bits-per-channel modes
// - MSB-first bit read/write over one color plane, row-major
//
// Framing and channel roles live one layer up in internal/frame and
// internal/channel.
package bitpack

import (
	"errors"

	"github.com/quietbloom/veil/internal/pixel"
)

var (
	ErrBitsPerChannel   = errors.New("bitpack: bits per channel must be 1 or 4")
	ErrCapacityExceeded = errors.New("bitpack: payload exceeds cover capacity")
	ErrShortCover       = errors.New("bitpack: cover too small for requested read")
)

// Capacity returns the total payload bytes embeddable across all three
// channels of a w x h cover: floor(w*h*3*bpc/8).
func Capacity(w, h, bpc int) (int, error) {
	if bpc != 1 && bpc != 4 {
		return 0, ErrBitsPerChannel
	}
	return w * h * 3 * bpc / 8, nil
}

// ChannelCapacity returns the payload bytes one channel can carry:
// floor(w*h*bpc/8). Frames are budgeted per channel against this.
func ChannelCapacity(w, h, bpc int) (int, error) {
	if bpc != 1 && bpc != 4 {
		return 0, ErrBitsPerChannel
	}
	return w * h * bpc / 8, nil
}

// Pack writes data into the low-order bpc bits of the chosen channel,
// scanning pixels row-major and consuming data bits MSB-first. The
// capacity check completes before any pixel is touched, so a failed
// call leaves the cover byte-identical.
func Pack(img *pixel.Image, ch pixel.Channel, data []byte, bpc int) error {
	limit, err := ChannelCapacity(img.W, img.H, bpc)
	if err != nil {
		return err
	}
	if len(data) > limit {
		return ErrCapacityExceeded
	}

	mask := uint8(1<<bpc - 1)
	total := len(data) * 8
	bit := 0
	for i := 0; bit < total; i++ {
		var v uint8
		for j := 0; j < bpc; j++ {
			v <<= 1
			v |= (data[bit/8] >> (7 - bit%8)) & 1
			bit++
		}
		idx := i*3 + int(ch)
		img.Pix[idx] = img.Pix[idx]&^mask | v
	}
	return nil
}

// Unpack reads n bytes back out of the chosen channel, inverse scan
// and assembly order of Pack.
func Unpack(img *pixel.Image, ch pixel.Channel, n, bpc int) ([]byte, error) {
	limit, err := ChannelCapacity(img.W, img.H, bpc)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > limit {
		return nil, ErrShortCover
	}

	mask := uint8(1<<bpc - 1)
	out := make([]byte, n)
	total := n * 8
	bit := 0
	for i := 0; bit < total; i++ {
		v := img.Pix[i*3+int(ch)] & mask
		for j := bpc - 1; j >= 0; j-- {
			out[bit/8] |= ((v >> j) & 1) << (7 - bit%8)
			bit++
		}
	}
	return out, nil
}
