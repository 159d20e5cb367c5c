// Package pixel owns the decoded true-color grid contract.
//
// Ownership boundary:
// - in-memory RGB triple buffer and channel addressing
// - strict conversion from stdlib images (reject, never quantize)
//
// Image file I/O lives with the caller; this package never reads or
// writes files.
package pixel

import (
	"errors"
	"image"
	"image/color"
)

var ErrNotTrueColor = errors.New("pixel: cover is not true-color")

// Channel addresses one of the three color planes of a grid.
type Channel int

const (
	R Channel = 0
	G Channel = 1
	B Channel = 2
)

// Image is a decoded true-color pixel grid. Pix holds row-major RGB
// triples, 3*W*H bytes. The buffer is exclusively owned by the caller
// for the duration of one embed/extract call.
type Image struct {
	W   int
	H   int
	Pix []uint8
}

// New returns a zeroed w x h grid.
func New(w, h int) *Image {
	return &Image{W: w, H: h, Pix: make([]uint8, 3*w*h)}
}

// Clone returns an independent copy of the grid.
func (p *Image) Clone() *Image {
	out := &Image{W: p.W, H: p.H, Pix: make([]uint8, len(p.Pix))}
	copy(out.Pix, p.Pix)
	return out
}

// At returns the RGB triple at (x, y).
func (p *Image) At(x, y int) (r, g, b uint8) {
	i := 3 * (y*p.W + x)
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2]
}

// Set writes the RGB triple at (x, y).
func (p *Image) Set(x, y int, r, g, b uint8) {
	i := 3 * (y*p.W + x)
	p.Pix[i], p.Pix[i+1], p.Pix[i+2] = r, g, b
}

// Equal reports whether two grids are byte-identical.
func (p *Image) Equal(q *Image) bool {
	if p.W != q.W || p.H != q.H || len(p.Pix) != len(q.Pix) {
		return false
	}
	for i := range p.Pix {
		if p.Pix[i] != q.Pix[i] {
			return false
		}
	}
	return true
}

// FromImage converts a stdlib image into a grid. Paletted images and
// images with non-opaque alpha are rejected with ErrNotTrueColor;
// callers that want a lossy conversion use FromImageLossy.
func FromImage(img image.Image) (*Image, error) {
	if _, ok := img.ColorModel().(color.Palette); ok {
		return nil, ErrNotTrueColor
	}
	bounds := img.Bounds()
	out := New(bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			if a != 0xFFFF {
				return nil, ErrNotTrueColor
			}
			out.Set(x-bounds.Min.X, y-bounds.Min.Y, uint8(r>>8), uint8(g>>8), uint8(b>>8))
		}
	}
	return out, nil
}

// FromImageLossy converts any stdlib image, flattening alpha onto
// black and quantizing palettes. The conversion is explicit opt-in.
func FromImageLossy(img image.Image) *Image {
	bounds := img.Bounds()
	out := New(bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out.Set(x-bounds.Min.X, y-bounds.Min.Y, uint8(r>>8), uint8(g>>8), uint8(b>>8))
		}
	}
	return out
}
