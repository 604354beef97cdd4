// Package pixel holds the raw RGBA buffers the pipeline stages operate on.
package pixel

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// ErrEmptyImage is returned for any buffer with zero width or height.
var ErrEmptyImage = errors.New("empty image")

// Buffer is an 8-bit RGBA image with straight (non-premultiplied) alpha.
// len(Pix) is always Width*Height*4.
type Buffer struct {
	Width  int
	Height int
	Pix    []byte
}

func New(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyImage, width, height)
	}
	return &Buffer{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*4),
	}, nil
}

// FromImage copies img into a new straight-alpha buffer.
func FromImage(img image.Image) (*Buffer, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrEmptyImage)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyImage, b.Dx(), b.Dy())
	}
	return FromNRGBA(imaging.Clone(img))
}

// FromNRGBA adopts the pixel slice of img when its layout is already
// contiguous and copies otherwise.
func FromNRGBA(img *image.NRGBA) (*Buffer, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrEmptyImage, w, h)
	}
	if img.Stride == w*4 && b.Min == (image.Point{}) && len(img.Pix) == w*h*4 {
		return &Buffer{Width: w, Height: h, Pix: img.Pix}, nil
	}

	out, err := New(w, h)
	if err != nil {
		return nil, err
	}
	for y := 0; y < h; y++ {
		src := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(out.Pix[y*w*4:(y+1)*w*4], img.Pix[src:src+w*4])
	}
	return out, nil
}

// Image returns an *image.NRGBA view sharing the buffer's memory.
func (b *Buffer) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

func (b *Buffer) Clone() *Buffer {
	pix := make([]byte, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Width: b.Width, Height: b.Height, Pix: pix}
}

// Validate reports ErrEmptyImage for zero-area buffers and an error when the
// pixel slice does not match the dimensions.
func (b *Buffer) Validate() error {
	if b == nil || b.Width <= 0 || b.Height <= 0 {
		w, h := 0, 0
		if b != nil {
			w, h = b.Width, b.Height
		}
		return fmt.Errorf("%w: %dx%d", ErrEmptyImage, w, h)
	}
	if len(b.Pix) != b.Width*b.Height*4 {
		return fmt.Errorf("pixel buffer length %d does not match %dx%dx4", len(b.Pix), b.Width, b.Height)
	}
	return nil
}

func (b *Buffer) Offset(x, y int) int {
	return (y*b.Width + x) * 4
}

func (b *Buffer) SameSize(other *Buffer) bool {
	return b.Width == other.Width && b.Height == other.Height
}
