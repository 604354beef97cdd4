package pipeline

import (
	"image"

	"github.com/dunamismax/cutout/internal/pixel"
	"golang.org/x/image/draw"
)

// Composite returns a copy of src whose alpha is multiplied by the mask
// alpha, the "destination-in" operation. The mask is resampled to the size
// of src first; RGB of src is never touched.
func Composite(src, mask *pixel.Buffer) (*pixel.Buffer, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if err := mask.Validate(); err != nil {
		return nil, err
	}

	alpha := maskAlpha(mask, src.Width, src.Height)
	out := src.Clone()
	for i, m := range alpha {
		o := i*4 + 3
		out.Pix[o] = uint8((uint32(out.Pix[o])*uint32(m) + 127) / 255)
	}
	return out, nil
}

// maskAlpha extracts the alpha plane of mask at w x h.
func maskAlpha(mask *pixel.Buffer, w, h int) []byte {
	alpha := make([]byte, w*h)
	if mask.Width == w && mask.Height == h {
		for i := range alpha {
			alpha[i] = mask.Pix[i*4+3]
		}
		return alpha
	}

	// The scaled RGBA is premultiplied, but its alpha channel is exactly the
	// interpolated mask alpha.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.BiLinear.Scale(dst, dst.Bounds(), mask.Image(), image.Rect(0, 0, mask.Width, mask.Height), draw.Src, nil)
	for i := range alpha {
		alpha[i] = dst.Pix[i*4+3]
	}
	return alpha
}
