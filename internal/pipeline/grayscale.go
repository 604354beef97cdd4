package pipeline

import (
	"math"

	"github.com/dunamismax/cutout/internal/pixel"
)

// BlendGrayscale moves every visible pixel toward its channel mean by
// intensity percent. Transparent pixels stay bit-identical.
func BlendGrayscale(buf *pixel.Buffer, intensity int) error {
	if err := buf.Validate(); err != nil {
		return err
	}
	if intensity <= 0 {
		return nil
	}

	factor := float64(intensity) / 100
	keep := 1 - factor
	pix := buf.Pix
	for i := 0; i < len(pix); i += 4 {
		if pix[i+3] == 0 {
			continue
		}
		r, g, b := float64(pix[i]), float64(pix[i+1]), float64(pix[i+2])
		avg := (r + g + b) / 3
		pix[i] = clampRoundEven(r*keep + avg*factor)
		pix[i+1] = clampRoundEven(g*keep + avg*factor)
		pix[i+2] = clampRoundEven(b*keep + avg*factor)
	}
	return nil
}

// clampRoundEven stores v the way a clamped 8-bit canvas array does:
// round half to even, then clamp to [0,255].
func clampRoundEven(v float64) uint8 {
	v = math.RoundToEven(v)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
