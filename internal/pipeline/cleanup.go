package pipeline

import (
	"fmt"

	"github.com/dunamismax/cutout/internal/pixel"
)

const (
	fakeTransparencyMinAverage = 150
	matchedOriginalMinAlpha    = 200
	matchedCurrentMaxAlpha     = 50
)

// RemoveFakeTransparency clears near-white and light-gray pixels: those
// whose channel spread is below tolerance and whose mean is above 150.
// Transparent pixels are left alone.
func RemoveFakeTransparency(buf *pixel.Buffer, tolerance int) error {
	if err := buf.Validate(); err != nil {
		return err
	}

	pix := buf.Pix
	for i := 0; i < len(pix); i += 4 {
		if pix[i+3] == 0 {
			continue
		}
		r, g, b := int(pix[i]), int(pix[i+1]), int(pix[i+2])
		spread := max(r, g, b) - min(r, g, b)
		// mean > 150 without the float division
		if spread < tolerance && r+g+b > 3*fakeTransparencyMinAverage {
			pix[i+3] = 0
		}
	}
	return nil
}

// RemoveMatchedBackground estimates the colour of the background the
// segmenter removed, from pixels that were opaque in original and are
// background in current, and clears every remaining pixel of current whose
// squared RGB distance to it is below tolerance². original is read-only.
// When no background pixel is found current is left untouched.
func RemoveMatchedBackground(original, current *pixel.Buffer, tolerance int) error {
	if err := original.Validate(); err != nil {
		return err
	}
	if err := current.Validate(); err != nil {
		return err
	}
	if !original.SameSize(current) {
		return fmt.Errorf("matched background: original %dx%d does not match current %dx%d",
			original.Width, original.Height, current.Width, current.Height)
	}

	var sumR, sumG, sumB, count int64
	orig, cur := original.Pix, current.Pix
	for i := 0; i < len(cur); i += 4 {
		if orig[i+3] > matchedOriginalMinAlpha && cur[i+3] < matchedCurrentMaxAlpha {
			sumR += int64(orig[i])
			sumG += int64(orig[i+1])
			sumB += int64(orig[i+2])
			count++
		}
	}
	if count == 0 {
		return nil
	}

	avgR := float64(sumR) / float64(count)
	avgG := float64(sumG) / float64(count)
	avgB := float64(sumB) / float64(count)
	limit := float64(tolerance * tolerance)

	for i := 0; i < len(cur); i += 4 {
		if cur[i+3] == 0 {
			continue
		}
		dr := float64(cur[i]) - avgR
		dg := float64(cur[i+1]) - avgG
		db := float64(cur[i+2]) - avgB
		if dr*dr+dg*dg+db*db < limit {
			cur[i+3] = 0
		}
	}
	return nil
}
