package segment

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/cutout/internal/pixel"
	"github.com/lucasb-eyer/go-colorful"
)

var ErrNoUniformBackdrop = errors.New("image border is not a uniform backdrop")

const (
	defaultBackdropThreshold = 12.0
	defaultBackdropSoftness  = 10.0
	defaultBackdropBlur      = 1.0
	// Share of border samples that must sit within the threshold of the
	// estimated backdrop colour.
	minBackdropCoverage = 0.6
	maxBorderSamples    = 4096
)

// Backdrop segments product-style shots on a plain studio backdrop. The
// backdrop colour is the per-channel median of the image border; pixels are
// scored by their CIE76 distance to it.
type Backdrop struct {
	// Threshold is the Lab distance at or below which a pixel is background.
	Threshold float64
	// Softness is the width of the ramp from background to foreground.
	Softness float64
	// BlurSigma smooths the mask edge. Zero disables smoothing.
	BlurSigma float64
}

func NewBackdrop() Backdrop {
	return Backdrop{
		Threshold: defaultBackdropThreshold,
		Softness:  defaultBackdropSoftness,
		BlurSigma: defaultBackdropBlur,
	}
}

func (b Backdrop) Segment(ctx context.Context, img image.Image) (pixel.Mask, error) {
	buf, err := pixel.FromImage(img)
	if err != nil {
		return pixel.Mask{}, err
	}

	bg, coverage := estimateBackdrop(buf, b.Threshold)
	if coverage < minBackdropCoverage {
		return pixel.Mask{}, fmt.Errorf("%w: %.0f%% of the border matches", ErrNoUniformBackdrop, coverage*100)
	}
	if err := ctx.Err(); err != nil {
		return pixel.Mask{}, err
	}

	gray := image.NewGray(image.Rect(0, 0, buf.Width, buf.Height))
	scores := make(map[[3]byte]uint8)
	for i := 0; i < buf.Width*buf.Height; i++ {
		o := i * 4
		if buf.Pix[o+3] == 0 {
			continue
		}
		key := [3]byte{buf.Pix[o], buf.Pix[o+1], buf.Pix[o+2]}
		v, ok := scores[key]
		if !ok {
			v = b.score(labDistance(key, bg))
			scores[key] = v
		}
		gray.Pix[i] = v
	}

	data := gray.Pix
	if b.BlurSigma > 0 {
		blurred := imaging.Blur(gray, b.BlurSigma)
		data = make([]byte, buf.Width*buf.Height)
		for i := range data {
			data[i] = blurred.Pix[i*4]
		}
	}
	return pixel.Mask{Width: buf.Width, Height: buf.Height, Channels: 1, Data: data}, nil
}

func (b Backdrop) score(d float64) uint8 {
	switch {
	case d <= b.Threshold:
		return 0
	case b.Softness <= 0 || d >= b.Threshold+b.Softness:
		return 255
	default:
		return uint8((d-b.Threshold)/b.Softness*255 + 0.5)
	}
}

// estimateBackdrop returns the median border colour and the share of
// border samples within threshold of it.
func estimateBackdrop(buf *pixel.Buffer, threshold float64) ([3]byte, float64) {
	samples := borderSamples(buf)

	var hist [3][256]int
	for _, s := range samples {
		hist[0][s[0]]++
		hist[1][s[1]]++
		hist[2][s[2]]++
	}
	var bg [3]byte
	for c := range hist {
		bg[c] = histogramMedian(hist[c][:], len(samples))
	}

	matched := 0
	for _, s := range samples {
		if labDistance(s, bg) <= threshold {
			matched++
		}
	}
	return bg, float64(matched) / float64(len(samples))
}

func borderSamples(buf *pixel.Buffer) [][3]byte {
	w, h := buf.Width, buf.Height
	perimeter := 2*w + 2*h
	step := max(1, perimeter/maxBorderSamples)

	out := make([][3]byte, 0, min(perimeter, maxBorderSamples)+4)
	add := func(x, y int) {
		o := buf.Offset(x, y)
		out = append(out, [3]byte{buf.Pix[o], buf.Pix[o+1], buf.Pix[o+2]})
	}
	for x := 0; x < w; x += step {
		add(x, 0)
		add(x, h-1)
	}
	for y := 0; y < h; y += step {
		add(0, y)
		add(w-1, y)
	}
	return out
}

func histogramMedian(hist []int, total int) byte {
	half := (total + 1) / 2
	seen := 0
	for v, n := range hist {
		seen += n
		if seen >= half {
			return byte(v)
		}
	}
	return 255
}

// labDistance is the CIE76 distance on the usual 0-100 L* scale.
func labDistance(a, b [3]byte) float64 {
	ca := colorful.Color{R: float64(a[0]) / 255, G: float64(a[1]) / 255, B: float64(a[2]) / 255}
	cb := colorful.Color{R: float64(b[0]) / 255, G: float64(b[1]) / 255, B: float64(b[2]) / 255}
	return ca.DistanceLab(cb) * 100
}
