package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/pixel"
)

const (
	defaultFgThreshold = 240
	defaultBgThreshold = 5
	defaultErodeRadius = 5
)

var ErrInvalidMaskFormat = errors.New("invalid mask format")

// MaskParams are the mask post-processing parameters after the detail-mode
// overrides have been resolved.
type MaskParams struct {
	UseAlpha    bool
	FgThreshold int
	BgThreshold int
	ErodeRadius int
}

// EffectiveMaskParams resolves cfg. Outside detail mode the fixed defaults
// always apply; in detail mode each override can be switched on separately.
func EffectiveMaskParams(cfg domain.BackgroundRemovalConfig) MaskParams {
	p := MaskParams{
		UseAlpha:    true,
		FgThreshold: defaultFgThreshold,
		BgThreshold: defaultBgThreshold,
		ErodeRadius: defaultErodeRadius,
	}
	if !cfg.DetailMode {
		return p
	}

	p.UseAlpha = cfg.AlphaMatting
	if cfg.FgThreshold.Enabled {
		p.FgThreshold = cfg.FgThreshold.Value
	}
	if cfg.BgThreshold.Enabled {
		p.BgThreshold = cfg.BgThreshold.Value
	}
	if cfg.ErodeRadius.Enabled {
		p.ErodeRadius = cfg.ErodeRadius.Value
	}
	return p
}

// NormalizeMask converts a segmenter mask into an RGBA buffer. Single-channel
// values are replicated into all four channels so alpha carries saliency.
func NormalizeMask(m pixel.Mask) (*pixel.Buffer, error) {
	if m.Width == 0 || m.Height == 0 {
		return nil, fmt.Errorf("%w: mask %dx%d", pixel.ErrEmptyImage, m.Width, m.Height)
	}
	if m.Width < 0 || m.Height < 0 {
		return nil, fmt.Errorf("%w: negative dimensions %dx%d", ErrInvalidMaskFormat, m.Width, m.Height)
	}

	n := m.Width * m.Height
	switch m.Channels {
	case 1:
		if len(m.Data) != n {
			return nil, fmt.Errorf("%w: 1-channel mask has %d bytes, want %d", ErrInvalidMaskFormat, len(m.Data), n)
		}
		buf, err := pixel.New(m.Width, m.Height)
		if err != nil {
			return nil, err
		}
		for i, v := range m.Data {
			o := i * 4
			buf.Pix[o] = v
			buf.Pix[o+1] = v
			buf.Pix[o+2] = v
			buf.Pix[o+3] = v
		}
		return buf, nil
	case 4:
		if len(m.Data) != n*4 {
			return nil, fmt.Errorf("%w: 4-channel mask has %d bytes, want %d", ErrInvalidMaskFormat, len(m.Data), n*4)
		}
		pix := make([]byte, len(m.Data))
		copy(pix, m.Data)
		return &pixel.Buffer{Width: m.Width, Height: m.Height, Pix: pix}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrInvalidMaskFormat, m.Channels)
	}
}

// PostProcessMask thresholds and erodes mask in place. Both steps only run
// on the alpha path.
func PostProcessMask(mask *pixel.Buffer, cfg domain.BackgroundRemovalConfig) error {
	if err := mask.Validate(); err != nil {
		return err
	}

	p := EffectiveMaskParams(cfg)
	if !p.UseAlpha {
		return nil
	}
	if err := ApplyThreshold(mask, p.FgThreshold, p.BgThreshold); err != nil {
		return err
	}
	return Erode(mask, p.ErodeRadius)
}

// ApplyThreshold snaps alpha at or above fg to 255 and at or below bg to 0,
// rescales the band in between linearly, and paints RGB white.
func ApplyThreshold(mask *pixel.Buffer, fg, bg int) error {
	if err := mask.Validate(); err != nil {
		return err
	}

	span := float64(fg - bg)
	pix := mask.Pix
	for i := 0; i < len(pix); i += 4 {
		a := int(pix[i+3])
		switch {
		case a >= fg:
			pix[i+3] = 255
		case a <= bg:
			pix[i+3] = 0
		case span > 0:
			pix[i+3] = uint8(math.Floor(float64(a-bg)/span*255 + 0.5))
		}
		pix[i], pix[i+1], pix[i+2] = 255, 255, 255
	}
	return nil
}

// Erode applies a square min-filter of the given radius to the alpha
// channel. Windows are read from a snapshot taken before the pass, and
// positions outside the buffer count as alpha 0.
func Erode(mask *pixel.Buffer, radius int) error {
	if err := mask.Validate(); err != nil {
		return err
	}
	if radius <= 0 {
		return nil
	}

	w, h := mask.Width, mask.Height
	snapshot := make([]byte, w*h)
	for i := range snapshot {
		snapshot[i] = mask.Pix[i*4+3]
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if snapshot[y*w+x] == 0 {
				continue
			}
			if x-radius < 0 || y-radius < 0 || x+radius >= w || y+radius >= h {
				mask.Pix[(y*w+x)*4+3] = 0
				continue
			}

			lowest := byte(255)
			for ny := y - radius; ny <= y+radius && lowest > 0; ny++ {
				row := snapshot[ny*w : (ny+1)*w]
				for nx := x - radius; nx <= x+radius; nx++ {
					if row[nx] < lowest {
						lowest = row[nx]
					}
				}
			}
			mask.Pix[(y*w+x)*4+3] = lowest
		}
	}
	return nil
}
