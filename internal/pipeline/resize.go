package pipeline

import (
	"math"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/pixel"
)

// ResizeTarget computes the output size for a curW x curH canvas. A
// non-positive target keeps the current size on that axis. With keepRatio
// both axes are scaled by the smaller of the two ratios.
func ResizeTarget(curW, curH, targetW, targetH int, keepRatio bool) (int, int) {
	if targetW <= 0 {
		targetW = curW
	}
	if targetH <= 0 {
		targetH = curH
	}
	if !keepRatio {
		return targetW, targetH
	}

	ratio := math.Min(float64(targetW)/float64(curW), float64(targetH)/float64(curH))
	w := max(1, int(math.Floor(float64(curW)*ratio+0.5)))
	h := max(1, int(math.Floor(float64(curH)*ratio+0.5)))
	return w, h
}

// Resize scales buf with a Lanczos filter. buf is returned as-is when the
// computed size matches.
func Resize(buf *pixel.Buffer, cfg domain.ResizeConfig) (*pixel.Buffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	w, h := ResizeTarget(buf.Width, buf.Height, cfg.Width, cfg.Height, cfg.KeepAspectRatio)
	if w == buf.Width && h == buf.Height {
		return buf, nil
	}
	return pixel.FromNRGBA(imaging.Resize(buf.Image(), w, h, imaging.Lanczos))
}
