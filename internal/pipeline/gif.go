package pipeline

import (
	"image"
	"image/color"
	"image/gif"
	"io"

	"golang.org/x/image/draw"
)

// A full GIF palette: one transparent slot, a 6x6x6 colour cube and a 39
// step gray ramp.
const (
	gifLosslessLevels = 6
	gifLosslessGrays  = 39
)

func encodeGIF(w io.Writer, img image.Image, levels, grays int) error {
	pal := gifPalette(levels, grays)
	dst := image.NewPaletted(img.Bounds(), pal)
	draw.FloydSteinberg.Draw(dst, dst.Bounds(), img, img.Bounds().Min)
	return gif.Encode(w, dst, &gif.Options{NumColors: len(pal)})
}

func gifPalette(levels, grays int) color.Palette {
	pal := make(color.Palette, 0, 1+levels*levels*levels+grays)
	pal = append(pal, color.Transparent)

	step := func(i, n int) uint8 {
		if n <= 1 {
			return 0
		}
		return uint8(i * 255 / (n - 1))
	}
	for r := 0; r < levels; r++ {
		for g := 0; g < levels; g++ {
			for b := 0; b < levels; b++ {
				pal = append(pal, color.RGBA{R: step(r, levels), G: step(g, levels), B: step(b, levels), A: 255})
			}
		}
	}
	for i := 1; i <= grays; i++ {
		v := uint8(i * 255 / (grays + 1))
		pal = append(pal, color.RGBA{R: v, G: v, B: v, A: 255})
	}
	return pal
}

// gifLevelsForQuality shrinks the palette with quality: 2 levels per
// channel at the bottom end, the full cube at 100.
func gifLevelsForQuality(quality int) (levels, grays int) {
	quality = max(1, min(100, quality))
	levels = 2 + quality*(gifLosslessLevels-2)/100
	grays = quality * gifLosslessGrays / 100
	return levels, grays
}
