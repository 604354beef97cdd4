package pipeline

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/dunamismax/cutout/internal/pixel"
	"github.com/lucasb-eyer/go-colorful"
)

var flattenWhite = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// ParseFlattenColor reads a "#RRGGBB" colour. An empty string means white.
func ParseFlattenColor(hex string) (color.NRGBA, error) {
	hex = strings.TrimSpace(hex)
	if hex == "" {
		return flattenWhite, nil
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("parse flatten colour %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// Flatten composites buf over an opaque background (source-over) and
// returns the new, fully opaque buffer.
func Flatten(buf *pixel.Buffer, bg color.NRGBA) (*pixel.Buffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}

	out, err := pixel.New(buf.Width, buf.Height)
	if err != nil {
		return nil, err
	}
	bgR, bgG, bgB := uint32(bg.R), uint32(bg.G), uint32(bg.B)
	src, dst := buf.Pix, out.Pix
	for i := 0; i < len(src); i += 4 {
		a := uint32(src[i+3])
		inv := 255 - a
		dst[i] = uint8((uint32(src[i])*a + bgR*inv + 127) / 255)
		dst[i+1] = uint8((uint32(src[i+1])*a + bgG*inv + 127) / 255)
		dst[i+2] = uint8((uint32(src[i+2])*a + bgB*inv + 127) / 255)
		dst[i+3] = 255
	}
	return out, nil
}
