// Package segment provides the saliency segmenters the pipeline can be
// configured with.
package segment

import (
	"context"
	"image"

	"github.com/dunamismax/cutout/internal/pixel"
)

// Alpha uses the source alpha channel as the mask. It suits inputs that were
// already cut out upstream and only need the cleanup stages.
type Alpha struct{}

func (Alpha) Segment(ctx context.Context, img image.Image) (pixel.Mask, error) {
	if err := ctx.Err(); err != nil {
		return pixel.Mask{}, err
	}
	buf, err := pixel.FromImage(img)
	if err != nil {
		return pixel.Mask{}, err
	}
	return pixel.AlphaMask(buf), nil
}

// hasTransparency reports whether any pixel of buf is less than opaque.
func hasTransparency(buf *pixel.Buffer) bool {
	for i := 3; i < len(buf.Pix); i += 4 {
		if buf.Pix[i] < 255 {
			return true
		}
	}
	return false
}
