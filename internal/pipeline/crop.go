package pipeline

import (
	"fmt"
	"image"

	"github.com/dunamismax/cutout/internal/pixel"
)

// ContentBounds returns the smallest rectangle containing every pixel with
// alpha > 0. ok is false for a fully transparent buffer.
func ContentBounds(buf *pixel.Buffer) (r image.Rectangle, ok bool) {
	minX, minY := buf.Width, buf.Height
	maxX, maxY := -1, -1
	for y := 0; y < buf.Height; y++ {
		row := buf.Pix[y*buf.Width*4 : (y+1)*buf.Width*4]
		for x := 0; x < buf.Width; x++ {
			if row[x*4+3] == 0 {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			maxY = y
		}
	}
	if maxX < 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

// AutoCrop trims the buffer to its visible content and pads it with margin
// transparent pixels on every side. The input is returned unchanged when it
// has no visible content or is already framed that way.
func AutoCrop(buf *pixel.Buffer, margin int) (*pixel.Buffer, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	if margin < 0 {
		return nil, fmt.Errorf("auto crop margin must be >= 0, got %d", margin)
	}

	bounds, ok := ContentBounds(buf)
	if !ok {
		return buf, nil
	}

	cropW, cropH := bounds.Dx(), bounds.Dy()
	newW, newH := cropW+2*margin, cropH+2*margin
	if newW == buf.Width && newH == buf.Height && bounds.Min == (image.Point{}) {
		return buf, nil
	}

	out, err := pixel.New(newW, newH)
	if err != nil {
		return nil, err
	}
	rowBytes := cropW * 4
	for y := 0; y < cropH; y++ {
		src := buf.Offset(bounds.Min.X, bounds.Min.Y+y)
		dst := out.Offset(margin, margin+y)
		copy(out.Pix[dst:dst+rowBytes], buf.Pix[src:src+rowBytes])
	}
	return out, nil
}
