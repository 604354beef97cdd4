//go:build !cgo

package pipeline

import (
	"fmt"
	"image"
	"io"
)

func encodeLossyWebP(_ io.Writer, _ image.Image, _ int) error {
	return fmt.Errorf("%w: lossy webp needs a cgo build", ErrLossyUnavailable)
}
