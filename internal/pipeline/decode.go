package pipeline

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/cutout/internal/pixel"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Decode turns encoded image bytes into a straight-alpha buffer, applying
// EXIF orientation. The returned MIME type is declaredMIME when it names the
// same format as the sniffed container and the sniffed type otherwise.
func Decode(data []byte, declaredMIME string) (*pixel.Buffer, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: no input bytes", pixel.ErrEmptyImage)
	}

	cfg, sniffed, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("sniff source image: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, "", fmt.Errorf("%w: %dx%d", pixel.ErrEmptyImage, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("decode source image: %w", err)
	}

	buf, err := pixel.FromImage(img)
	if err != nil {
		return nil, "", err
	}

	return buf, sourceMIME(declaredMIME, "image/"+sniffed), nil
}

func sourceMIME(declared, sniffed string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" {
		return sniffed
	}
	d, dOK := FormatFromMIME(declared)
	s, sOK := FormatFromMIME(sniffed)
	if dOK && sOK && d == s {
		return declared
	}
	return sniffed
}
