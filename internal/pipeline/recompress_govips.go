//go:build govips && cgo

package pipeline

import (
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

// govipsRecompressor hands JPEG, PNG and WebP to libvips. GIF stays on the
// native palette path.
type govipsRecompressor struct {
	native nativeRecompressor
}

func (r govipsRecompressor) Recompress(intermediate []byte, format Format, quality int) ([]byte, error) {
	if format == FormatGIF {
		return r.native.Recompress(intermediate, format, quality)
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality must be within [1,100], got %d", quality)
	}

	img, err := vips.NewImageFromBuffer(intermediate)
	if err != nil {
		return nil, fmt.Errorf("decode intermediate: %w", err)
	}
	defer img.Close()

	switch format {
	case FormatJPEG:
		params := vips.NewJpegExportParams()
		params.Quality = quality
		params.StripMetadata = true
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case FormatPNG:
		params := vips.NewPngExportParams()
		params.Compression = 9
		params.Quality = quality
		data, _, err := img.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case FormatWEBP:
		params := vips.NewWebpExportParams()
		params.Quality = quality
		params.Lossless = false
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
