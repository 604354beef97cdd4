package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/gen2brain/jpegli"
)

// nativeRecompressor re-encodes intermediates without libvips.
type nativeRecompressor struct{}

func (nativeRecompressor) Recompress(intermediate []byte, format Format, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("quality must be within [1,100], got %d", quality)
	}

	img, _, err := image.Decode(bytes.NewReader(intermediate))
	if err != nil {
		return nil, fmt.Errorf("decode intermediate: %w", err)
	}

	var buf bytes.Buffer
	switch format {
	case FormatJPEG:
		err = jpegli.Encode(&buf, img, &jpegli.EncodingOptions{
			Quality:           quality,
			ChromaSubsampling: image.YCbCrSubsampleRatio420,
		})
	case FormatPNG:
		// PNG has no quality knob; spend more effort on deflate instead.
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		err = encoder.Encode(&buf, img)
	case FormatWEBP:
		err = encodeLossyWebP(&buf, img, quality)
	case FormatGIF:
		levels, grays := gifLevelsForQuality(quality)
		err = encodeGIF(&buf, img, levels, grays)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("recompress %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
