package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log"

	"github.com/HugoSmits86/nativewebp"
	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/pixel"
)

// ErrLossyUnavailable is returned by recompressors that cannot produce a
// lossy variant of a format in the current build.
var ErrLossyUnavailable = errors.New("lossy encoder unavailable")

type recompressor interface {
	Recompress(intermediate []byte, format Format, quality int) ([]byte, error)
}

// Encoded is the final output of a pipeline run.
type Encoded struct {
	Data     []byte
	MIMEType string
	Format   Format
	Width    int
	Height   int
	// Compressed is set when the lossy variant was kept.
	Compressed bool
	// Fallback is set when the lossy re-encode failed and the lossless
	// intermediate was returned instead.
	Fallback bool
}

func (e Encoded) Size() int {
	return len(e.Data)
}

type Encoder struct {
	logger       *log.Logger
	recompressor recompressor
}

func NewEncoder(logger *log.Logger) (*Encoder, error) {
	rc, err := newRecompressor()
	if err != nil {
		return nil, fmt.Errorf("build recompressor: %w", err)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Encoder{logger: logger, recompressor: rc}, nil
}

// Encode writes buf as format at maximum fidelity and, when compression is
// enabled, re-encodes that intermediate at the configured quality. A failed
// or larger lossy result leaves the intermediate in place.
func (e *Encoder) Encode(ctx context.Context, buf *pixel.Buffer, format Format, cfg domain.CompressConfig) (Encoded, error) {
	if err := buf.Validate(); err != nil {
		return Encoded{}, err
	}

	intermediate, err := EncodeLossless(buf.Image(), format)
	if err != nil {
		return Encoded{}, err
	}

	out := Encoded{
		Data:     intermediate,
		MIMEType: format.MIMEType(),
		Format:   format,
		Width:    buf.Width,
		Height:   buf.Height,
	}
	if !cfg.Enabled {
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return Encoded{}, err
	}

	lossy, err := e.recompressor.Recompress(intermediate, format, cfg.Quality)
	if err != nil {
		e.logger.Printf("recompress failed format=%s quality=%d err=%v; keeping lossless output", format, cfg.Quality, err)
		out.Fallback = true
		return out, nil
	}
	if len(lossy) >= len(intermediate) {
		return out, nil
	}

	out.Data = lossy
	out.Compressed = true
	return out, nil
}

// EncodeLossless produces the maximum-fidelity encoding of img.
func EncodeLossless(img image.Image, format Format) ([]byte, error) {
	var buf bytes.Buffer

	switch format {
	case FormatJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case FormatPNG:
		encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case FormatWEBP:
		if err := nativewebp.Encode(&buf, img, nil); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	case FormatGIF:
		if err := encodeGIF(&buf, img, gifLosslessLevels, gifLosslessGrays); err != nil {
			return nil, fmt.Errorf("encode gif: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	return buf.Bytes(), nil
}
