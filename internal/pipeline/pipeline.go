package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"

	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/pixel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrEmptyImage           = pixel.ErrEmptyImage
	ErrSegmenterUnavailable = errors.New("segmenter unavailable")
)

// Segmenter maps an image to a saliency mask. The mask may be smaller than
// the image and may have one or four channels.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image) (pixel.Mask, error)
}

// Input is one encoded source image.
type Input struct {
	Data     []byte
	MIMEType string
}

// Pipeline runs the ordered image stages for one image at a time. It holds
// no per-image state, so one Pipeline may serve concurrent runs as long as
// the segmenter allows it.
type Pipeline struct {
	segmenter Segmenter
	encoder   *Encoder
	logger    *log.Logger
	tracer    trace.Tracer
}

// New builds a Pipeline. segmenter may be nil when background removal is
// never requested.
func New(segmenter Segmenter, logger *log.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	encoder, err := NewEncoder(logger)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		segmenter: segmenter,
		encoder:   encoder,
		logger:    logger,
		tracer:    otel.Tracer("cutout/pipeline"),
	}, nil
}

func (p *Pipeline) Run(ctx context.Context, in Input, cfg domain.PipelineConfig) (Encoded, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	out, err := p.run(ctx, in, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Encoded{}, err
	}
	span.SetAttributes(
		attribute.String("output.format", string(out.Format)),
		attribute.Int("output.bytes", out.Size()),
		attribute.Bool("output.compressed", out.Compressed),
	)
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, in Input, cfg domain.PipelineConfig) (Encoded, error) {
	if err := cfg.Validate(); err != nil {
		return Encoded{}, err
	}

	buf, sourceMIME, err := Decode(in.Data, in.MIMEType)
	if err != nil {
		return Encoded{}, fmt.Errorf("decode stage: %w", err)
	}

	if cfg.BackgroundRemoval.Enabled {
		buf, err = p.removeBackground(ctx, buf, cfg)
		if err != nil {
			return Encoded{}, err
		}
	}

	if cfg.Grayscale.Enabled && cfg.Grayscale.Intensity > 0 {
		if err := BlendGrayscale(buf, cfg.Grayscale.Intensity); err != nil {
			return Encoded{}, fmt.Errorf("grayscale stage: %w", err)
		}
	}

	if cfg.AutoCrop.Enabled {
		if buf, err = AutoCrop(buf, cfg.AutoCrop.Margin); err != nil {
			return Encoded{}, fmt.Errorf("autocrop stage: %w", err)
		}
	}

	if cfg.Resize.Enabled {
		if buf, err = Resize(buf, cfg.Resize); err != nil {
			return Encoded{}, fmt.Errorf("resize stage: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return Encoded{}, err
	}

	format := ResolveFormat(cfg.OutputFormat, sourceMIME)
	if !format.SupportsAlpha() {
		bg, err := ParseFlattenColor(cfg.FlattenColor)
		if err != nil {
			return Encoded{}, fmt.Errorf("flatten stage: %w", err)
		}
		if buf, err = Flatten(buf, bg); err != nil {
			return Encoded{}, fmt.Errorf("flatten stage: %w", err)
		}
	}

	encoded, err := p.encoder.Encode(ctx, buf, format, cfg.Compress)
	if err != nil {
		return Encoded{}, fmt.Errorf("encode stage: %w", err)
	}
	return encoded, nil
}

// removeBackground segments buf, composites the cleaned mask into it and
// runs the two cleanup passes. The pre-segmentation buffer is only kept
// when matched-background cleanup needs it.
func (p *Pipeline) removeBackground(ctx context.Context, buf *pixel.Buffer, cfg domain.PipelineConfig) (*pixel.Buffer, error) {
	if p.segmenter == nil {
		return nil, fmt.Errorf("segment stage: %w", ErrSegmenterUnavailable)
	}

	var original *pixel.Buffer
	if cfg.MatchedBackgroundCleanup.Enabled {
		original = buf
	}

	raw, err := p.segment(ctx, buf)
	if err != nil {
		return nil, fmt.Errorf("segment stage: %w", err)
	}
	mask, err := NormalizeMask(raw)
	if err != nil {
		return nil, fmt.Errorf("mask stage: %w", err)
	}
	if err := PostProcessMask(mask, cfg.BackgroundRemoval); err != nil {
		return nil, fmt.Errorf("mask stage: %w", err)
	}

	out, err := Composite(buf, mask)
	if err != nil {
		return nil, fmt.Errorf("composite stage: %w", err)
	}

	if cfg.FakeTransparencyCleanup.Enabled {
		if err := RemoveFakeTransparency(out, cfg.FakeTransparencyCleanup.Tolerance); err != nil {
			return nil, fmt.Errorf("fake transparency stage: %w", err)
		}
	}
	if original != nil {
		if err := RemoveMatchedBackground(original, out, cfg.MatchedBackgroundCleanup.Tolerance); err != nil {
			return nil, fmt.Errorf("matched background stage: %w", err)
		}
	}
	return out, nil
}

func (p *Pipeline) segment(ctx context.Context, buf *pixel.Buffer) (pixel.Mask, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.segment")
	defer span.End()
	span.SetAttributes(attribute.Int("image.width", buf.Width), attribute.Int("image.height", buf.Height))

	mask, err := p.segmenter.Segment(ctx, buf.Image())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return pixel.Mask{}, err
	}
	if err := ctx.Err(); err != nil {
		return pixel.Mask{}, err
	}
	return mask, nil
}
