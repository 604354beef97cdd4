package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/cutout/internal/domain"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	MIMEType   string
	Config     domain.PipelineConfig
}

type Output struct {
	Path       string
	Format     Format
	MIMEType   string
	Bytes      int
	Width      int
	Height     int
	Compressed bool
	Fallback   bool
}

type Result struct {
	SourceBytes int
	Output      Output
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, encoded Encoded) (Output, error)
}

// Processor moves one job through fetch, the image pipeline and emit.
type Processor struct {
	fetcher  Fetcher
	pipeline *Pipeline
	emitter  Emitter
}

func NewProcessor(fetcher Fetcher, emitter Emitter, segmenter Segmenter, logger *log.Logger) (*Processor, error) {
	if fetcher == nil || emitter == nil {
		return nil, errors.New("fetcher and emitter are required")
	}
	p, err := New(segmenter, logger)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return &Processor{fetcher: fetcher, pipeline: p, emitter: emitter}, nil
}

func NewLocalProcessor(outputDir string, segmenter Segmenter, logger *log.Logger) (*Processor, error) {
	return NewProcessor(LocalFileFetcher{}, LocalFileEmitter{OutputDir: outputDir}, segmenter, logger)
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	encoded, err := p.pipeline.Run(ctx, Input{Data: sourceBytes, MIMEType: req.MIMEType}, req.Config)
	if err != nil {
		return Result{}, err
	}

	written, err := p.emitter.Emit(ctx, req, encoded)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}

	return Result{SourceBytes: len(sourceBytes), Output: written}, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

// LocalFileEmitter writes <OutputDir>/<job id>/result.<ext>.
type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, encoded Encoded) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, resultFilename(encoded.Format))
	if err := os.WriteFile(fullPath, encoded.Data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return outputFor(fullPath, encoded), nil
}

func resultFilename(format Format) string {
	return "result." + format.Extension()
}

func outputFor(path string, encoded Encoded) Output {
	return Output{
		Path:       path,
		Format:     encoded.Format,
		MIMEType:   encoded.MIMEType,
		Bytes:      encoded.Size(),
		Width:      encoded.Width,
		Height:     encoded.Height,
		Compressed: encoded.Compressed,
		Fallback:   encoded.Fallback,
	}
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
