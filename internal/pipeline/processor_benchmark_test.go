package pipeline

import (
	"context"
	"fmt"
	"image"
	"testing"

	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/pixel"
)

func BenchmarkProcessorResize(b *testing.B) {
	processor := benchmarkProcessor(b, nil)

	cfg := domain.DefaultPipelineConfig()
	cfg.Resize.Width = 640
	cfg.OutputFormat = domain.OutputFormatJPEG
	cfg.Compress.Quality = 82

	runBenchmark(b, processor, "bench-resize", cfg)
}

func BenchmarkProcessorBackgroundRemoval(b *testing.B) {
	processor := benchmarkProcessor(b, fullMaskSegmenter{})

	cfg := domain.DefaultPipelineConfig()
	cfg.BackgroundRemoval.Enabled = true
	cfg.FakeTransparencyCleanup.Enabled = true
	cfg.MatchedBackgroundCleanup.Enabled = true
	cfg.AutoCrop.Enabled = true
	cfg.Compress.Enabled = false
	cfg.OutputFormat = domain.OutputFormatPNG

	runBenchmark(b, processor, "bench-removal", cfg)
}

func runBenchmark(b *testing.B, processor *Processor, prefix string, cfg domain.PipelineConfig) {
	req := Request{
		SourceType: SourceTypeLocalFile,
		ObjectKey:  "ignored.png",
		MIMEType:   "image/png",
		Config:     cfg,
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req.JobID = fmt.Sprintf("%s-%d", prefix, i)
		if _, err := processor.Process(context.Background(), req); err != nil {
			b.Fatalf("process: %v", err)
		}
	}
}

func benchmarkProcessor(b *testing.B, seg Segmenter) *Processor {
	b.Helper()
	processor, err := NewProcessor(staticFetcher{data: buildTestPNG(b, 1920, 1080)}, discardEmitter{}, seg, nil)
	if err != nil {
		b.Fatalf("new processor: %v", err)
	}
	return processor
}

type staticFetcher struct {
	data []byte
}

func (f staticFetcher) Fetch(_ context.Context, _ Request) ([]byte, error) {
	return f.data, nil
}

type discardEmitter struct{}

func (discardEmitter) Emit(_ context.Context, _ Request, encoded Encoded) (Output, error) {
	return outputFor("", encoded), nil
}

// fullMaskSegmenter keeps a centred ellipse at quarter resolution.
type fullMaskSegmenter struct{}

func (fullMaskSegmenter) Segment(_ context.Context, img image.Image) (pixel.Mask, error) {
	w, h := img.Bounds().Dx()/4, img.Bounds().Dy()/4
	data := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx := float64(2*x-w) / float64(w)
			dy := float64(2*y-h) / float64(h)
			if dx*dx+dy*dy < 0.6 {
				data[y*w+x] = 255
			}
		}
	}
	return pixel.Mask{Width: w, Height: h, Channels: 1, Data: data}, nil
}
