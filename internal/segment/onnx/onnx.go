//go:build cgo

package onnx

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/dunamismax/cutout/internal/pixel"
	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"
)

// Segmenter loads the model on first use and serialises inference, since the
// session is bound to a single pair of tensors.
type Segmenter struct {
	cfg Config

	once    sync.Once
	initErr error

	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

var errClosed = fmt.Errorf("%w: segmenter closed", ErrUnavailable)

func New(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg.withDefaults()}
}

func (s *Segmenter) init() error {
	s.once.Do(func() {
		s.initErr = s.load()
	})
	return s.initErr
}

func (s *Segmenter) load() error {
	if _, err := os.Stat(s.cfg.ModelPath); err != nil {
		return fmt.Errorf("%w: model %s: %v", ErrUnavailable, s.cfg.ModelPath, err)
	}
	if s.cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(s.cfg.SharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("%w: initialize onnxruntime: %v", ErrUnavailable, err)
		}
	}

	size := int64(s.cfg.InputSize)
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, size, size))
	if err != nil {
		input.Destroy()
		return fmt.Errorf("create output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return fmt.Errorf("create session options: %w", err)
	}
	defer options.Destroy()
	if s.cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(s.cfg.IntraOpThreads); err != nil {
			input.Destroy()
			output.Destroy()
			return fmt.Errorf("set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewAdvancedSession(
		s.cfg.ModelPath,
		[]string{s.cfg.InputName},
		[]string{s.cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return fmt.Errorf("create session: %w", err)
	}

	s.session, s.input, s.output = session, input, output
	return nil
}

// Segment returns an InputSize x InputSize single-channel mask. The
// pipeline resamples it to the source resolution.
func (s *Segmenter) Segment(ctx context.Context, img image.Image) (pixel.Mask, error) {
	if err := s.init(); err != nil {
		return pixel.Mask{}, err
	}
	if err := ctx.Err(); err != nil {
		return pixel.Mask{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return pixel.Mask{}, errClosed
	}

	prepareInput(img, s.cfg.InputSize, s.input.GetData())
	if err := s.session.Run(); err != nil {
		return pixel.Mask{}, fmt.Errorf("run model: %w", err)
	}

	return pixel.Mask{
		Width:    s.cfg.InputSize,
		Height:   s.cfg.InputSize,
		Channels: 1,
		Data:     normalizeOutput(s.output.GetData()),
	}, nil
}

// Close releases the session and its tensors. Segment fails with
// ErrUnavailable afterwards.
func (s *Segmenter) Close() {
	// Keep a later Segment from loading a fresh session.
	s.once.Do(func() { s.initErr = errClosed })

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.input != nil {
		s.input.Destroy()
		s.input = nil
	}
	if s.output != nil {
		s.output.Destroy()
		s.output = nil
	}
	if s.session != nil {
		s.session.Destroy()
		s.session = nil
	}
}

// prepareInput writes img into dst as planar RGB, scaled to size x size and
// normalised to [-0.5, 0.5].
func prepareInput(img image.Image, size int, dst []float32) {
	scaled := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)
	plane := size * size
	red, green, blue := dst[0:plane], dst[plane:2*plane], dst[2*plane:3*plane]

	b := scaled.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := scaled.At(x, y).RGBA()
			red[i] = float32(r>>8)/255 - 0.5
			green[i] = float32(g>>8)/255 - 0.5
			blue[i] = float32(bl>>8)/255 - 0.5
			i++
		}
	}
}
