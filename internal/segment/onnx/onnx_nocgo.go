//go:build !cgo

package onnx

import (
	"context"
	"fmt"
	"image"

	"github.com/dunamismax/cutout/internal/pixel"
)

type Segmenter struct {
	cfg Config
}

func New(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg.withDefaults()}
}

func (s *Segmenter) Segment(_ context.Context, _ image.Image) (pixel.Mask, error) {
	return pixel.Mask{}, fmt.Errorf("%w: onnxruntime needs a cgo build", ErrUnavailable)
}

func (s *Segmenter) Close() {}
