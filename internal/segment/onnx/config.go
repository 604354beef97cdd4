// Package onnx runs an RMBG-style saliency model through onnxruntime.
package onnx

import "errors"

// ErrUnavailable means the model or the runtime cannot be loaded.
var ErrUnavailable = errors.New("onnx segmenter unavailable")

const (
	defaultInputSize  = 1024
	defaultInputName  = "input"
	defaultOutputName = "output"
)

type Config struct {
	ModelPath string
	// SharedLibraryPath points at libonnxruntime. Empty keeps the runtime's
	// default lookup.
	SharedLibraryPath string
	InputName         string
	OutputName        string
	InputSize         int
	IntraOpThreads    int
}

func (c Config) withDefaults() Config {
	if c.InputName == "" {
		c.InputName = defaultInputName
	}
	if c.OutputName == "" {
		c.OutputName = defaultOutputName
	}
	if c.InputSize <= 0 {
		c.InputSize = defaultInputSize
	}
	return c
}

// normalizeOutput min-max scales raw model output into 8-bit saliency.
func normalizeOutput(raw []float32) []byte {
	out := make([]byte, len(raw))
	if len(raw) == 0 {
		return out
	}

	lo, hi := raw[0], raw[0]
	for _, v := range raw[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	if span <= 0 {
		return out
	}
	for i, v := range raw {
		out[i] = uint8((v-lo)/span*255 + 0.5)
	}
	return out
}
