package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid pipeline config")

const (
	OutputFormatPNG  = "PNG"
	OutputFormatJPEG = "JPEG"
	OutputFormatWEBP = "WEBP"
	OutputFormatGIF  = "GIF"
)

// PipelineConfig selects and parameterises the processing stages. A zero
// value disables every stage.
type PipelineConfig struct {
	AutoCrop                 AutoCropConfig          `json:"auto_crop"`
	Compress                 CompressConfig          `json:"compress"`
	Resize                   ResizeConfig            `json:"resize"`
	Grayscale                GrayscaleConfig         `json:"grayscale"`
	BackgroundRemoval        BackgroundRemovalConfig `json:"background_removal"`
	FakeTransparencyCleanup  ToleranceConfig         `json:"fake_transparency_cleanup"`
	MatchedBackgroundCleanup ToleranceConfig         `json:"matched_background_cleanup"`
	// OutputFormat overrides the format derived from the source image.
	OutputFormat string `json:"output_format,omitempty"`
	// FlattenColor is the hex background used when alpha has to be removed.
	FlattenColor string `json:"flatten_color,omitempty"`
}

type AutoCropConfig struct {
	Enabled bool `json:"enabled"`
	Margin  int  `json:"margin"`
}

type CompressConfig struct {
	Enabled bool `json:"enabled"`
	Quality int  `json:"quality"`
}

// ResizeConfig targets a width and height. Zero or negative means "keep the
// current size on that axis".
type ResizeConfig struct {
	Enabled         bool `json:"enabled"`
	Width           int  `json:"width,omitempty"`
	Height          int  `json:"height,omitempty"`
	KeepAspectRatio bool `json:"keep_aspect_ratio"`
}

type GrayscaleConfig struct {
	Enabled   bool `json:"enabled"`
	Intensity int  `json:"intensity"`
}

type BackgroundRemovalConfig struct {
	Enabled      bool             `json:"enabled"`
	DetailMode   bool             `json:"detail_mode"`
	AlphaMatting bool             `json:"alpha_matting"`
	FgThreshold  ThresholdSetting `json:"fg_threshold"`
	BgThreshold  ThresholdSetting `json:"bg_threshold"`
	ErodeRadius  ThresholdSetting `json:"erode_radius"`
}

// ThresholdSetting is an individually overridable parameter. When Enabled is
// false the built-in default applies.
type ThresholdSetting struct {
	Enabled bool `json:"enabled"`
	Value   int  `json:"value"`
}

type ToleranceConfig struct {
	Enabled   bool `json:"enabled"`
	Tolerance int  `json:"tolerance"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		AutoCrop: AutoCropConfig{Enabled: false, Margin: 0},
		Compress: CompressConfig{Enabled: true, Quality: 60},
		Resize:   ResizeConfig{Enabled: true, Width: 200, KeepAspectRatio: true},
		Grayscale: GrayscaleConfig{
			Enabled:   false,
			Intensity: 50,
		},
		BackgroundRemoval: BackgroundRemovalConfig{
			AlphaMatting: true,
			FgThreshold:  ThresholdSetting{Value: 240},
			BgThreshold:  ThresholdSetting{Value: 5},
			ErodeRadius:  ThresholdSetting{Value: 5},
		},
		FakeTransparencyCleanup:  ToleranceConfig{Tolerance: 20},
		MatchedBackgroundCleanup: ToleranceConfig{Tolerance: 30},
		FlattenColor:             "#FFFFFF",
	}
}

// Validate checks the ranges every stage relies on. A resize with no target
// on either axis passes: the resizer keeps the canvas size in that case.
func (c PipelineConfig) Validate() error {
	if c.AutoCrop.Margin < 0 {
		return fmt.Errorf("%w: auto_crop.margin must be >= 0", ErrInvalidConfig)
	}
	if c.Compress.Enabled && (c.Compress.Quality < 1 || c.Compress.Quality > 100) {
		return fmt.Errorf("%w: compress.quality must be within [1,100]", ErrInvalidConfig)
	}
	if c.Grayscale.Intensity < 0 || c.Grayscale.Intensity > 100 {
		return fmt.Errorf("%w: grayscale.intensity must be within [0,100]", ErrInvalidConfig)
	}

	br := c.BackgroundRemoval
	if err := checkRange("background_removal.fg_threshold", br.FgThreshold.Value, 0, 255); err != nil {
		return err
	}
	if err := checkRange("background_removal.bg_threshold", br.BgThreshold.Value, 0, 50); err != nil {
		return err
	}
	if err := checkRange("background_removal.erode_radius", br.ErodeRadius.Value, 0, 20); err != nil {
		return err
	}
	if err := checkRange("fake_transparency_cleanup.tolerance", c.FakeTransparencyCleanup.Tolerance, 0, 100); err != nil {
		return err
	}
	if err := checkRange("matched_background_cleanup.tolerance", c.MatchedBackgroundCleanup.Tolerance, 0, 100); err != nil {
		return err
	}

	if c.OutputFormat != "" && NormalizeOutputFormat(c.OutputFormat) == "" {
		return fmt.Errorf("%w: unsupported output_format %q", ErrInvalidConfig, c.OutputFormat)
	}
	return nil
}

// ValidateForRun is Validate plus the rules a user-facing run enforces before
// any image is touched: an enabled resize needs a width or a height.
func (c PipelineConfig) ValidateForRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Resize.Enabled && c.Resize.Width <= 0 && c.Resize.Height <= 0 {
		return fmt.Errorf("%w: resize requires width or height", ErrInvalidConfig)
	}
	return nil
}

// Normalize returns c with OutputFormat mapped to one of the OutputFormat
// constants. Unknown formats are left as given so Validate still reports them.
func (c PipelineConfig) Normalize() PipelineConfig {
	if f := NormalizeOutputFormat(c.OutputFormat); f != "" {
		c.OutputFormat = f
	}
	return c
}

// NormalizeOutputFormat maps user input such as "jpg" or "Webp" to one of the
// OutputFormat constants. It returns "" for unknown values.
func NormalizeOutputFormat(format string) string {
	switch strings.ToUpper(strings.TrimSpace(format)) {
	case "PNG":
		return OutputFormatPNG
	case "JPG", "JPEG":
		return OutputFormatJPEG
	case "WEBP":
		return OutputFormatWEBP
	case "GIF":
		return OutputFormatGIF
	default:
		return ""
	}
}

func checkRange(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s must be within [%d,%d]", ErrInvalidConfig, field, lo, hi)
	}
	return nil
}
