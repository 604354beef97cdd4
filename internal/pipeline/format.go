package pipeline

import (
	"strings"

	"github.com/dunamismax/cutout/internal/domain"
)

// Format is an output container format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWEBP Format = "webp"
	FormatGIF  Format = "gif"
)

func (f Format) MIMEType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWEBP:
		return "image/webp"
	case FormatGIF:
		return "image/gif"
	default:
		return "image/png"
	}
}

// Extension is the file extension used for downloads, without the dot.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(normalizeOutputFormat(string(f)))
}

// SupportsAlpha is false for formats that must be flattened before encoding.
func (f Format) SupportsAlpha() bool {
	return f != FormatJPEG
}

// FormatFromMIME maps a MIME type to a Format. The second result is false
// for types the encoder cannot produce.
func FormatFromMIME(mimeType string) (Format, bool) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	switch mimeType {
	case "image/png":
		return FormatPNG, true
	case "image/jpeg", "image/jpg":
		return FormatJPEG, true
	case "image/webp":
		return FormatWEBP, true
	case "image/gif":
		return FormatGIF, true
	default:
		return FormatPNG, false
	}
}

// ResolveFormat picks the configured override when present and otherwise
// keeps the source format. Sources the encoder cannot write become PNG.
func ResolveFormat(override, sourceMIME string) Format {
	switch domain.NormalizeOutputFormat(override) {
	case domain.OutputFormatPNG:
		return FormatPNG
	case domain.OutputFormatJPEG:
		return FormatJPEG
	case domain.OutputFormatWEBP:
		return FormatWEBP
	case domain.OutputFormatGIF:
		return FormatGIF
	}
	f, _ := FormatFromMIME(sourceMIME)
	return f
}

func normalizeOutputFormat(format string) Format {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpg", "jpeg":
		return FormatJPEG
	case "webp":
		return FormatWEBP
	case "gif":
		return FormatGIF
	default:
		return FormatPNG
	}
}
