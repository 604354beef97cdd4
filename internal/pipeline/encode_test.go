package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"io"
	"log"
	"testing"

	"github.com/dunamismax/cutout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRecompressor struct {
	data  []byte
	err   error
	calls int
}

func (s *stubRecompressor) Recompress(_ []byte, _ Format, _ int) ([]byte, error) {
	s.calls++
	return s.data, s.err
}

func testEncoder(rc recompressor) *Encoder {
	return &Encoder{logger: log.New(io.Discard, "", 0), recompressor: rc}
}

func TestEncoder_LossyFailureFallsBack(t *testing.T) {
	buf := filledBuffer(t, 16, 16, red)
	rc := &stubRecompressor{err: errors.New("boom")}

	out, err := testEncoder(rc).Encode(context.Background(), buf, FormatPNG, domain.CompressConfig{Enabled: true, Quality: 40})
	require.NoError(t, err)
	assert.True(t, out.Fallback)
	assert.False(t, out.Compressed)

	lossless, err := EncodeLossless(buf.Image(), FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, lossless, out.Data)
	assert.Equal(t, "image/png", out.MIMEType)
}

func TestEncoder_KeepsSmallerLossyResult(t *testing.T) {
	buf := filledBuffer(t, 16, 16, red)
	rc := &stubRecompressor{data: []byte{1}}

	out, err := testEncoder(rc).Encode(context.Background(), buf, FormatPNG, domain.CompressConfig{Enabled: true, Quality: 40})
	require.NoError(t, err)
	assert.True(t, out.Compressed)
	assert.Equal(t, []byte{1}, out.Data)
}

func TestEncoder_StrictModeRejectsLargerResult(t *testing.T) {
	buf := filledBuffer(t, 16, 16, red)
	rc := &stubRecompressor{data: bytes.Repeat([]byte{0}, 1<<20)}

	out, err := testEncoder(rc).Encode(context.Background(), buf, FormatPNG, domain.CompressConfig{Enabled: true, Quality: 40})
	require.NoError(t, err)
	assert.False(t, out.Compressed)
	assert.False(t, out.Fallback)
	assert.Less(t, out.Size(), 1<<20)
}

func TestEncoder_CompressionDisabledSkipsRecompressor(t *testing.T) {
	rc := &stubRecompressor{err: errors.New("should not be called")}
	out, err := testEncoder(rc).Encode(context.Background(), filledBuffer(t, 4, 4, red), FormatWEBP, domain.CompressConfig{})
	require.NoError(t, err)
	assert.Equal(t, 0, rc.calls)
	assert.Equal(t, "image/webp", out.MIMEType)

	img, format, err := image.Decode(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "webp", format)
	assert.Equal(t, 4, img.Bounds().Dx())
}

func TestEncodeLossless_GIFKeepsTransparency(t *testing.T) {
	buf := filledBuffer(t, 4, 4, red)
	setPixel(buf, 0, 0, transparent)

	data, err := EncodeLossless(buf.Image(), FormatGIF)
	require.NoError(t, err)

	img, err := gif.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	_, _, _, a := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), a)
	r, g, b, a := img.At(2, 2).RGBA()
	assert.Equal(t, [4]uint32{0xffff, 0, 0, 0xffff}, [4]uint32{r, g, b, a})
}

func TestNativeRecompressor_PNGAndGIF(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 8), G: uint8(y * 8), B: 90, A: 255})
		}
	}

	for _, format := range []Format{FormatPNG, FormatGIF, FormatJPEG} {
		intermediate, err := EncodeLossless(src, format)
		require.NoError(t, err)

		out, err := nativeRecompressor{}.Recompress(intermediate, format, 30)
		require.NoErrorf(t, err, "format %s", format)

		img, _, err := image.Decode(bytes.NewReader(out))
		require.NoErrorf(t, err, "format %s", format)
		assert.Equal(t, src.Bounds(), img.Bounds())
	}

	_, err := nativeRecompressor{}.Recompress(nil, FormatPNG, 0)
	require.Error(t, err)
}

func TestGIFLevelsForQuality(t *testing.T) {
	levels, grays := gifLevelsForQuality(100)
	assert.Equal(t, gifLosslessLevels, levels)
	assert.Equal(t, gifLosslessGrays, grays)

	levels, _ = gifLevelsForQuality(1)
	assert.Equal(t, 2, levels)
	assert.LessOrEqual(t, len(gifPalette(gifLevelsForQuality(100))), 256)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "jpg", FormatJPEG.Extension())
	assert.Equal(t, "webp", FormatWEBP.Extension())
	assert.False(t, FormatJPEG.SupportsAlpha())
	assert.True(t, FormatGIF.SupportsAlpha())

	f, ok := FormatFromMIME("image/jpeg; charset=binary")
	assert.True(t, ok)
	assert.Equal(t, FormatJPEG, f)

	_, ok = FormatFromMIME("image/bmp")
	assert.False(t, ok)

	assert.Equal(t, FormatPNG, ResolveFormat("", "image/bmp"))
	assert.Equal(t, FormatGIF, ResolveFormat("", "image/gif"))
	assert.Equal(t, FormatJPEG, ResolveFormat("jpg", "image/png"))
}
