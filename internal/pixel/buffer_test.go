package pixel

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsZeroArea(t *testing.T) {
	_, err := New(0, 10)
	require.ErrorIs(t, err, ErrEmptyImage)

	_, err = New(10, 0)
	require.ErrorIs(t, err, ErrEmptyImage)

	b, err := New(3, 2)
	require.NoError(t, err)
	assert.Len(t, b.Pix, 3*2*4)
}

func TestFromImageKeepsStraightAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 200, G: 100, B: 50, A: 128})
	src.SetNRGBA(1, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 255})

	b, err := FromImage(src)
	require.NoError(t, err)
	assert.Equal(t, []byte{200, 100, 50, 128, 1, 2, 3, 255}, b.Pix)
}

func TestFromImageOffsetBounds(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 7, 6))
	src.SetNRGBA(5, 5, color.NRGBA{R: 9, A: 255})
	src.SetNRGBA(6, 5, color.NRGBA{G: 9, A: 255})

	b, err := FromImage(src)
	require.NoError(t, err)
	require.Equal(t, 2, b.Width)
	require.Equal(t, 1, b.Height)
	assert.Equal(t, []byte{9, 0, 0, 255, 0, 9, 0, 255}, b.Pix)
}

func TestFromImageRejectsEmpty(t *testing.T) {
	_, err := FromImage(image.NewNRGBA(image.Rect(0, 0, 0, 4)))
	require.ErrorIs(t, err, ErrEmptyImage)
}

func TestImageSharesMemory(t *testing.T) {
	b, err := New(2, 2)
	require.NoError(t, err)

	b.Image().SetNRGBA(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 40})
	assert.Equal(t, []byte{10, 20, 30, 40}, b.Pix[b.Offset(1, 1):b.Offset(1, 1)+4])
}

func TestCloneIsIndependent(t *testing.T) {
	b, err := New(1, 1)
	require.NoError(t, err)
	c := b.Clone()
	c.Pix[3] = 255
	assert.Equal(t, byte(0), b.Pix[3])
}

func TestValidate(t *testing.T) {
	var nilBuf *Buffer
	require.ErrorIs(t, nilBuf.Validate(), ErrEmptyImage)

	bad := &Buffer{Width: 2, Height: 2, Pix: make([]byte, 4)}
	err := bad.Validate()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyImage)
}

func TestAlphaMask(t *testing.T) {
	b := &Buffer{Width: 2, Height: 1, Pix: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	m := AlphaMask(b)
	assert.Equal(t, 1, m.Channels)
	assert.Equal(t, []byte{4, 8}, m.Data)
}
