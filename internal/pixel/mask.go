package pixel

// Mask is the raw output of a segmenter: a per-pixel saliency map with one
// channel (the scalar value) or four channels (RGBA). Its resolution may
// differ from the image it was computed for.
type Mask struct {
	Width    int
	Height   int
	Channels int
	Data     []byte
}

// AlphaMask builds a single-channel mask from the alpha channel of b.
func AlphaMask(b *Buffer) Mask {
	data := make([]byte, b.Width*b.Height)
	for i := range data {
		data[i] = b.Pix[i*4+3]
	}
	return Mask{Width: b.Width, Height: b.Height, Channels: 1, Data: data}
}
