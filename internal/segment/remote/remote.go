// Package remote sends images to an HTTP inference service for
// segmentation.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/cutout/internal/pixel"
	"github.com/dunamismax/cutout/internal/webhook"
)

const maxMaskBytes = 64 << 20

type Config struct {
	Endpoint       string
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Segmenter posts the image as PNG and expects a PNG mask back. Grayscale
// responses become single-channel masks; anything else is read as RGBA.
type Segmenter struct {
	endpoint   string
	secret     string
	httpClient *http.Client
	backoff    webhook.Backoff
}

func New(cfg Config) (*Segmenter, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("remote segmenter endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Segmenter{
		endpoint:   endpoint,
		secret:     cfg.SigningSecret,
		httpClient: &http.Client{Timeout: timeout},
		backoff: webhook.Backoff{
			MaxAttempts: cfg.MaxAttempts,
			Initial:     cfg.InitialBackoff,
			Max:         cfg.MaxBackoff,
		},
	}, nil
}

func (s *Segmenter) Segment(ctx context.Context, img image.Image) (pixel.Mask, error) {
	var body bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(&body, img); err != nil {
		return pixel.Mask{}, fmt.Errorf("encode request image: %w", err)
	}
	payload := body.Bytes()

	var mask pixel.Mask
	err := s.backoff.Retry(ctx, func(int) error {
		m, err := s.post(ctx, payload)
		if err != nil {
			return err
		}
		mask = m
		return nil
	})
	if err != nil {
		return pixel.Mask{}, fmt.Errorf("remote segment: %w", err)
	}
	return mask, nil
}

func (s *Segmenter) post(ctx context.Context, payload []byte) (pixel.Mask, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return pixel.Mask{}, fmt.Errorf("%w: build request: %v", webhook.ErrPermanent, err)
	}
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "image/png")
	if s.secret != "" {
		timestamp := strconv.FormatInt(time.Now().UTC().Unix(), 10)
		req.Header.Set(webhook.HeaderTimestamp, timestamp)
		req.Header.Set(webhook.HeaderSignature, webhook.Sign(s.secret, timestamp, payload))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return pixel.Mask{}, err
	}
	defer resp.Body.Close()

	if err := webhook.ClassifyStatus(resp.StatusCode); err != nil {
		return pixel.Mask{}, err
	}

	decoded, err := png.Decode(io.LimitReader(resp.Body, maxMaskBytes))
	if err != nil {
		return pixel.Mask{}, fmt.Errorf("%w: decode mask: %v", webhook.ErrPermanent, err)
	}
	return maskFromImage(decoded)
}

// maskFromImage keeps grayscale masks single-channel, 8 or 16 bit, and
// treats anything else as an RGBA mask whose alpha carries the saliency.
func maskFromImage(img image.Image) (pixel.Mask, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	switch gray := img.(type) {
	case *image.Gray:
		data := make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(data[y*w:(y+1)*w], gray.Pix[gray.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return pixel.Mask{Width: w, Height: h, Channels: 1, Data: data}, nil
	case *image.Gray16:
		data := make([]byte, w*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = uint8(gray.Gray16At(b.Min.X+x, b.Min.Y+y).Y >> 8)
			}
		}
		return pixel.Mask{Width: w, Height: h, Channels: 1, Data: data}, nil
	}

	buf, err := pixel.FromImage(img)
	if err != nil {
		return pixel.Mask{}, err
	}
	return pixel.Mask{Width: buf.Width, Height: buf.Height, Channels: 4, Data: buf.Pix}, nil
}
