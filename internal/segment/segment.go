package segment

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/dunamismax/cutout/internal/pipeline"
	"github.com/dunamismax/cutout/internal/pixel"
	"github.com/dunamismax/cutout/internal/segment/onnx"
	"github.com/dunamismax/cutout/internal/segment/remote"
)

const (
	KindNone     = "none"
	KindAlpha    = "alpha"
	KindBackdrop = "backdrop"
	KindAuto     = "auto"
	KindONNX     = "onnx"
	KindRemote   = "remote"
)

// Kinds lists the accepted segmenter names.
var Kinds = []string{KindNone, KindAuto, KindAlpha, KindBackdrop, KindONNX, KindRemote}

type Options struct {
	ModelPath         string
	SharedLibraryPath string
	RemoteURL         string
	RemoteSecret      string
	RemoteTimeout     time.Duration
	RemoteAttempts    int
}

// New builds the segmenter registered under kind. KindNone returns a nil
// segmenter; background removal then fails with ErrSegmenterUnavailable.
func New(kind string, opts Options) (pipeline.Segmenter, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindNone:
		return nil, nil
	case KindAlpha:
		return Alpha{}, nil
	case KindBackdrop:
		return NewBackdrop(), nil
	case KindAuto:
		return Auto{Backdrop: NewBackdrop()}, nil
	case KindONNX:
		if strings.TrimSpace(opts.ModelPath) == "" {
			return nil, fmt.Errorf("%w: onnx segmenter needs a model path", pipeline.ErrSegmenterUnavailable)
		}
		return onnx.New(onnx.Config{
			ModelPath:         opts.ModelPath,
			SharedLibraryPath: opts.SharedLibraryPath,
		}), nil
	case KindRemote:
		seg, err := remote.New(remote.Config{
			Endpoint:       opts.RemoteURL,
			SigningSecret:  opts.RemoteSecret,
			Timeout:        opts.RemoteTimeout,
			MaxAttempts:    opts.RemoteAttempts,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", pipeline.ErrSegmenterUnavailable, err)
		}
		return seg, nil
	default:
		return nil, fmt.Errorf("unknown segmenter %q (want one of %s)", kind, strings.Join(Kinds, ", "))
	}
}

// Auto uses the alpha channel when the source has transparency and falls
// back to backdrop estimation otherwise.
type Auto struct {
	Backdrop Backdrop
}

func (a Auto) Segment(ctx context.Context, img image.Image) (pixel.Mask, error) {
	buf, err := pixel.FromImage(img)
	if err != nil {
		return pixel.Mask{}, err
	}
	if hasTransparency(buf) {
		return pixel.AlphaMask(buf), nil
	}
	return a.Backdrop.Segment(ctx, buf.Image())
}
