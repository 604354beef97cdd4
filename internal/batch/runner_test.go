package batch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	fail map[string]bool
	seen []string
}

func (f *fakeProcessor) Run(_ context.Context, in pipeline.Input, _ domain.PipelineConfig) (pipeline.Encoded, error) {
	key := string(in.Data)
	f.seen = append(f.seen, key)
	if f.fail[key] {
		return pipeline.Encoded{}, errors.New("decode stage: corrupt")
	}
	return pipeline.Encoded{Data: []byte("out"), MIMEType: "image/png", Format: pipeline.FormatPNG}, nil
}

type countingProgress struct{ n int }

func (c *countingProgress) Add(n int) error {
	c.n += n
	return nil
}

func TestRunner_ProcessesPendingJobsInOrder(t *testing.T) {
	jobs := []*domain.ImageJob{
		domain.NewImageJob("1", "a.png", "image/png", []byte("first")),
		domain.NewImageJob("2", "b.png", "image/png", []byte("broken")),
		domain.NewImageJob("3", "c.png", "image/png", []byte("third")),
	}
	jobs[2].Status = domain.JobStatusDone

	proc := &fakeProcessor{fail: map[string]bool{"broken": true}}
	progress := &countingProgress{}
	var transitions []string
	runner := NewRunner(proc, nil,
		WithProgress(progress),
		WithObserver(func(job domain.ImageJob) {
			transitions = append(transitions, job.ID+":"+job.Status)
		}),
	)

	sum, err := runner.Run(context.Background(), jobs, domain.DefaultPipelineConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "broken"}, proc.seen)
	assert.Equal(t, []string{"1:processing", "1:done", "2:processing", "2:error"}, transitions)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 2, progress.n)

	assert.Equal(t, domain.JobStatusDone, jobs[0].Status)
	assert.Equal(t, int64(3), jobs[0].ResultSize)
	assert.Equal(t, int64(2), jobs[0].SizeDelta())
	assert.Equal(t, domain.JobStatusError, jobs[1].Status)
	assert.Contains(t, jobs[1].Error, "corrupt")
	assert.Equal(t, int64(5), sum.OriginalBytes)
	assert.Equal(t, int64(2), sum.BytesSaved())
}

func TestRunner_InvalidConfigTouchesNothing(t *testing.T) {
	jobs := []*domain.ImageJob{domain.NewImageJob("1", "a.png", "image/png", []byte("x"))}
	cfg := domain.DefaultPipelineConfig()
	cfg.Resize = domain.ResizeConfig{Enabled: true}

	proc := &fakeProcessor{}
	_, err := NewRunner(proc, nil).Run(context.Background(), jobs, cfg)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Empty(t, proc.seen)
	assert.Equal(t, domain.JobStatusPending, jobs[0].Status)
}

func TestRunner_RejectsResizeWithoutTarget(t *testing.T) {
	jobs := []*domain.ImageJob{domain.NewImageJob("1", "a.png", "image/png", []byte("x"))}
	cfg := domain.DefaultPipelineConfig()
	cfg.Resize = domain.ResizeConfig{Enabled: true, KeepAspectRatio: true}

	proc := &fakeProcessor{}
	_, err := NewRunner(proc, nil).Run(context.Background(), jobs, cfg)
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Contains(t, err.Error(), "resize requires width or height")
	assert.Empty(t, proc.seen)
}

func TestRunner_StopsOnCancel(t *testing.T) {
	jobs := []*domain.ImageJob{domain.NewImageJob("1", "a.png", "image/png", []byte("x"))}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(&fakeProcessor{}, nil).Run(ctx, jobs, domain.DefaultPipelineConfig())
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.JobStatusPending, jobs[0].Status)
}

func TestRunner_WithRealPipeline(t *testing.T) {
	var src bytes.Buffer
	require.NoError(t, png.Encode(&src, image.NewNRGBA(image.Rect(0, 0, 400, 200))))

	p, err := pipeline.New(nil, nil)
	require.NoError(t, err)

	job := domain.NewImageJob("1", "photo.png", "image/png", src.Bytes())
	sum, err := NewRunner(p, nil).Run(context.Background(), []*domain.ImageJob{job}, domain.DefaultPipelineConfig())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Processed, job.Error)

	img, _, err := image.Decode(bytes.NewReader(job.Result))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 100, img.Bounds().Dy())
}

func TestOutputName(t *testing.T) {
	cases := []struct {
		source, mime, want string
	}{
		{"photo.jpeg", "image/jpeg", "photo.jpg"},
		{"photo.png", "image/webp", "photo.webp"},
		{"scan.tiff", "application/octet-stream", "scan.tiff"},
		{"noext", "", "noext.png"},
		{"dir/archive.v2.gif", "image/gif", "archive.v2.gif"},
		{".hidden", "image/png", ".hidden.png"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, OutputName(tc.source, tc.mime), tc.source)
	}
}

func TestNamer(t *testing.T) {
	n := NewNamer()
	assert.Equal(t, "a.png", n.Next("a.png"))
	assert.Equal(t, "a_1.png", n.Next("a.png"))
	assert.Equal(t, "a_2.png", n.Next("a.png"))
	assert.Equal(t, "b.png", n.Next("b.png"))
	assert.Equal(t, "a_1_1.png", n.Next("a_1.png"))
}

func TestWriteOutputs_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("keep"), 0o644))

	done := func(id, name string, data string) *domain.ImageJob {
		j := domain.NewImageJob(id, name, "image/png", []byte("src"))
		j.Status = domain.JobStatusDone
		j.Result = []byte(data)
		j.ResultMIMEType = "image/png"
		return j
	}
	failed := domain.NewImageJob("9", "bad.png", "image/png", nil)
	failed.Status = domain.JobStatusError

	written, err := WriteOutputs(dir, []*domain.ImageJob{done("1", "a.png", "one"), done("2", "a.jpg", "two"), failed})
	require.NoError(t, err)
	require.Len(t, written, 2)

	kept, err := os.ReadFile(filepath.Join(dir, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(kept))

	assert.Equal(t, filepath.Join(dir, "a_1.png"), written[0].Path)
	assert.Equal(t, filepath.Join(dir, "a_1_1.png"), written[1].Path)
}

func TestWriteExclusive_RemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	errDisk := errors.New("disk full")

	_, err := writeExclusive(dir, "a.png", io.MultiReader(bytes.NewReader([]byte("half")), iotest.ErrReader(errDisk)))
	require.ErrorIs(t, err, errDisk)

	_, statErr := os.Stat(filepath.Join(dir, "a.png"))
	assert.ErrorIs(t, statErr, fs.ErrNotExist)

	path, err := writeExclusive(dir, "a.png", bytes.NewReader([]byte("whole")))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.png"), path)
}
