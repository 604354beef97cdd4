package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/pipeline"
	"github.com/dunamismax/cutout/internal/queue"
	"github.com/dunamismax/cutout/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
)

func TestRecordUsageWritesUsageLog(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	if err := jobStore.Create(context.Background(), domain.Job{
		ID:         "job-1",
		UserID:     "user-1",
		Status:     domain.JobStatusProcessing,
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  "input.png",
		Pipeline:   domain.DefaultPipelineConfig(),
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		jobStore:   jobStore,
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	s.recordUsage(context.Background(), "job-1", pipeline.Result{
		SourceBytes: 1_000,
		Output:      pipeline.Output{Format: pipeline.FormatWEBP, Width: 20, Height: 25, Bytes: 300},
	}, 250*time.Millisecond)

	if !usageStore.called {
		t.Fatal("expected usage log to be written")
	}
	if usageStore.log.UserID != "user-1" {
		t.Fatalf("expected user_id=user-1, got %s", usageStore.log.UserID)
	}
	if usageStore.log.PixelsProcessed != 500 {
		t.Fatalf("expected pixels_processed=500, got %d", usageStore.log.PixelsProcessed)
	}
	if usageStore.log.BytesSaved != 700 {
		t.Fatalf("expected bytes_saved=700, got %d", usageStore.log.BytesSaved)
	}
	if usageStore.log.ComputeTimeMS != 250 {
		t.Fatalf("expected compute_time_ms=250, got %d", usageStore.log.ComputeTimeMS)
	}
	if usageStore.log.OutputFormat != "WEBP" {
		t.Fatalf("expected output_format=WEBP, got %s", usageStore.log.OutputFormat)
	}
}

func TestRecordUsageClampsNegativeBytesSaved(t *testing.T) {
	usageStore := &captureUsageStore{}
	s := &Server{
		logger:     log.New(io.Discard, "", 0),
		usageStore: usageStore,
		metrics:    newMetrics(),
	}

	s.recordUsage(context.Background(), "job-2", pipeline.Result{
		SourceBytes: 100,
		Output:      pipeline.Output{Width: 5, Height: 5, Bytes: 200},
	}, 0)

	if usageStore.log.BytesSaved != 0 {
		t.Fatalf("expected bytes_saved=0, got %d", usageStore.log.BytesSaved)
	}
	if usageStore.log.UserID != "anonymous" {
		t.Fatalf("expected anonymous user, got %s", usageStore.log.UserID)
	}
	if usageStore.log.ComputeTimeMS < 1 {
		t.Fatalf("expected compute_time_ms to be at least 1, got %d", usageStore.log.ComputeTimeMS)
	}
}

func TestHandleProcessImageCompletesLocalJob(t *testing.T) {
	s, jobStore, hooks := newTestServer(t)
	source := writeSourcePNG(t, 300, 150)
	seedPendingJob(t, jobStore, "job-ok", source)

	cfg := domain.DefaultPipelineConfig()
	cfg.OutputFormat = domain.OutputFormatPNG
	task := processTask(t, "job-ok", source, cfg)

	if err := s.handleProcessImage(context.Background(), task); err != nil {
		t.Fatalf("handleProcessImage returned error: %v", err)
	}

	job, _, _ := jobStore.Get(context.Background(), "job-ok")
	if job.Status != domain.JobStatusDone {
		t.Fatalf("expected done, got %s (%s)", job.Status, job.Error)
	}
	if job.ResultMIMEType != "image/png" || job.ResultSize == 0 {
		t.Fatalf("unexpected result fields: %+v", job)
	}
	if _, err := os.Stat(job.ResultKey); err != nil {
		t.Fatalf("expected result file at %s: %v", job.ResultKey, err)
	}

	if got := hooks.events(); len(got) != 1 || got[0] != "job.completed" {
		t.Fatalf("expected one job.completed webhook, got %v", got)
	}
	if logs := jobStore.UsageLogs(); len(logs) != 1 || logs[0].PixelsProcessed != 200*100 {
		t.Fatalf("expected one usage log for a 200x100 output, got %+v", logs)
	}

	if err := s.handleProcessImage(context.Background(), task); err != nil {
		t.Fatalf("expected redelivered task to be skipped, got %v", err)
	}
	if got := hooks.events(); len(got) != 1 {
		t.Fatalf("expected no webhook for the skipped task, got %v", got)
	}
}

func TestHandleProcessImageFailsCorruptSource(t *testing.T) {
	s, jobStore, hooks := newTestServer(t)
	source := filepath.Join(t.TempDir(), "broken.png")
	if err := os.WriteFile(source, []byte("not an image"), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	seedPendingJob(t, jobStore, "job-bad", source)

	err := s.handleProcessImage(context.Background(), processTask(t, "job-bad", source, domain.DefaultPipelineConfig()))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for undecodable input, got %v", err)
	}

	job, _, _ := jobStore.Get(context.Background(), "job-bad")
	if job.Status != domain.JobStatusError || job.Error == "" {
		t.Fatalf("expected error status with message, got %s %q", job.Status, job.Error)
	}
	if got := hooks.events(); len(got) != 1 || got[0] != "job.failed" {
		t.Fatalf("expected one job.failed webhook, got %v", got)
	}
}

func TestHandleProcessImageRejectsBadPayload(t *testing.T) {
	s, _, _ := newTestServer(t)
	err := s.handleProcessImage(context.Background(), asynq.NewTask(queue.TypeProcessImage, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestPermanentFailure(t *testing.T) {
	if !permanentFailure(errors.Join(errors.New("decode stage"), pipeline.ErrEmptyImage)) {
		t.Fatal("expected empty image to be permanent")
	}
	if permanentFailure(errors.New("connection reset by peer")) {
		t.Fatal("expected transport errors to be retryable")
	}
}

func newTestServer(t *testing.T) (*Server, *store.MemoryJobStore, *captureWebhook) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	local, err := pipeline.NewLocalProcessor(t.TempDir(), nil, logger)
	if err != nil {
		t.Fatalf("NewLocalProcessor returned error: %v", err)
	}

	jobStore := store.NewMemoryJobStore()
	hooks := &captureWebhook{}
	return &Server{
		logger:         logger,
		sem:            make(chan struct{}, 1),
		localProcessor: local,
		webhookClient:  hooks,
		jobStore:       jobStore,
		usageStore:     jobStore,
		metrics:        newMetrics(),
		tracer:         otel.Tracer("cutout/worker/test"),
	}, jobStore, hooks
}

func writeSourcePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	path := filepath.Join(t.TempDir(), "source.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func seedPendingJob(t *testing.T, jobStore store.JobStore, id, source string) {
	t.Helper()
	now := time.Now().UTC()
	if err := jobStore.Create(context.Background(), domain.Job{
		ID:         id,
		UserID:     "user-7",
		Status:     domain.JobStatusPending,
		SourceType: domain.SourceTypeLocalFile,
		WebhookURL: "http://hooks.invalid/cutout",
		ObjectKey:  source,
		Pipeline:   domain.DefaultPipelineConfig(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}
}

func processTask(t *testing.T, id, source string, cfg domain.PipelineConfig) *asynq.Task {
	t.Helper()
	task, err := queue.NewProcessImageTask(queue.ProcessImagePayload{
		JobID:       id,
		SourceType:  domain.SourceTypeLocalFile,
		WebhookURL:  "http://hooks.invalid/cutout",
		ObjectKey:   source,
		Pipeline:    cfg,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("NewProcessImageTask returned error: %v", err)
	}
	return task
}

type captureWebhook struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureWebhook) Send(_ context.Context, _, event string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, event)
	return nil
}

func (c *captureWebhook) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

type captureUsageStore struct {
	called bool
	log    domain.UsageLog
}

func (s *captureUsageStore) CreateUsageLog(_ context.Context, usage domain.UsageLog) error {
	s.called = true
	s.log = usage
	return nil
}
