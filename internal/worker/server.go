package worker

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/cutout/internal/config"
	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/pipeline"
	"github.com/dunamismax/cutout/internal/queue"
	"github.com/dunamismax/cutout/internal/storage"
	"github.com/dunamismax/cutout/internal/store"
	"github.com/dunamismax/cutout/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  jobProcessor
	objectProcessor jobProcessor
	webhookClient   webhookSender
	jobStore        store.JobStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type jobProcessor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	storageClient *storage.Client,
	outputPrefix string,
	segmenter pipeline.Segmenter,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}

	localProcessor, err := pipeline.NewLocalProcessor(workerCfg.LocalOutputDir, segmenter, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline processor: %w", err)
	}

	objectProcessor, err := pipeline.NewProcessor(
		pipeline.ObjectStoreFetcher{Storage: storageClient},
		pipeline.ObjectStoreEmitter{Storage: storageClient, OutputPrefix: outputPrefix},
		segmenter,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("initialize object-store processor: %w", err)
	}

	if usageStore == nil {
		if jobAndUsageStore, ok := jobStore.(store.UsageStore); ok {
			usageStore = jobAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:             make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		localProcessor:  localProcessor,
		objectProcessor: objectProcessor,
		webhookClient:   webhookClient,
		jobStore:        jobStore,
		usageStore:      usageStore,
		metrics:         newMetrics(),
		tracer:          otel.Tracer("cutout/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeProcessImage, s.handleProcessImage)
	return s.server.Run(mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleProcessImage(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusError

	payload, err := queue.ParseProcessImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.process_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.Bool("job.background_removal", payload.Pipeline.BackgroundRemoval.Enabled),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	if !s.beginJob(ctx, payload.JobID) {
		outcome = "skipped"
		span.SetStatus(codes.Ok, "already finished")
		return nil
	}

	s.logger.Printf(
		"Working... job_id=%s source_type=%s object_key=%s",
		payload.JobID,
		payload.SourceType,
		payload.ObjectKey,
	)

	request := pipeline.Request{
		JobID:      payload.JobID,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		MIMEType:   payload.MIMEType,
		Config:     payload.Pipeline,
	}

	result, err := s.process(ctx, request)
	if err != nil {
		return s.fail(ctx, span, payload, err)
	}

	s.logger.Printf(
		"Processed job_id=%s format=%s source_bytes=%d result_bytes=%d fallback=%t",
		payload.JobID,
		result.Output.Format,
		result.SourceBytes,
		result.Output.Bytes,
		result.Output.Fallback,
	)
	s.recordResult(ctx, payload.JobID, result)
	s.metrics.imagesTotal.WithLabelValues(string(result.Output.Format)).Inc()
	if result.Output.Fallback {
		s.metrics.recompressFallbacks.Inc()
	}
	s.recordUsage(ctx, payload.JobID, result, time.Since(startedAt))

	s.dispatchWebhook(ctx, payload, webhook.EventJobCompleted, map[string]any{
		"job_id":           payload.JobID,
		"status":           domain.JobStatusDone,
		"source_type":      payload.SourceType,
		"object_key":       payload.ObjectKey,
		"requested_at":     payload.RequestedAt,
		"completed_at":     time.Now().UTC(),
		"result_key":       result.Output.Path,
		"result_mime_type": result.Output.MIMEType,
		"original_size":    result.SourceBytes,
		"result_size":      result.Output.Bytes,
		"width":            result.Output.Width,
		"height":           result.Output.Height,
	})

	outcome = domain.JobStatusDone
	span.SetStatus(codes.Ok, "processed")
	return nil
}

func (s *Server) process(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	switch req.SourceType {
	case domain.SourceTypeLocalFile:
		return s.localProcessor.Process(ctx, req)
	case domain.SourceTypeS3Presigned:
		if s.objectProcessor == nil {
			return pipeline.Result{}, fmt.Errorf("%w: object storage is not configured", pipeline.ErrUnsupportedSourceType)
		}
		return s.objectProcessor.Process(ctx, req)
	default:
		return pipeline.Result{}, fmt.Errorf("%w: %s", pipeline.ErrUnsupportedSourceType, req.SourceType)
	}
}

// fail records the failure and decides whether asynq should retry. The
// failure webhook only goes out once no retry is left.
func (s *Server) fail(ctx context.Context, span trace.Span, payload queue.ProcessImagePayload, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "pipeline failed")

	permanent := permanentFailure(err)
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	final := permanent || retried >= maxRetry

	s.logger.Printf("job failed job_id=%s permanent=%t retry=%d/%d err=%v", payload.JobID, permanent, retried, maxRetry, err)
	if s.jobStore != nil {
		if _, storeErr := s.jobStore.RecordFailure(ctx, payload.JobID, err.Error()); storeErr != nil && !errors.Is(storeErr, store.ErrJobNotFound) {
			s.logger.Printf("job failure record failed job_id=%s err=%v", payload.JobID, storeErr)
		}
	}

	if final {
		s.dispatchWebhook(ctx, payload, webhook.EventJobFailed, map[string]any{
			"job_id":       payload.JobID,
			"status":       domain.JobStatusError,
			"source_type":  payload.SourceType,
			"object_key":   payload.ObjectKey,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"error":        err.Error(),
		})
	}

	if permanent {
		return fmt.Errorf("run pipeline: %v: %w", err, asynq.SkipRetry)
	}
	return fmt.Errorf("run pipeline: %w", err)
}

// permanentFailure reports errors a retry cannot fix: bad input, bad config
// or a missing segmenter.
func permanentFailure(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidConfig,
		pipeline.ErrEmptyImage,
		pipeline.ErrInvalidMaskFormat,
		pipeline.ErrSegmenterUnavailable,
		pipeline.ErrUnsupportedSourceType,
		image.ErrFormat,
		fs.ErrNotExist,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// beginJob moves the stored job to processing. It returns false when the
// job already reached a state that must not be reprocessed.
func (s *Server) beginJob(ctx context.Context, jobID string) bool {
	if s.jobStore == nil {
		return true
	}

	_, err := s.jobStore.UpdateStatus(ctx, jobID, domain.JobStatusProcessing)
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrInvalidTransition):
		s.logger.Printf("job skipped job_id=%s err=%v", jobID, err)
		return false
	default:
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, domain.JobStatusProcessing, err)
		return true
	}
}

func (s *Server) recordResult(ctx context.Context, jobID string, result pipeline.Result) {
	if s.jobStore == nil {
		return
	}
	_, err := s.jobStore.RecordResult(ctx, jobID, domain.JobResult{
		ResultKey:      result.Output.Path,
		ResultMIMEType: result.Output.MIMEType,
		OriginalSize:   int64(result.SourceBytes),
		ResultSize:     int64(result.Output.Bytes),
	})
	if err != nil {
		s.logger.Printf("job result record failed job_id=%s err=%v", jobID, err)
	}
}

// dispatchWebhook delivers best effort. The client already retries, and a
// failed delivery must not reprocess a finished job.
func (s *Server) dispatchWebhook(ctx context.Context, payload queue.ProcessImagePayload, event string, body map[string]any) {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.metrics.webhookFailures.WithLabelValues(event).Inc()
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
	}
}

func (s *Server) recordUsage(ctx context.Context, jobID string, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	userID := "anonymous"
	if s.jobStore != nil {
		job, ok, err := s.jobStore.Get(ctx, jobID)
		if err != nil {
			s.logger.Printf("usage lookup failed job_id=%s err=%v", jobID, err)
		} else if ok && strings.TrimSpace(job.UserID) != "" {
			userID = job.UserID
		}
	}

	pixelsProcessed := int64(result.Output.Width * result.Output.Height)
	bytesSaved := max(0, int64(result.SourceBytes-result.Output.Bytes))
	computeTimeMS := max(1, computeDuration.Milliseconds())

	usage := domain.UsageLog{
		UserID:          userID,
		JobID:           jobID,
		OutputFormat:    string(result.Output.Format),
		PixelsProcessed: pixelsProcessed,
		BytesSaved:      bytesSaved,
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed job_id=%s err=%v", jobID, err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(pixelsProcessed))
	s.metrics.bytesSavedTotal.Add(float64(bytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}
