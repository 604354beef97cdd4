// Package batch drives a list of local image jobs through the pipeline one
// at a time.
package batch

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/pipeline"
)

// Processor is the part of *pipeline.Pipeline the runner needs.
type Processor interface {
	Run(ctx context.Context, in pipeline.Input, cfg domain.PipelineConfig) (pipeline.Encoded, error)
}

// Observer is called after every status change with a snapshot of the job.
type Observer func(job domain.ImageJob)

// Progress is advanced once per finished job. *progressbar.ProgressBar
// satisfies it.
type Progress interface {
	Add(n int) error
}

type Summary struct {
	Processed     int
	Failed        int
	Skipped       int
	OriginalBytes int64
	ResultBytes   int64
	Fallbacks     int
	Duration      time.Duration
}

// BytesSaved is negative when the outputs grew overall.
func (s Summary) BytesSaved() int64 {
	return s.OriginalBytes - s.ResultBytes
}

type Runner struct {
	processor Processor
	logger    *log.Logger
	observer  Observer
	progress  Progress
}

type Option func(*Runner)

func WithObserver(fn Observer) Option {
	return func(r *Runner) { r.observer = fn }
}

func WithProgress(p Progress) Option {
	return func(r *Runner) { r.progress = p }
}

func NewRunner(processor Processor, logger *log.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	r := &Runner{processor: processor, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes every pending job in order. A failing image is marked
// error and the batch moves on; only an invalid config or a cancelled ctx
// stop the batch early.
func (r *Runner) Run(ctx context.Context, jobs []*domain.ImageJob, cfg domain.PipelineConfig) (Summary, error) {
	if err := cfg.ValidateForRun(); err != nil {
		return Summary{}, err
	}

	started := time.Now()
	var sum Summary
	for _, job := range jobs {
		if job.Status != domain.JobStatusPending {
			sum.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			sum.Duration = time.Since(started)
			return sum, err
		}

		r.transition(job, domain.JobStatusProcessing)
		encoded, err := r.processor.Run(ctx, pipeline.Input{Data: job.Source, MIMEType: job.MIMEType}, cfg)
		if err != nil {
			job.Error = err.Error()
			r.transition(job, domain.JobStatusError)
			r.logger.Printf("image failed id=%s name=%s err=%v", job.ID, job.Name, err)
			sum.Failed++
			r.advance()
			continue
		}

		job.Result = encoded.Data
		job.ResultMIMEType = encoded.MIMEType
		job.ResultSize = int64(encoded.Size())
		job.Error = ""
		r.transition(job, domain.JobStatusDone)

		sum.Processed++
		sum.OriginalBytes += job.OriginalSize
		sum.ResultBytes += job.ResultSize
		if encoded.Fallback {
			sum.Fallbacks++
		}
		r.logger.Printf("image done id=%s name=%s format=%s original_bytes=%d result_bytes=%d",
			job.ID, job.Name, encoded.Format, job.OriginalSize, job.ResultSize)
		r.advance()
	}

	sum.Duration = time.Since(started)
	return sum, nil
}

func (r *Runner) transition(job *domain.ImageJob, status string) {
	job.Status = status
	if r.observer != nil {
		r.observer(*job)
	}
}

func (r *Runner) advance() {
	if r.progress == nil {
		return
	}
	if err := r.progress.Add(1); err != nil {
		r.logger.Printf("progress update failed err=%v", err)
	}
}
