package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusError      = "error"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

type CreateJobRequest struct {
	SourceType string `json:"source_type"`
	UserID     string `json:"user_id,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`
	ObjectKey  string `json:"object_key,omitempty"`
	MIMEType   string `json:"mime_type,omitempty"`
	// Pipeline falls back to DefaultPipelineConfig when omitted.
	Pipeline *PipelineConfig `json:"pipeline,omitempty"`
}

type Job struct {
	ID             string
	UserID         string
	Status         string
	SourceType     string
	WebhookURL     string
	ObjectKey      string
	MIMEType       string
	Pipeline       PipelineConfig
	ResultKey      string
	ResultMIMEType string
	OriginalSize   int64
	ResultSize     int64
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// JobResult is what the worker records once a job reaches JobStatusDone.
type JobResult struct {
	ResultKey      string
	ResultMIMEType string
	OriginalSize   int64
	ResultSize     int64
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return errors.New("object_key is required for source_type=local_file")
	}
	if r.Pipeline != nil {
		if err := r.Pipeline.ValidateForRun(); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	}
	return nil
}

// PipelineConfig returns the requested config or the defaults.
func (r CreateJobRequest) PipelineConfig() PipelineConfig {
	if r.Pipeline == nil {
		return DefaultPipelineConfig()
	}
	return r.Pipeline.Normalize()
}

// CanStart reports whether a job in the given status may be (re)queued.
func CanStart(status string) bool {
	return status == JobStatusPending || status == JobStatusError
}

// ValidTransition reports whether a job may move from one status to another.
// Error jobs may re-enter processing when a task is retried.
func ValidTransition(from, to string) bool {
	switch from {
	case JobStatusPending:
		return to == JobStatusProcessing
	case JobStatusProcessing:
		return to == JobStatusProcessing || to == JobStatusDone || to == JobStatusError
	case JobStatusError:
		return to == JobStatusProcessing || to == JobStatusPending
	default:
		return false
	}
}
