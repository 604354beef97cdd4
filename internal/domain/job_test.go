package domain

import (
	"errors"
	"testing"
)

func TestCreateJobRequestValidate(t *testing.T) {
	valid := CreateJobRequest{
		SourceType: SourceTypeS3Presigned,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	invalid := CreateJobRequest{}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected validation error for empty request")
	}

	missingObjectKey := CreateJobRequest{
		SourceType: SourceTypeLocalFile,
	}
	if err := missingObjectKey.Validate(); err == nil {
		t.Fatal("expected validation error for local_file object_key")
	}

	unsupportedSourceType := CreateJobRequest{
		SourceType: "http_url",
	}
	if err := unsupportedSourceType.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported source_type")
	}

	badPipeline := DefaultPipelineConfig()
	badPipeline.Compress.Quality = 0
	withBadPipeline := CreateJobRequest{
		SourceType: SourceTypeS3Presigned,
		Pipeline:   &badPipeline,
	}
	err := withBadPipeline.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestCreateJobRequestRejectsResizeWithoutTarget(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.Resize = ResizeConfig{Enabled: true}
	req := CreateJobRequest{SourceType: SourceTypeS3Presigned, Pipeline: &cfg}
	if err := req.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestCreateJobRequestPipelineNormalizesFormat(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.OutputFormat = "webp"
	req := CreateJobRequest{SourceType: SourceTypeS3Presigned, Pipeline: &cfg}
	if got := req.PipelineConfig().OutputFormat; got != OutputFormatWEBP {
		t.Fatalf("expected %q, got %q", OutputFormatWEBP, got)
	}
}

func TestCreateJobRequestPipelineDefaults(t *testing.T) {
	req := CreateJobRequest{SourceType: SourceTypeS3Presigned}
	cfg := req.PipelineConfig()
	if cfg.Compress.Quality != 60 {
		t.Fatalf("expected default quality 60, got %d", cfg.Compress.Quality)
	}
	if cfg.Resize.Width != 200 {
		t.Fatalf("expected default resize width 200, got %d", cfg.Resize.Width)
	}
}

func TestValidTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusDone, false},
		{JobStatusProcessing, JobStatusDone, true},
		{JobStatusProcessing, JobStatusError, true},
		{JobStatusDone, JobStatusProcessing, false},
		{JobStatusError, JobStatusProcessing, true},
		{JobStatusError, JobStatusPending, true},
	}
	for _, tc := range cases {
		if got := ValidTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("expected ValidTransition(%s, %s)=%v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
}

func TestImageJobSizeDelta(t *testing.T) {
	job := NewImageJob("1", "a.png", "image/png", make([]byte, 1000))
	if job.Status != JobStatusPending {
		t.Fatalf("expected pending, got %s", job.Status)
	}
	if job.SizeDelta() != 0 {
		t.Fatalf("expected no delta before completion, got %d", job.SizeDelta())
	}

	job.Status = JobStatusDone
	job.ResultSize = 400
	if job.SizeDelta() != 600 {
		t.Fatalf("expected delta 600, got %d", job.SizeDelta())
	}
}
