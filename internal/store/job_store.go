package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/cutout/internal/domain"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Job, error)
	// RecordResult moves a processing job to done and stores its output.
	RecordResult(ctx context.Context, id string, result domain.JobResult) (domain.Job, error)
	// RecordFailure moves a processing job to error with the failure message.
	RecordFailure(ctx context.Context, id, message string) (domain.Job, error)
}

type UsageStore interface {
	CreateUsageLog(ctx context.Context, usage domain.UsageLog) error
}

func checkTransition(id, from, to string) error {
	if !domain.ValidTransition(from, to) {
		return fmt.Errorf("%w: job %s %s -> %s", ErrInvalidTransition, id, from, to)
	}
	return nil
}

// Store is a job store that also records usage.
type Store interface {
	JobStore
	UsageStore
}

// Open returns a Postgres store when dsn is set and an in-memory store
// otherwise. The returned close func is never nil.
func Open(ctx context.Context, dsn string) (Store, func() error, error) {
	if strings.TrimSpace(dsn) == "" {
		return NewMemoryJobStore(), func() error { return nil }, nil
	}
	pg, err := NewPostgresJobStore(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}
