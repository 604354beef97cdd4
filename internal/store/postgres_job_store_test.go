package store

import (
	"context"
	"testing"
	"time"

	"github.com/dunamismax/cutout/internal/domain"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// TestPostgresJobStore needs Docker and is skipped in short mode.
func TestPostgresJobStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("cutout_test"),
		postgres.WithUsername("cutout"),
		postgres.WithPassword("cutout"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	s, err := NewPostgresJobStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresJobStore returned error: %v", err)
	}
	defer s.Close()

	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema should be idempotent: %v", err)
	}

	exerciseJobStore(t, s)

	if err := s.CreateUsageLog(ctx, domain.UsageLog{
		UserID:          "user-1",
		JobID:           "job-1",
		OutputFormat:    "PNG",
		PixelsProcessed: 40_000,
		BytesSaved:      600,
		ComputeTimeMS:   12,
		CreatedAt:       time.Now().UTC(),
	}); err != nil {
		t.Fatalf("CreateUsageLog returned error: %v", err)
	}

	var saved int64
	if err := s.db.QueryRowContext(ctx, `SELECT bytes_saved FROM usage_logs WHERE job_id = $1`, "job-1").Scan(&saved); err != nil {
		t.Fatalf("query usage log: %v", err)
	}
	if saved != 600 {
		t.Fatalf("expected bytes_saved=600, got %d", saved)
	}
}
