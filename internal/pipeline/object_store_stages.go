package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/storage"
)

const SourceTypeS3Presigned = domain.SourceTypeS3Presigned

type ObjectStoreFetcher struct {
	Storage *storage.Client
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if !strings.EqualFold(req.SourceType, SourceTypeS3Presigned) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Storage.ReadObject(ctx, req.ObjectKey)
}

// ObjectStoreEmitter uploads results under <prefix>/<job id>/result.<ext>.
type ObjectStoreEmitter struct {
	Storage      *storage.Client
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, encoded Encoded) (Output, error) {
	if e.Storage == nil {
		return Output{}, errors.New("storage client is required")
	}

	objectKey := ResultObjectKey(e.OutputPrefix, req.JobID, encoded.Format)
	if err := e.Storage.WriteObject(ctx, objectKey, encoded.Data, encoded.MIMEType); err != nil {
		return Output{}, err
	}
	return outputFor(objectKey, encoded), nil
}

// ResultObjectKey is the storage key a job result is written to.
func ResultObjectKey(prefix, jobID string, format Format) string {
	return path.Join(defaultOutputPrefix(prefix), sanitizePathToken(jobID), resultFilename(format))
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "outputs"
	}
	return prefix
}
