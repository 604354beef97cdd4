package domain

import "time"

// UsageLog records what one finished job cost and saved.
type UsageLog struct {
	UserID          string
	JobID           string
	OutputFormat    string
	PixelsProcessed int64
	BytesSaved      int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
