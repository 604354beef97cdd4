package domain

// ImageJob is one image in a local batch. The batch runner owns its status
// transitions.
type ImageJob struct {
	ID             string
	Name           string
	MIMEType       string
	Source         []byte
	Status         string
	OriginalSize   int64
	ResultSize     int64
	Result         []byte
	ResultMIMEType string
	Error          string
}

func NewImageJob(id, name, mimeType string, source []byte) *ImageJob {
	return &ImageJob{
		ID:           id,
		Name:         name,
		MIMEType:     mimeType,
		Source:       source,
		Status:       JobStatusPending,
		OriginalSize: int64(len(source)),
	}
}

// SizeDelta is the number of bytes saved (negative when the result grew).
func (j ImageJob) SizeDelta() int64 {
	if j.Status != JobStatusDone {
		return 0
	}
	return j.OriginalSize - j.ResultSize
}
