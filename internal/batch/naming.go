package batch

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/cutout/internal/domain"
)

var mimeExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// OutputName derives the download name for a processed image: the source
// base name with an extension taken from the result MIME type, falling back
// to the source extension and then png.
func OutputName(sourceName, resultMIME string) string {
	base, ext := splitName(filepath.Base(sourceName))
	if base == "" {
		base = "image"
	}

	out, ok := mimeExtensions[strings.ToLower(strings.TrimSpace(resultMIME))]
	if !ok {
		out = strings.TrimPrefix(ext, ".")
	}
	if out == "" {
		out = "png"
	}
	return base + "." + out
}

func splitName(name string) (base, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// Namer hands out unique names within one output set: the first "a.png"
// keeps its name, later ones become "a_1.png", "a_2.png" and so on.
type Namer struct {
	used map[string]bool
}

func NewNamer() *Namer {
	return &Namer{used: make(map[string]bool)}
}

func (n *Namer) Next(name string) string {
	if !n.used[name] {
		n.used[name] = true
		return name
	}
	base, ext := splitName(name)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if !n.used[candidate] {
			n.used[candidate] = true
			return candidate
		}
	}
}

// Written records where one job's result ended up.
type Written struct {
	JobID string
	Path  string
	Bytes int
}

// WriteOutputs writes every done job into dir. Existing files are never
// replaced; a colliding name gets the next free _N suffix.
func WriteOutputs(dir string, jobs []*domain.ImageJob) ([]Written, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	namer := NewNamer()
	var out []Written
	for _, job := range jobs {
		if job.Status != domain.JobStatusDone {
			continue
		}

		name := namer.Next(OutputName(job.Name, job.ResultMIMEType))
		path, err := writeExclusive(dir, name, bytes.NewReader(job.Result))
		if err != nil {
			return out, fmt.Errorf("write %s: %w", job.Name, err)
		}
		out = append(out, Written{JobID: job.ID, Path: path, Bytes: len(job.Result)})
	}
	return out, nil
}

// writeExclusive creates the first free name in dir and copies src into it.
// A failed write removes the partial file.
func writeExclusive(dir, name string, src io.Reader) (string, error) {
	base, ext := splitName(name)
	candidate := name
	for i := 1; ; i++ {
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
			continue
		}
		if err != nil {
			return "", err
		}

		_, err = io.Copy(f, src)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(path)
			return "", err
		}
		return path, nil
	}
}
