package domain

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

// BlobInfo describes one stored object. Month is filled in for monthly
// event archives.
type BlobInfo struct {
	Path         string    `json:"path"`
	Month        string    `json:"month,omitempty"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// ArchiveMonth returns the "YYYY-MM" month an archive key such as
// "archive/qx_events/2025-01.jsonl" covers.
func ArchiveMonth(key string) (string, bool) {
	base := path.Base(key)
	month := strings.TrimSuffix(base, path.Ext(base))
	if _, err := time.Parse("2006-01", month); err != nil {
		return "", false
	}
	return month, true
}

// BlobReader reads object storage.
type BlobReader interface {
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobWriter writes object storage. PutMultipart is for payloads past the
// single-request size limit.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver copies events older than a cutoff to cold storage and reports
// how many rows it wrote.
type Archiver interface {
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
}
