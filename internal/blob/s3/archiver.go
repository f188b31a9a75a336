package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

const (
	// ArchivePrefix is the key prefix of every event archive object.
	ArchivePrefix    = "archive/qx_events/"
	jsonlContentType = "application/x-ndjson"
)

// EventArchiveStore lists events for archival.
type EventArchiveStore interface {
	// ListBefore returns events created strictly before the cutoff, oldest
	// first.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Event, error)
}

// EventArchiver implements domain.Archiver. Events are written as JSONL,
// one object per calendar month of created_at, and each upload is recorded
// in the audit log. Rows stay in the primary store.
type EventArchiver struct {
	writer domain.BlobWriter
	events EventArchiveStore
	audit  domain.AuditStore
}

// NewArchiver creates an EventArchiver.
func NewArchiver(writer domain.BlobWriter, events EventArchiveStore, audit domain.AuditStore) *EventArchiver {
	return &EventArchiver{writer: writer, events: events, audit: audit}
}

// ArchiveEvents uploads every event created before the cutoff and returns
// the number of rows written. Month objects are overwritten on each run, so
// repeating an archive is harmless.
func (a *EventArchiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]domain.Event)
	for _, e := range events {
		m := e.CreatedAt.UTC().Format("2006-01")
		byMonth[m] = append(byMonth[m], e)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	var total int64
	for _, m := range months {
		rows := byMonth[m]
		buf, err := marshalJSONL(rows)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive events marshal %s: %w", m, err)
		}

		path := ArchivePath(m)
		if err := putSized(ctx, a.writer, path, buf); err != nil {
			return total, fmt.Errorf("s3blob: archive events upload: %w", err)
		}
		total += int64(len(rows))

		if err := a.audit.Log(ctx, domain.AuditEventArchive, map[string]any{
			"path":   path,
			"count":  len(rows),
			"bytes":  len(buf),
			"before": before.UTC().Format(time.RFC3339),
		}); err != nil {
			return total, fmt.Errorf("s3blob: archive events audit log: %w", err)
		}
	}

	return total, nil
}

// ArchivePath returns the object key for one month, e.g.
// archive/qx_events/2025-01.jsonl.
func ArchivePath(month string) string {
	return ArchivePrefix + month + ".jsonl"
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*EventArchiver)(nil)
