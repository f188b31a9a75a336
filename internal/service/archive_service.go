package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// maxHistory caps one archive history page.
const maxHistory = 200

// ArchiveService lists the monthly event archives and the audit trail of the
// runs that wrote them.
type ArchiveService struct {
	reader domain.BlobReader
	audit  domain.AuditStore
	prefix string
}

// NewArchiveService creates an ArchiveService over objects under prefix.
// reader and audit may be nil when the process has no archive backend.
func NewArchiveService(reader domain.BlobReader, audit domain.AuditStore, prefix string) *ArchiveService {
	return &ArchiveService{reader: reader, audit: audit, prefix: prefix}
}

// List returns archive objects, newest month first.
func (s *ArchiveService) List(ctx context.Context) ([]domain.BlobInfo, error) {
	if s.reader == nil {
		return []domain.BlobInfo{}, nil
	}
	infos, err := s.reader.List(ctx, s.prefix)
	if err != nil {
		return nil, fmt.Errorf("archive_service: list: %w", err)
	}
	for i := range infos {
		infos[i].Month, _ = domain.ArchiveMonth(infos[i].Path)
	}
	slices.SortFunc(infos, func(a, b domain.BlobInfo) int { return cmp.Compare(b.Path, a.Path) })
	return infos, nil
}

// History returns the most recent archive audit entries. limit is clamped to
// [1, 200].
func (s *ArchiveService) History(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if s.audit == nil {
		return []domain.AuditEntry{}, nil
	}
	entries, err := s.audit.List(ctx, domain.ListOpts{
		Event: domain.AuditEventArchive,
		Limit: min(max(limit, 1), maxHistory),
	})
	if err != nil {
		return nil, fmt.Errorf("archive_service: history: %w", err)
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	return entries, nil
}
