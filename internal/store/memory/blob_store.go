package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// BlobStore is an in-memory domain.BlobWriter and domain.BlobReader.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]blobObject
}

type blobObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// NewBlobStore creates an empty store.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]blobObject)}
}

// Put stores data at path.
func (s *BlobStore) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("memory: put %s: %w", path, err)
	}
	s.mu.Lock()
	s.objects[path] = blobObject{data: b, contentType: contentType, modified: time.Now().UTC()}
	s.mu.Unlock()
	return nil
}

// PutMultipart stores data at path.
func (s *BlobStore) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return s.Put(ctx, path, data, "application/octet-stream")
}

// Get returns the object body or domain.ErrNotFound.
func (s *BlobStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[path]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory: get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// List returns objects under prefix sorted by path.
func (s *BlobStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := []domain.BlobInfo{}
	for p, obj := range s.objects {
		if strings.HasPrefix(p, prefix) {
			infos = append(infos, domain.BlobInfo{
				Path:         p,
				Size:         int64(len(obj.data)),
				ContentType:  obj.contentType,
				LastModified: obj.modified,
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// Exists reports whether path is stored.
func (s *BlobStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[path]
	return ok, nil
}

// Compile-time interface checks.
var (
	_ domain.BlobWriter = (*BlobStore)(nil)
	_ domain.BlobReader = (*BlobStore)(nil)
)
