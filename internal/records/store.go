// Package records keeps the publish history index.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"multi-platform-rpa/internal/model"
	"multi-platform-rpa/internal/s3"
)

// DefaultMaxRecords caps the index when no limit is configured.
const DefaultMaxRecords = 500

// Store appends publish records to a bounded index, oldest dropped first.
type Store interface {
	Append(ctx context.Context, rec model.PublishRecord) (model.PublishRecord, error)
	Recent(ctx context.Context, n int) ([]model.PublishRecord, error)
}

// FromResult builds the record of one dispatched request.
func FromResult(req model.PublishRequest, res model.ExecutionResult, source string) model.PublishRecord {
	return model.PublishRecord{
		Platform:   req.Platform,
		Method:     res.Method,
		Title:      req.Content.Title,
		VideoPath:  req.Content.Video(),
		TabID:      res.TabID,
		Success:    res.Success,
		Error:      res.Error,
		ErrorKind:  res.ErrorKind,
		DurationMs: res.DurationMs,
		URL:        res.URL,
		Source:     source,
	}
}

// backend loads and saves the whole index.
type backend interface {
	load(ctx context.Context) (model.PublishRecordsIndex, error)
	save(ctx context.Context, idx model.PublishRecordsIndex) error
}

type indexStore struct {
	mu  sync.Mutex
	be  backend
	max int
	now func() time.Time
}

func newIndexStore(be backend, max int) *indexStore {
	if max <= 0 {
		max = DefaultMaxRecords
	}
	return &indexStore{be: be, max: max, now: time.Now}
}

func (s *indexStore) Append(ctx context.Context, rec model.PublishRecord) (model.PublishRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}

	idx, err := s.be.load(ctx)
	if err != nil {
		return rec, err
	}
	idx.Items = append(idx.Items, rec)
	if over := len(idx.Items) - s.max; over > 0 {
		idx.Items = append([]model.PublishRecord(nil), idx.Items[over:]...)
	}
	idx.UpdatedAt = rec.CreatedAt
	if err := s.be.save(ctx, idx); err != nil {
		return rec, err
	}
	return rec, nil
}

// Recent returns up to n records, newest first.
func (s *indexStore) Recent(ctx context.Context, n int) ([]model.PublishRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.be.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.PublishRecord, 0, min(n, len(idx.Items)))
	for i := len(idx.Items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, idx.Items[i])
	}
	return out, nil
}

type fileBackend struct{ path string }

// NewFileStore keeps the index in a local JSON file.
func NewFileStore(path string, max int) Store {
	return newIndexStore(fileBackend{path: path}, max)
}

func (f fileBackend) load(context.Context) (model.PublishRecordsIndex, error) {
	var idx model.PublishRecordsIndex
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return idx, nil
		}
		return idx, fmt.Errorf("read records: %w", err)
	}
	if err := json.Unmarshal(b, &idx); err != nil {
		return idx, fmt.Errorf("decode records %s: %w", f.path, err)
	}
	return idx, nil
}

func (f fileBackend) save(_ context.Context, idx model.PublishRecordsIndex) error {
	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

type s3Backend struct {
	c   s3.Client
	key string
}

// NewS3Store keeps the index as one JSON object in the bucket.
func NewS3Store(c s3.Client, key string, max int) Store {
	return newIndexStore(s3Backend{c: c, key: key}, max)
}

func (b s3Backend) load(ctx context.Context) (model.PublishRecordsIndex, error) {
	var idx model.PublishRecordsIndex
	if _, err := b.c.ReadJSON(ctx, b.key, &idx); err != nil {
		return idx, fmt.Errorf("read records %s: %w", b.key, err)
	}
	return idx, nil
}

func (b s3Backend) save(ctx context.Context, idx model.PublishRecordsIndex) error {
	return b.c.WriteJSON(ctx, b.key, idx)
}
