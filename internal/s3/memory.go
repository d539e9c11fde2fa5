package s3

import (
	"context"
	"sync"
)

// Memory is an in-process Client, used by tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memObject
}

type memObject struct {
	body        []byte
	contentType string
}

func NewMemory() *Memory {
	return &Memory{objects: map[string]memObject{}}
}

func (m *Memory) PutBytes(_ context.Context, key string, b []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{body: append([]byte(nil), b...), contentType: contentType}
	return nil
}

func (m *Memory) GetBytes(_ context.Context, key string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, "", ErrNotExist
	}
	return append([]byte(nil), o.body...), o.contentType, nil
}

func (m *Memory) ReadJSON(ctx context.Context, key string, out any) (bool, error) {
	return ReadJSON(ctx, m, key, out)
}

func (m *Memory) WriteJSON(ctx context.Context, key string, v any) error {
	return WriteJSON(ctx, m, key, v)
}
