package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// Memory keeps objects in process. It backs local development when no
// object store is configured.
type Memory struct {
	baseURL string

	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemory(baseURL string) *Memory {
	return &Memory{baseURL: baseURL, objects: make(map[string][]byte)}
}

func (m *Memory) Upload(ctx context.Context, bucket, objectPath string, r io.Reader, size int64, contentType string) (string, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if size >= 0 && n != size {
		return "", fmt.Errorf("short upload: got %d of %d bytes", n, size)
	}
	m.mu.Lock()
	m.objects[bucket+"/"+objectPath] = buf.Bytes()
	m.mu.Unlock()
	return m.PublicURL(bucket, objectPath), nil
}

func (m *Memory) PublicURL(bucket, objectPath string) string {
	return PublicURL(m.baseURL, bucket, objectPath)
}

func (m *Memory) Delete(ctx context.Context, bucket, objectPath string) error {
	m.mu.Lock()
	delete(m.objects, bucket+"/"+objectPath)
	m.mu.Unlock()
	return nil
}

// Get returns a stored object.
func (m *Memory) Get(bucket, objectPath string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket+"/"+objectPath]
	return data, ok
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
