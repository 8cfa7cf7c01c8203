package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Electrostatics/apbs-aws/internal/models"
)

// MemoryStore is a map-backed ObjectStore used in tests. Keys listed in
// FailKeys error on every operation, which lets tests exercise the
// download/upload failure paths.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string][]byte // "<bucket>/<key>" -> body
	FailKeys map[string]bool

	// Puts records every successful write as "<bucket>/<key>" in order, so
	// tests can assert upload ordering.
	Puts []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string][]byte),
		FailKeys: make(map[string]bool),
	}
}

func (m *MemoryStore) path(bucket, key string) string {
	return bucket + "/" + key
}

// Seed stores an object without error checking, for test setup.
func (m *MemoryStore) Seed(bucket, key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[m.path(bucket, key)] = body
}

// Object returns a stored object's body and whether it exists.
func (m *MemoryStore) Object(bucket, key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.objects[m.path(bucket, key)]
	return body, ok
}

// Keys returns every stored "<bucket>/<key>" path.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}

func (m *MemoryStore) GetBytes(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailKeys[key] {
		return nil, fmt.Errorf("injected failure for %s", key)
	}
	body, ok := m.objects[m.path(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", bucket, key, models.ErrNoSuchKey)
	}
	return body, nil
}

func (m *MemoryStore) GetString(ctx context.Context, bucket, key string) (string, error) {
	body, err := m.GetBytes(ctx, bucket, key)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (m *MemoryStore) PutBytes(ctx context.Context, bucket, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailKeys[key] {
		return fmt.Errorf("injected failure for %s", key)
	}
	m.objects[m.path(bucket, key)] = append([]byte(nil), body...)
	m.Puts = append(m.Puts, m.path(bucket, key))
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailKeys[key] {
		return false, fmt.Errorf("injected failure for %s", key)
	}
	_, ok := m.objects[m.path(bucket, key)]
	return ok, nil
}

func (m *MemoryStore) Copy(ctx context.Context, srcBucket, srcKey, destKey, destBucket string) error {
	if destBucket == "" {
		destBucket = srcBucket
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[m.path(srcBucket, srcKey)]
	if !ok {
		return fmt.Errorf("copy %s/%s: %w", srcBucket, srcKey, models.ErrNoSuchKey)
	}
	m.objects[m.path(destBucket, destKey)] = append([]byte(nil), body...)
	return nil
}

func (m *MemoryStore) DownloadFile(ctx context.Context, bucket, key, path string) error {
	body, err := m.GetBytes(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, body, 0644)
}

func (m *MemoryStore) UploadFile(ctx context.Context, path, bucket, key string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.PutBytes(ctx, bucket, key, body)
}

func (m *MemoryStore) PresignPut(bucket, key string, expirySeconds int64) (string, error) {
	if m.FailKeys[key] {
		return "", fmt.Errorf("injected presign failure for %s", key)
	}
	return fmt.Sprintf("https://%s.example.test/%s?sig=test&expires=%d", bucket, key, expirySeconds), nil
}
