package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrKeyNotFound is returned by KV implementations for absent keys
var ErrKeyNotFound = errors.New("key not found")

// KV persists whole-collection JSON blobs under fixed keys
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryKV keeps blobs in a map. Used for tests and ephemeral runs.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Close() error { return nil }

// FileKV stores each key as <dir>/<key>.json
type FileKV struct {
	dir string
}

func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, eris.Wrapf(err, "file kv: create %s", dir)
	}
	return &FileKV{dir: dir}, nil
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.dir, strings.ReplaceAll(key, string(filepath.Separator), "_")+".json")
}

func (f *FileKV) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "file kv: read %s", key)
	}
	return data, nil
}

// Put writes to a temporary file first and renames it into place
func (f *FileKV) Put(_ context.Context, key string, value []byte) error {
	path := f.path(key)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, value, 0644); err != nil {
		return eris.Wrapf(err, "file kv: write %s", key)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return eris.Wrapf(err, "file kv: rename %s", key)
	}
	return nil
}

func (f *FileKV) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "file kv: delete %s", key)
	}
	return nil
}

func (f *FileKV) Close() error { return nil }
