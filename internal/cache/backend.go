package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio"
)

var (
	// ErrNotFound means the backend holds no document yet.
	ErrNotFound = errors.New("cache document not found")
	// ErrCorrupt means the stored document could not be decoded.
	ErrCorrupt = errors.New("cache document corrupt")
)

// Backend reads and writes one whole cache document.
// Read returns ErrNotFound when no document has been written.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// FileBackend stores the document in a single local file. Writes go to a
// temporary file that is renamed over the target, so readers never observe a
// partially written document.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the document location.
func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	return data, nil
}

func (b *FileBackend) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := renameio.WriteFile(b.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", b.path, err)
	}
	return nil
}

// MemoryBackend keeps the document in process memory. Used by tests and by
// the "memory" cache backend setting.
type MemoryBackend struct {
	mu   sync.RWMutex
	data []byte
	set  bool
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.set {
		return nil, ErrNotFound
	}
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out, nil
}

func (b *MemoryBackend) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data[:0:0], data...)
	b.set = true
	return nil
}
