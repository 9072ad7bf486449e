package tourney

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileDocumentStore keeps one JSON file per document inside a directory.
type FileDocumentStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileDocumentStore(dir string) (*FileDocumentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &FileDocumentStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (f *FileDocumentStore) path(name string) string {
	return filepath.Join(f.dir, name+".json")
}

// lock returns the mutex guarding a single document file.
func (f *FileDocumentStore) lock(name string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[name]
	if !ok {
		l = &sync.Mutex{}
		f.locks[name] = l
	}
	return l
}

func (f *FileDocumentStore) Load(ctx context.Context, name string) (Document, error) {
	l := f.lock(name)
	l.Lock()
	data, err := os.ReadFile(f.path(name))
	l.Unlock()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return decodeDocument(data)
}

func (f *FileDocumentStore) Quarantine(ctx context.Context, name string) error {
	l := f.lock(name)
	l.Lock()
	defer l.Unlock()
	err := os.Rename(f.path(name), filepath.Join(f.dir, name+corruptSuffix))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrDocumentNotFound
	}
	return err
}

// Save writes to a temporary file next to the target and renames it into place.
func (f *FileDocumentStore) Save(ctx context.Context, name string, doc Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	l := f.lock(name)
	l.Lock()
	defer l.Unlock()

	tmp, err := os.CreateTemp(f.dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path(name)); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
