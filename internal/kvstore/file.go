package kvstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/sreq-inc/solo/internal/errdef"
)

// File keeps every key in one JSON object on disk. The whole object is
// rewritten through a temp file on each mutation.
type File struct {
	path   string
	values map[string]string
	mu     sync.RWMutex
	loaded bool
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ensureLoadedLocked()
}

func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoadedLocked(); err != nil {
		return "", false, err
	}
	value, ok := f.values[key]
	return value, ok, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoadedLocked(); err != nil {
		return err
	}

	next := cloneValues(f.values)
	next[key] = value
	if err := f.persist(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoadedLocked(); err != nil {
		return err
	}
	if _, ok := f.values[key]; !ok {
		return nil
	}

	next := cloneValues(f.values)
	delete(next, key)
	if err := f.persist(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

func (f *File) Keys() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureLoadedLocked(); err != nil {
		return nil, err
	}
	return sortedKeys(f.values), nil
}

func (f *File) persist(values map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "create store dir")
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "encode store")
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "write store tmp")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errdef.Wrap(errdef.CodeFilesystem, err, "replace store file")
	}
	return nil
}

func (f *File) ensureLoadedLocked() error {
	if f.loaded {
		return nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.values = map[string]string{}
			f.loaded = true
			return nil
		}
		return errdef.Wrap(errdef.CodeStorage, err, "read store")
	}

	values := map[string]string{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			return errdef.Wrap(errdef.CodeMalformed, err, "parse store %s", f.path)
		}
	}
	f.values = values
	f.loaded = true
	return nil
}

func cloneValues(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
