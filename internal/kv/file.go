package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// File is a Store persisted as one YAML mapping.
//
// The document is read once at open. Writes stay in memory until Flush,
// which writes a temporary file next to the target and renames it into
// place, so readers only ever see a complete document.
type File struct {
	mu      sync.Mutex
	path    string
	values  map[string]string
	durable map[string]string
	closed  bool
}

// OpenFile loads path, treating a missing file as empty.
func OpenFile(path string) (*File, error) {
	values := map[string]string{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if values == nil {
			values = map[string]string{}
		}
	}

	return &File{
		path:    path,
		values:  values,
		durable: maps.Clone(values),
	}, nil
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", false, ErrClosed
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.values[key] = value
	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	delete(f.values, key)
	return nil
}

// Flush atomically replaces the file with the current contents.
func (f *File) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	if maps.Equal(f.values, f.durable) {
		return nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f.values); err != nil {
		return fmt.Errorf("flush: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush: encode: %w", err)
	}

	if err := writeFileAtomic(f.path, buf.Bytes()); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	f.durable = maps.Clone(f.values)
	return nil
}

// Close discards unflushed writes.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
