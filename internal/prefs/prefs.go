// Package prefs is the client's small key/value store for local state: theme,
// language and the recently visited list. It plays the role a browser's
// localStorage would.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Keys used by the client.
const (
	KeyTheme      = "wishlist-theme"
	KeyLanguage   = "wishlist-language"
	KeyRecentList = "wishlist-recent-list"
)

const fileName = "prefs.json"

// Store is a string-keyed store of string values.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// Memory is an in-memory Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: map[string]string{}}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// File is a Store persisted as one JSON object in a directory. Every write
// rewrites the whole file through a temp file and rename.
type File struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// OpenFile loads the store in dir, creating the directory if needed. A
// missing or unreadable-as-JSON file starts empty.
func OpenFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("prefs: creating state dir: %w", err)
	}

	f := &File{
		path:   filepath.Join(dir, fileName),
		values: map[string]string{},
	}

	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("prefs: reading %s: %w", f.path, err)
	}
	if err := json.Unmarshal(b, &f.values); err != nil || f.values == nil {
		// Corrupt state is treated as missing.
		f.values = map[string]string{}
	}
	return f, nil
}

// Path is the backing file.
func (f *File) Path() string {
	return f.path
}

func (f *File) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.values[key]
	f.values[key] = value
	if err := f.save(); err != nil {
		if had {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.values[key]
	if !had {
		return nil
	}
	delete(f.values, key)
	if err := f.save(); err != nil {
		f.values[key] = prev
		return err
	}
	return nil
}

// save must be called with f.mu held.
func (f *File) save() error {
	b, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("prefs: encoding: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), fileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("prefs: writing: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("prefs: writing: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prefs: writing: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("prefs: writing: %w", err)
	}
	return nil
}
