// Package persist keeps the single state byte that survives a power cycle.
package persist

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

type Store interface {
	Load() (byte, error)
	Store(v byte) error
}

// File stores the byte at offset 0 of a file. Writes are skipped when the
// value is unchanged and synced to disk otherwise.
type File struct {
	mu   sync.Mutex
	path string
	last byte
	read bool
}

func NewFile(path string) *File {
	return &File{path: path}
}

// Load returns 0 if the file does not exist yet.
func (f *File) Load() (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fh, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		f.last, f.read = 0, true
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer fh.Close()
	buf := make([]byte, 1)
	if _, err := fh.ReadAt(buf, 0); err != nil {
		if err == io.EOF {
			f.last, f.read = 0, true
			return 0, nil
		}
		return 0, fmt.Errorf("reading %q: %w", f.path, err)
	}
	f.last, f.read = buf[0], true
	return buf[0], nil
}

func (f *File) Store(v byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.read && f.last == v {
		return nil
	}
	fh, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	if _, err := fh.WriteAt([]byte{v}, 0); err != nil {
		fh.Close()
		return fmt.Errorf("writing %q: %w", f.path, err)
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		return fmt.Errorf("syncing %q: %w", f.path, err)
	}
	if err := fh.Close(); err != nil {
		return err
	}
	f.last, f.read = v, true
	return nil
}

// Memory is a Store for tests and for variants without persistence.
type Memory struct {
	mu     sync.Mutex
	value  byte
	writes int
}

func (m *Memory) Load() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.value, nil
}

func (m *Memory) Store(v byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = v
	m.writes++
	return nil
}

// Writes returns how many times Store was called.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
