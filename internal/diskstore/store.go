// Package diskstore persists encoded image bytes in a private directory.
// Files are written whole and read whole; nothing here touches the network.
package diskstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotFound    = errors.New("image not found on disk")
	ErrInvalidName = errors.New("invalid image filename")
)

// tempDir holds partially written files until they are renamed into place.
const tempDir = ".tmp"

// Store is a disk-backed image store. It is safe for concurrent use; writes of
// the same name are last-writer-wins.
type Store struct {
	fs  billy.Filesystem
	log logrus.FieldLogger

	// Guards Purge against concurrent writes.
	mu sync.RWMutex
}

// Open returns a Store rooted at dir, creating it if needed.
func Open(dir string, log logrus.FieldLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return New(osfs.New(dir), log), nil
}

// New wraps an existing filesystem; tests pass a memfs.
func New(fs billy.Filesystem, log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		fs:  fs,
		log: log.WithField("component", "diskstore"),
	}
}

// Read returns the bytes stored under name.
func (s *Store) Read(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// Write stores data under name. The file appears atomically: readers see
// either the previous content or all of data.
func (s *Store) Write(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.log.WithFields(logrus.Fields{"file": name, "bytes": len(data)})

	if err := s.fs.MkdirAll(tempDir, 0o700); err != nil {
		log.WithError(err).Error("Failed to create temp directory")
		return fmt.Errorf("creating temp directory: %w", err)
	}

	tmp, err := s.fs.TempFile(tempDir, "img-")
	if err != nil {
		log.WithError(err).Error("Failed to create temp file")
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		log.WithError(err).Error("Failed to write image")
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := s.fs.Rename(tmpName, name); err != nil {
		s.fs.Remove(tmpName)
		log.WithError(err).Error("Failed to move image into place")
		return fmt.Errorf("renaming %s: %w", name, err)
	}

	log.Debug("Image written to disk")
	return nil
}

// Delete removes name. A missing file counts as success.
func (s *Store) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.fs.Remove(name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		s.log.WithError(err).WithField("file", name).Error("Failed to delete image")
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	return nil
}

// Exists reports whether name is stored.
func (s *Store) Exists(name string) bool {
	if validateName(name) != nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.fs.Stat(name)
	return err == nil
}

// Size returns the total number of bytes stored.
func (s *Store) Size() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.fs.ReadDir("/")
	if err != nil {
		return 0, fmt.Errorf("listing cache directory: %w", err)
	}
	var total int64
	for _, e := range entries {
		if !e.IsDir() {
			total += e.Size()
		}
	}
	return total, nil
}

// Purge removes every stored image.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.fs.ReadDir("/")
	if err != nil {
		return fmt.Errorf("listing cache directory: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := s.fs.Remove(e.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("deleting %s: %w", e.Name(), err)
		}
		removed++
	}
	s.log.WithField("removed", removed).Info("Purged disk image cache")
	return nil
}

func validateName(name string) error {
	if !isPlainName(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
