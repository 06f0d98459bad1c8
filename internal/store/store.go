// Package store implements the flat file store that holds recorded audio
// blobs. Files are keyed by opaque names under a single app data directory;
// callers never see full filesystem paths except through GetURI.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FileStore is the storage contract consumed by the recorder and playback
// layers.
type FileStore interface {
	Write(name string, data []byte) (uri string, err error)
	Read(name string) ([]byte, error)
	GetURI(name string) (string, error)
	Stat(name string) (size int64, err error)
	Delete(name string) error
}

// DirStore stores each blob as one file under a base directory.
type DirStore struct {
	fs  afero.Fs
	dir string
}

// New returns a DirStore rooted at dir on the OS filesystem.
func New(dir string) *DirStore {
	return &DirStore{fs: afero.NewOsFs(), dir: dir}
}

// NewWithFs returns a DirStore on the given filesystem. Tests use an
// in-memory afero filesystem.
func NewWithFs(fs afero.Fs, dir string) *DirStore {
	return &DirStore{fs: fs, dir: dir}
}

func (s *DirStore) Write(name string, data []byte) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(s.dir, name)
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	slog.Debug("file stored", "name", name, "bytes", len(data))
	return fileURI(path), nil
}

func (s *DirStore) Read(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

func (s *DirStore) GetURI(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)
	if _, err := s.fs.Stat(path); err != nil {
		return "", fmt.Errorf("file not found: %s", name)
	}
	return fileURI(path), nil
}

func (s *DirStore) Stat(name string) (int64, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}
	info, err := s.fs.Stat(filepath.Join(s.dir, name))
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", name, err)
	}
	return info.Size(), nil
}

func (s *DirStore) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := s.fs.Remove(filepath.Join(s.dir, name)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// validateName rejects names that would escape the data directory.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("file name is required")
	}
	if strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid file name: %s", name)
	}
	return nil
}

func fileURI(path string) string {
	return "file://" + filepath.ToSlash(path)
}
