package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// FileSystem is the storage port used for dialogue input and audio artifacts.
type FileSystem interface {
	EnsureDir(path string) error
	WriteFile(path string, data []byte) (string, error)
	ReadFile(path string) ([]byte, error)
	ListDir(path string) ([]string, error)
	Exists(path string) (bool, error)
	Remove(path string) error
}

// Local stores artifacts on an afero filesystem.
type Local struct {
	fs afero.Fs
}

// NewLocal returns a FileSystem backed by the operating system.
func NewLocal() *Local {
	return &Local{fs: afero.NewOsFs()}
}

// NewWithFs wraps an arbitrary afero filesystem.
func NewWithFs(fs afero.Fs) *Local {
	return &Local{fs: fs}
}

func (l *Local) Fs() afero.Fs { return l.fs }

func (l *Local) EnsureDir(path string) error {
	if err := l.fs.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// WriteFile creates missing parent directories and returns the written path.
func (l *Local) WriteFile(path string, data []byte) (string, error) {
	if err := l.EnsureDir(filepath.Dir(path)); err != nil {
		return "", err
	}
	if err := afero.WriteFile(l.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("write file %s: %w", path, err)
	}
	return path, nil
}

func (l *Local) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}
	return data, nil
}

// ListDir returns the sorted names of regular files in path.
func (l *Local) ListDir(path string) ([]string, error) {
	infos, err := afero.ReadDir(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("list directory %s: %w", path, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.Mode().IsRegular() {
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (l *Local) Exists(path string) (bool, error) {
	ok, err := afero.Exists(l.fs, path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return ok, nil
}

// Remove deletes a file. A missing file is not an error.
func (l *Local) Remove(path string) error {
	if err := l.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
