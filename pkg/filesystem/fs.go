package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// NewOS returns the OS backed filesystem
func NewOS() afero.Fs {
	return afero.NewOsFs()
}

// NewMemory returns an in-memory filesystem for tests
func NewMemory() afero.Fs {
	return afero.NewMemMapFs()
}

// Exists reports whether name exists. Errors other than "not exist" are returned.
func Exists(fsys afero.Fs, name string) (bool, error) {
	_, err := fsys.Stat(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// RemoveIfExists removes name, treating a missing file as success.
func RemoveIfExists(fsys afero.Fs, name string) error {
	if err := fsys.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// AtomicWriteFile writes data to a temporary file next to path and renames it
// into place, so readers see either the old or the new content.
func AtomicWriteFile(fsys afero.Fs, path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			_ = fsys.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err = fsys.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set temp file permissions: %w", err)
	}

	if err = fsys.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
