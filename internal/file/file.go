package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const appDirPerm os.FileMode = 0o750

// EnsureDir creates the directory if it does not exist.
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}
	if err := os.MkdirAll(dirPath, appDirPerm); err != nil { //nolint:gosec // app-owned data dir
		return fmt.Errorf("ensure dir: %w", err)
	}
	return nil
}

// WriteJSONAtomic marshals the value and atomically writes it to filename.
func WriteJSONAtomic(filename string, v any) error {
	if filename == "" {
		return errors.New("empty filename")
	}
	_, err := writeAtomic(filename, func(w io.Writer) (int64, error) {
		jsonEncoder := json.NewEncoder(w)
		jsonEncoder.SetIndent("", "  ")
		if err := jsonEncoder.Encode(v); err != nil {
			return 0, fmt.Errorf("encode json: %w", err)
		}
		return 0, nil
	})
	return err
}

// CopyAtomic streams reader into filename through a temp file in the same
// directory, so a failed transfer never leaves a truncated file behind.
// It returns the number of bytes written.
func CopyAtomic(filename string, reader io.Reader) (int64, error) {
	if filename == "" {
		return 0, errors.New("empty filename")
	}
	return writeAtomic(filename, func(w io.Writer) (int64, error) {
		written, err := io.Copy(w, reader)
		if err != nil {
			return written, fmt.Errorf("copy to temp: %w", err)
		}
		return written, nil
	})
}

// RemoveIfExists deletes filename, treating a missing file as success.
func RemoveIfExists(filename string) error {
	if err := os.Remove(filename); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", filepath.Base(filename), err)
	}
	return nil
}

func writeAtomic(filename string, write func(io.Writer) (int64, error)) (int64, error) {
	dir := filepath.Dir(filename)
	if err := EnsureDir(dir); err != nil {
		return 0, err
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp: %w", err)
	}
	tmpName := tempFile.Name()

	written, err := write(tempFile)
	if err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return written, err
	}

	// ensure data hits disk
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return written, fmt.Errorf("sync temp: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return written, fmt.Errorf("close temp: %w", err)
	}

	// remove existing file to avoid permission issues on Windows
	if _, err := os.Stat(filename); err == nil {
		_ = os.Remove(filename)
	}

	if err := os.Rename(tmpName, filename); err != nil {
		_ = os.Remove(tmpName)
		return written, fmt.Errorf("rename temp: %w", err)
	}
	return written, nil
}
