// Package common provides shared constants, types, and utilities
// used across the SwiftRDP application.
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GetConfigDir returns the path to the application configuration directory.
// It creates the directory if it doesn't exist. SWIFTRDP_CONFIG_DIR overrides
// the default location.
func GetConfigDir() (string, error) {
	if dir := os.Getenv("SWIFTRDP_CONFIG_DIR"); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", NewStorageError("create", dir, err)
		}
		return dir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", WrapError(err, "failed to get home directory")
	}

	configDir := filepath.Join(homeDir, ".config", ConfigDirName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", NewStorageError("create", configDir, err)
	}

	return configDir, nil
}

// CheckWritable verifies that dir accepts new files.
// An unwritable config directory is fatal at startup.
func CheckWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return NewStorageError("write", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// FileExists checks if a file exists at the given path.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// AtomicWriteFile replaces path with data using a temp file, fsync and rename,
// so readers only ever see the old or the new content.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return NewStorageError("write", path, err)
	}
	tmpPath := tmp.Name()

	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return NewStorageError("write", path, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return NewStorageError("write", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return NewStorageError("rename", path, err)
	}
	return nil
}

// ReadScalar reads a single-line value file. A missing file yields "".
func ReadScalar(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", NewStorageError("read", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteScalar atomically stores a single-line value file.
func WriteScalar(path, value string) error {
	if strings.ContainsAny(value, "\r\n") {
		return fmt.Errorf("value for %s must be a single line", filepath.Base(path))
	}
	return AtomicWriteFile(path, []byte(value+"\n"), 0600)
}

// StringInSlice checks if a string is in a slice.
func StringInSlice(s string, slice []string) bool {
	for _, item := range slice {
		if item == s {
			return true
		}
	}
	return false
}

// RemoveFromSlice removes all occurrences of a string from a slice.
func RemoveFromSlice(slice []string, s string) []string {
	result := make([]string, 0, len(slice))
	for _, item := range slice {
		if item != s {
			result = append(result, item)
		}
	}
	return result
}

// SplitList splits a comma-separated value, trimming blanks and dropping
// empty entries.
func SplitList(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
