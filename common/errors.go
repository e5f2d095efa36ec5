// Package common provides shared constants, types, and utilities
// used across the SwiftRDP application.
package common

import "errors"

// Sentinel errors for SwiftRDP operations.
// These can be checked with errors.Is() for proper error handling.
var (
	// Storage errors.
	ErrStorage         = errors.New("storage error")
	ErrProfileNotFound = errors.New("connection not found")
	ErrDuplicateName   = errors.New("connection name already exists")
	// ErrDuplicateAddress is a warning: callers may confirm and proceed.
	ErrDuplicateAddress = errors.New("address already used by another connection")
	ErrInvalidProfile   = errors.New("invalid connection data")
	ErrInvalidArchive   = errors.New("invalid backup archive")

	// Launch errors.
	ErrNoCredential     = errors.New("no credential available")
	ErrLaunch           = errors.New("remote desktop client could not be started")
	ErrConnectionFailed = errors.New("connection could not be confirmed")
	ErrBusy             = errors.New("another connection attempt is in progress")
	ErrCancelled        = errors.New("operation cancelled")

	// Master passphrase errors.
	ErrPassphraseMismatch = errors.New("master passphrase does not match")
	ErrVaultLocked        = errors.New("master passphrase not unlocked")
	ErrNoPassphrase       = errors.New("no master passphrase configured")
	ErrPassphraseExists   = errors.New("master passphrase already configured")

	// Credential store errors.
	ErrCredentialsNotFound = errors.New("credentials not found")

	// Single-instance errors.
	ErrAlreadyRunning = errors.New("another instance is already running")

	// Configuration errors.
	ErrConfigLoad = errors.New("failed to load configuration")
	ErrConfigSave = errors.New("failed to save configuration")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}

// StorageError marks a file-level failure so that errors.Is(err, ErrStorage)
// holds while the underlying os error stays reachable.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// NewStorageError returns nil when err is nil.
func NewStorageError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Path: path, Err: err}
}
