// Package common provides shared constants, types, and utilities
// used across the SwiftRDP application.
package common

// Dispatcher hands a function to the UI loop.
// Background goroutines never touch UI state directly; they Post instead.
type Dispatcher interface {
	Post(fn func())
}

// DispatcherFunc adapts a plain function to the Dispatcher interface.
type DispatcherFunc func(fn func())

// Post calls f(fn).
func (f DispatcherFunc) Post(fn func()) {
	f(fn)
}

// Inline runs posted functions on the caller's goroutine.
// Only suitable for tests and one-shot CLI commands without a loop.
var Inline Dispatcher = DispatcherFunc(func(fn func()) { fn() })

// Notifier defines the interface for sending notifications.
type Notifier interface {
	// Notify sends a notification with the given title and message.
	Notify(title, message string) error
	// NotifyWithIcon sends a notification with a custom icon.
	NotifyWithIcon(title, message, icon string) error
}

// Logger defines the interface for leveled logging.
type Logger interface {
	// Debug logs a debug message.
	Debug(msg string, args ...interface{})
	// Info logs an informational message.
	Info(msg string, args ...interface{})
	// Warn logs a warning message.
	Warn(msg string, args ...interface{})
	// Error logs an error message.
	Error(msg string, args ...interface{})
}
