// Package common provides shared constants, types, utilities, and interfaces
// used throughout the SwiftRDP application.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: application names, file names, probe timeouts, tool names
//   - Errors: sentinel errors checked with errors.Is across packages
//   - Interfaces: Dispatcher (UI loop hand-off), Notifier, Logger
//   - Logger: leveled logging to stderr and a rotating log file
//   - Utils: config directory resolution and atomic file writes
//
// # Usage
//
//	dir, err := common.GetConfigDir()
//	if err != nil {
//	    common.LogError("config directory unavailable: %v", err)
//	}
//
//	if errors.Is(err, common.ErrDuplicateName) {
//	    // ask for another name
//	}
package common
