// Package rdp launches remote desktop sessions for SwiftRDP.
//
// This package implements the launch side of the application:
//
//   - Client: starts the FreeRDP binary for a resolved connection
//   - WindowLister: enumerates top-level windows through an external tool
//   - Coordinator: resolves credentials, spawns the client and confirms
//     that its window appeared within a bounded time
//
// # Launch Flow
//
// A typical launch:
//
//  1. The user picks a connection (or a deep link names an address)
//  2. Coordinator.Connect chooses a login and a password
//  3. The client is started with the password on stdin
//  4. A probe goroutine polls the window list until the tagged window
//     shows up or the probe timeout expires
//  5. The result is posted to the UI loop; success stamps last_connected
//
// # Process Ownership
//
// The client process outlives the attempt. A timed-out or cancelled
// attempt stops probing but never kills the client: a slow session that
// eventually opens its window stays usable.
//
// # Thread Safety
//
// A Coordinator allows one attempt in flight; a second Connect while an
// attempt is probing fails with common.ErrBusy.
package rdp
