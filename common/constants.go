// Package common provides shared constants, types, and utilities
// used across the SwiftRDP application.
package common

import "time"

// Application metadata.
const (
	// AppName is the display name of the application.
	AppName = "SwiftRDP"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "swiftrdp"
	// DeepLinkScheme is the URL scheme registered for deep links.
	DeepLinkScheme = "rdp"
	// WindowMarker prefixes every client window title so the window
	// lister output can be matched against a launch.
	WindowMarker = "SwiftRDP"
	// NeverConnected is stored in last_connected until a launch succeeds.
	NeverConnected = "N/A"
	// TimestampLayout is the format of last_connected values.
	TimestampLayout = "2006-01-02 15:04:05"
)

// File names used by the application.
const (
	ConnectionsFileName    = "connections.txt"
	GroupsFileName         = "groups.txt"
	SettingsFileName       = "settings.yaml"
	HistoryFileName        = "history.db"
	SocketFileName         = "swiftrdp.sock"
	LogFileName            = "swiftrdp.log"
	LanguageFileName       = "language"
	ThemeFileName          = "theme"
	DisplayModeFileName    = "display_mode"
	MasterHashFileName     = "master.hash"
	DefaultHandlerFileName = "default_handler"
)

// Default timeouts and intervals.
const (
	// ProbeTimeout bounds how long a launch waits for the client window.
	ProbeTimeout = 15 * time.Second
	// ProbeInterval is the delay between two window listings.
	ProbeInterval = 1 * time.Second
	// ListerTimeout bounds a single window-lister invocation.
	ListerTimeout = 3 * time.Second
	// RendezvousTimeout bounds reads and writes on the single-instance socket.
	RendezvousTimeout = 2 * time.Second
	// RotationCheckInterval is how often the leader checks log rotation.
	RotationCheckInterval = 10 * time.Minute
)

// External tools.
const (
	ClientX11     = "xfreerdp"
	ClientWayland = "wlfreerdp"
	WindowLister  = "wmctrl"
)

// Theme values.
const (
	ThemeAuto  = "auto"
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Display modes. Tabs is stored but has no behavior.
const (
	DisplayWindow = "window"
	DisplayTabs   = "tabs"
)

// DefaultLanguage is used until the user picks one.
const DefaultLanguage = "en"
