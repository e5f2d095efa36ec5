// Package main provides the entry point for SwiftRDP.
// SwiftRDP is a connection manager for FreeRDP that stores named remote
// desktop profiles, launches the client against one of them and confirms
// that its window actually appeared.
//
// Features:
//   - Connection and group management in plain text files
//   - Per-connection passwords encrypted under a master passphrase
//   - rdp:// deep links handed to a single running session
//   - Compressed backup and restore of the registry
//   - Launch history
//
// Usage:
//
//	swiftrdp [options] [rdp://address]
//
// Environment:
//
//	The application requires xfreerdp or wlfreerdp and wmctrl.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/yllada/swiftrdp/app"
	"github.com/yllada/swiftrdp/cli"
	"github.com/yllada/swiftrdp/common"
	"github.com/yllada/swiftrdp/config"
	"github.com/yllada/swiftrdp/instance"
	"github.com/yllada/swiftrdp/registry"
)

// Build-time variables injected via ldflags (-X main.appVersion=x.y.z)
// Default values are used for local development builds
var (
	appVersion = "dev"
	buildTime  = "unknown"
	commitSHA  = "unknown"
)

var (
	// General flags
	showVersion = flag.Bool("version", false, "Show version and exit")
	verbose     = flag.Bool("verbose", false, "Enable verbose logging")
	showHelp    = flag.Bool("help", false, "Show help message")
	remember    = flag.Bool("remember", false, "Keep the master passphrase in the system keyring")
	saveTemp    = flag.Bool("save-temp", false, "Save ad-hoc connections without asking")

	// Connection flags
	listConnections = flag.Bool("list", false, "List all connections")
	listGroups      = flag.Bool("groups", false, "List all groups")
	addConnection   = flag.String("add", "", "Add a connection")
	editConnection  = flag.String("edit", "", "Edit a connection")
	deleteConn      = flag.String("delete", "", "Delete connections by name")
	newName         = flag.String("name", "", "New name for --edit")
	address         = flag.String("address", "", "Host name or IP address")
	logins          = flag.String("logins", "", "Comma separated user names")
	group           = flag.String("group", "", "Group name")
	note            = flag.String("note", "", "Free text note")
	askPassword     = flag.Bool("password", false, "Prompt for a password and store it encrypted")
	force           = flag.Bool("force", false, "Accept a duplicate address")
	addGroup        = flag.String("add-group", "", "Add a group")
	deleteGroup     = flag.String("delete-group", "", "Delete a group")
	connectName     = flag.String("connect", "", "Connect to a connection by name")
	showHistory     = flag.Bool("history", false, "Show recent connection attempts")
	historyFor      = flag.String("history-for", "", "Show recent attempts for one connection")

	// Backup flags
	backupDir  = flag.String("backup", "", "Write a backup archive to DIR")
	exportDir  = flag.String("export", "", "Write an export archive to DIR")
	importFile = flag.String("import", "", "Restore from an archive")

	// Master passphrase flags
	passwd           = flag.Bool("passwd", false, "Set or change the master passphrase")
	removePassphrase = flag.Bool("remove-passphrase", false, "Remove the master passphrase")

	// Preference flags
	setTheme    = flag.String("set-theme", "", "Set the theme (auto, light, dark)")
	setLanguage = flag.String("set-language", "", "Set the language")
	setMode     = flag.String("set-mode", "", "Set the display mode (window, tabs)")

	doctor = flag.Bool("doctor", false, "Check required external tools")
)

func main() {
	flag.Parse()

	// Handle help flag
	if *showHelp {
		cli.PrintHelp()
		os.Exit(0)
	}

	// Handle version flag
	if *showVersion {
		fmt.Printf("SwiftRDP v%s\n", appVersion)
		if buildTime != "unknown" {
			fmt.Printf("  Build:  %s\n", buildTime)
			fmt.Printf("  Commit: %s\n", commitSHA)
		}
		os.Exit(0)
	}

	configDir, err := common.GetConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger with structured logging and file output
	logLevel := common.LevelInfo
	if *verbose {
		logLevel = common.LevelDebug
	}

	if err := common.InitLogger(common.LogConfig{
		Level:       logLevel,
		EnableFile:  true,
		Dir:         filepath.Join(configDir, "logs"),
		MaxFileSize: 5 * 1024 * 1024, // 5MB
		MaxBackups:  5,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not initialize file logging: %v\n", err)
	}

	// Setup graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals (SIGINT, SIGTERM)
	setupSignalHandler(cancel)

	var exitCode int
	if hasCommand() {
		exitCode = runCLI(ctx, configDir)
	} else {
		exitCode = runSession(ctx, configDir)
	}

	if exitCode != 0 {
		common.LogWarn("Exiting with code %d", exitCode)
	}
	common.CloseLogger()
	os.Exit(exitCode)
}

// hasCommand reports whether any one-shot command flag was given.
func hasCommand() bool {
	return *listConnections || *listGroups || *addConnection != "" || *editConnection != "" ||
		*deleteConn != "" || *addGroup != "" || *deleteGroup != "" || *connectName != "" ||
		*showHistory || *historyFor != "" || *backupDir != "" || *exportDir != "" || *importFile != "" ||
		*passwd || *removePassphrase || *setTheme != "" || *setLanguage != "" ||
		*setMode != "" || *doctor
}

// runSession becomes the leader or hands its argument to the running one.
// Nothing under the config directory is read before that decision, and a
// follower forwards the argument unchecked; the leader drops anything that
// is not a deep link.
func runSession(ctx context.Context, configDir string) int {
	arg := flag.Arg(0)

	socketPath := filepath.Join(configDir, common.SocketFileName)
	leader, err := instance.Acquire(socketPath)
	if errors.Is(err, common.ErrAlreadyRunning) {
		if arg == "" {
			common.LogInfo("%s is already running", common.AppName)
			return 0
		}
		if err := instance.Forward(socketPath, arg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		common.LogDebug("Forwarded %s to the running instance", arg)
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer leader.Close()

	target := ""
	if arg != "" {
		var ok bool
		if target, ok = instance.ParseDeepLink(arg); !ok {
			fmt.Fprintf(os.Stderr, "Error: %q is not an %s:// link\n", arg, common.DeepLinkScheme)
			return 1
		}
	}

	cliApp, code := openCLI(configDir)
	if cliApp == nil {
		return code
	}
	defer cliApp.Close()

	if err := cliApp.Unlock(); err != nil {
		common.LogError("Master passphrase rejected: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	common.LogInfo("Starting %s v%s", common.AppName, appVersion)
	if err := cliApp.Session(ctx, leader, target); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// openCLI loads settings and opens the stores.
func openCLI(configDir string) (*cli.CLI, int) {
	settings, err := config.LoadSettings(configDir)
	if err != nil {
		common.LogWarn("Using default settings: %v", err)
		settings = config.DefaultSettings()
	}
	if !*verbose {
		common.GetLogger().SetLevel(common.ParseLevel(settings.LogLevel))
	}

	console := cli.NewConsole(os.Stdin, os.Stdout)
	cliApp, err := cli.New(configDir, settings, console, app.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, 1
	}
	cliApp.SetRemember(*remember)
	cliApp.SetAutoSaveTemporary(*saveTemp)
	return cliApp, 0
}

// runCLI handles command-line interface operations.
// It accepts a context for graceful shutdown support.
func runCLI(ctx context.Context, configDir string) int {
	cliApp, code := openCLI(configDir)
	if cliApp == nil {
		return code
	}
	defer cliApp.Close()

	// Check if context is already cancelled before proceeding
	select {
	case <-ctx.Done():
		common.LogInfo("Operation cancelled before execution")
		return 0
	default:
	}

	var cliErr error

	switch {
	case *listConnections:
		cliErr = cliApp.ListConnections()
	case *listGroups:
		cliErr = cliApp.ListGroups()
	case *addConnection != "":
		cliErr = cliApp.Add(cli.ProfileInput{
			Name:     *addConnection,
			Address:  *address,
			Logins:   common.SplitList(*logins),
			Group:    *group,
			Note:     *note,
			Password: *askPassword,
			Force:    *force,
		})
	case *editConnection != "":
		cliErr = cliApp.Edit(*editConnection, editChanges())
	case *deleteConn != "":
		cliErr = cliApp.Delete(*deleteConn, *group)
	case *addGroup != "":
		cliErr = cliApp.AddGroup(*addGroup)
	case *deleteGroup != "":
		cliErr = cliApp.DeleteGroup(*deleteGroup)
	case *connectName != "":
		cliErr = cliApp.Connect(ctx, *connectName)
	case *showHistory || *historyFor != "":
		cliErr = cliApp.History(ctx, *historyFor, cli.DefaultHistoryLimit)
	case *backupDir != "":
		cliErr = cliApp.Backup(ctx, *backupDir, registry.KindBackup)
	case *exportDir != "":
		cliErr = cliApp.Backup(ctx, *exportDir, registry.KindExport)
	case *importFile != "":
		cliErr = cliApp.Import(ctx, *importFile)
	case *passwd:
		cliErr = cliApp.Passwd()
	case *removePassphrase:
		cliErr = cliApp.RemovePassphrase()
	case *setTheme != "":
		cliErr = cliApp.SetPreference(config.KeyTheme, *setTheme)
	case *setLanguage != "":
		cliErr = cliApp.SetPreference(config.KeyLanguage, *setLanguage)
	case *setMode != "":
		cliErr = cliApp.SetPreference(config.KeyDisplayMode, *setMode)
	case *doctor:
		cliErr = cliApp.Doctor()
	}

	if cliErr != nil {
		if errors.Is(cliErr, common.ErrCancelled) {
			fmt.Fprintln(os.Stderr, "Cancelled.")
			return 1
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", cliErr)
		return 1
	}
	return 0
}

// editChanges collects the field flags given explicitly on the command line.
func editChanges() cli.Changes {
	var ch cli.Changes
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			ch.Name = newName
		case "address":
			ch.Address = address
		case "logins":
			list := common.SplitList(*logins)
			ch.Logins = &list
		case "group":
			ch.Group = group
		case "note":
			ch.Note = note
		case "password":
			ch.Password = *askPassword
		}
	})
	return ch
}

// setupSignalHandler configures graceful shutdown on SIGINT/SIGTERM.
// When a signal is received, it cancels the context to allow cleanup.
func setupSignalHandler(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		common.LogInfo("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	}()
}
