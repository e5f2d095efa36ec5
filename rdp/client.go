package rdp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/yllada/swiftrdp/common"
)

// Params describes one client invocation.
type Params struct {
	Address  string
	Login    string
	Password string
	// Title is set as the client window title so the probe can find it.
	Title string
}

// Client starts a remote desktop client process.
// Start returns once the process is running; it does not wait for it.
type Client interface {
	Start(ctx context.Context, p Params) error
}

// LaunchError reports that the client binary could not be started.
type LaunchError struct {
	Binary string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Binary, e.Err)
}

func (e *LaunchError) Unwrap() []error {
	return []error{common.ErrLaunch, e.Err}
}

// WindowTitle builds the title tag for a connection.
func WindowTitle(name, address string) string {
	return fmt.Sprintf("%s - %s (%s)", common.WindowMarker, name, address)
}

// DetectClientBinary picks the FreeRDP flavour for the running session.
func DetectClientBinary() string {
	if strings.EqualFold(os.Getenv("XDG_SESSION_TYPE"), "wayland") {
		return common.ClientWayland
	}
	return common.ClientX11
}

// FreeRDP runs xfreerdp or wlfreerdp.
type FreeRDP struct {
	// Binary is the executable name or path.
	Binary string
	// ExtraArgs are appended after the generated arguments.
	ExtraArgs []string
}

// NewFreeRDP creates a client. An empty binary is detected from the session.
func NewFreeRDP(binary string, extraArgs []string) *FreeRDP {
	if binary == "" {
		binary = DetectClientBinary()
	}
	return &FreeRDP{Binary: binary, ExtraArgs: extraArgs}
}

// Args returns the command line for p. The password never appears in it.
func (c *FreeRDP) Args(p Params) []string {
	args := []string{
		"/v:" + p.Address,
		"/title:" + p.Title,
		"/cert:tofu",
		"+clipboard",
		"/dynamic-resolution",
	}
	if p.Login != "" {
		args = append(args, "/u:"+p.Login)
	}
	// The password is read from stdin so it never shows up in the process list.
	args = append(args, "/from-stdin:force")
	return append(args, c.ExtraArgs...)
}

// Start launches the client and returns once the process is running.
func (c *FreeRDP) Start(ctx context.Context, p Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := exec.LookPath(c.Binary)
	if err != nil {
		return &LaunchError{Binary: c.Binary, Err: err}
	}

	// Not CommandContext: the session must survive the end of the attempt.
	cmd := exec.Command(path, c.Args(p)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &LaunchError{Binary: c.Binary, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &LaunchError{Binary: c.Binary, Err: err}
	}
	cmd.Stderr = cmd.Stdout

	common.LogInfo("Starting %s for %s as %q", c.Binary, p.Address, p.Login)
	if err := cmd.Start(); err != nil {
		return &LaunchError{Binary: c.Binary, Err: err}
	}
	common.LogDebug("Client process started with PID %d", cmd.Process.Pid)

	go func() {
		defer stdin.Close()
		if _, err := io.WriteString(stdin, p.Password+"\n"); err != nil {
			common.LogWarn("Failed to pass credentials to client: %v", err)
		}
	}()

	go monitorOutput(stdout)

	go func() {
		err := cmd.Wait()
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			common.LogInfo("Client for %s exited", p.Address)
		case errors.As(err, &exitErr):
			common.LogWarn("Client for %s exited with code %d", p.Address, exitErr.ExitCode())
		default:
			common.LogWarn("Client for %s terminated: %v", p.Address, err)
		}
	}()

	return nil
}

// monitorOutput forwards client output to the debug log.
func monitorOutput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		common.LogDebug("freerdp: %s", scanner.Text())
	}
}
