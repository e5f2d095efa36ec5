package rdp

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/yllada/swiftrdp/common"
)

// WindowLister returns one line per open top-level window.
type WindowLister interface {
	List(ctx context.Context) ([]string, error)
}

// CommandLister runs an external tool such as "wmctrl -l".
type CommandLister struct {
	Path string
	Args []string
}

// NewCommandLister parses a command line. A bare "wmctrl" gets "-l".
func NewCommandLister(command string) *CommandLister {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		fields = []string{common.WindowLister}
	}
	args := fields[1:]
	if len(args) == 0 && fields[0] == common.WindowLister {
		args = []string{"-l"}
	}
	return &CommandLister{Path: fields[0], Args: args}
}

// List runs the tool bounded by common.ListerTimeout.
func (l *CommandLister) List(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, common.ListerTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, l.Path, l.Args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.Path, err)
	}

	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	return lines, nil
}

// MatchWindow reports whether any line names both marker and address,
// ignoring case.
func MatchWindow(lines []string, marker, address string) bool {
	marker = strings.ToLower(marker)
	address = strings.ToLower(address)
	for _, line := range lines {
		l := strings.ToLower(line)
		if strings.Contains(l, marker) && strings.Contains(l, address) {
			return true
		}
	}
	return false
}
