package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/yllada/swiftrdp/common"
	"github.com/yllada/swiftrdp/rdp"
	"github.com/yllada/swiftrdp/registry"
)

// Console asks the user for input on the terminal. Passwords are read
// without echo when the input is a terminal; otherwise plain lines are read,
// which is what scripts and tests get.
type Console struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

var _ rdp.Prompter = (*Console)(nil)

// NewConsole creates a console over in and out.
func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{
		in:     in,
		out:    out,
		reader: bufio.NewReader(in),
	}
}

// terminalFd returns the descriptor of in when it is an interactive terminal.
func (c *Console) terminalFd() (int, bool) {
	f, ok := c.in.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// Line prints label and reads one line of input.
func (c *Console) Line(label string) (string, error) {
	fmt.Fprint(c.out, label)
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", err
		}
		if line == "" {
			return "", common.ErrCancelled
		}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Secret prints label and reads a value without echoing it.
func (c *Console) Secret(label string) (string, error) {
	fd, ok := c.terminalFd()
	if !ok {
		return c.Line(label)
	}

	fmt.Fprint(c.out, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(c.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

// NewSecret reads a value twice and requires both entries to match.
func (c *Console) NewSecret(label string) (string, error) {
	first, err := c.Secret(label)
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", common.ErrCancelled
	}
	second, err := c.Secret("Repeat " + strings.ToLower(label[:1]) + label[1:])
	if err != nil {
		return "", err
	}
	if first != second {
		return "", errors.New("entries do not match")
	}
	return first, nil
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func (c *Console) Confirm(question string) (bool, error) {
	answer, err := c.Line(question + " [y/N]: ")
	if err != nil {
		if errors.Is(err, common.ErrCancelled) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// SelectLogin lets the user pick one of the profile's logins. Terminals get
// the interactive picker, anything else a numbered menu.
func (c *Console) SelectLogin(p *registry.Profile) (string, error) {
	if _, ok := c.terminalFd(); ok {
		return pickLogin(p, c.in, c.out)
	}

	fmt.Fprintf(c.out, "Logins for %s:\n", p.Name)
	for i, login := range p.Logins {
		fmt.Fprintf(c.out, "  %d) %s\n", i+1, login)
	}
	answer, err := c.Line("Choose a login: ")
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", common.ErrCancelled
	}

	if n, err := strconv.Atoi(answer); err == nil {
		if n < 1 || n > len(p.Logins) {
			return "", fmt.Errorf("no login numbered %d", n)
		}
		return p.Logins[n-1], nil
	}
	for _, login := range p.Logins {
		if login == answer {
			return login, nil
		}
	}
	return "", fmt.Errorf("unknown login %q", answer)
}

// PromptPassword asks for the password of login on p.
func (c *Console) PromptPassword(p *registry.Profile, login string) (string, error) {
	label := fmt.Sprintf("Password for %s: ", p.Name)
	if login != "" {
		label = fmt.Sprintf("Password for %s@%s: ", login, p.Name)
	}
	password, err := c.Secret(label)
	if err != nil {
		return "", err
	}
	if password == "" {
		return "", common.ErrCancelled
	}
	return password, nil
}
