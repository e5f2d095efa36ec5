package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/yllada/swiftrdp/common"
	"github.com/yllada/swiftrdp/registry"
)

var (
	pickerTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	pickerSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	pickerHelpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type pickerKeyMap struct {
	up     key.Binding
	down   key.Binding
	choose key.Binding
	cancel key.Binding
}

func newPickerKeyMap() pickerKeyMap {
	return pickerKeyMap{
		up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		down: key.NewBinding(
			key.WithKeys("down", "j", "tab"),
			key.WithHelp("↓/j", "down"),
		),
		choose: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "connect"),
		),
		cancel: key.NewBinding(
			key.WithKeys("esc", "q", "ctrl+c"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// loginPicker is a one-question bubbletea program choosing among a
// profile's logins.
type loginPicker struct {
	title     string
	logins    []string
	cursor    int
	chosen    string
	cancelled bool
	keys      pickerKeyMap
}

func newLoginPicker(p *registry.Profile) loginPicker {
	return loginPicker{
		title:  fmt.Sprintf("Connect to %s (%s) as:", p.Name, p.Address),
		logins: p.Logins,
		keys:   newPickerKeyMap(),
	}
}

func (m loginPicker) Init() tea.Cmd {
	return nil
}

func (m loginPicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.cancel):
		m.cancelled = true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.choose):
		if len(m.logins) > 0 {
			m.chosen = m.logins[m.cursor]
		}
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.up):
		if m.cursor > 0 {
			m.cursor--
		} else {
			m.cursor = len(m.logins) - 1
		}
	case key.Matches(keyMsg, m.keys.down):
		if m.cursor < len(m.logins)-1 {
			m.cursor++
		} else {
			m.cursor = 0
		}
	}
	return m, nil
}

func (m loginPicker) View() string {
	if m.chosen != "" || m.cancelled {
		return ""
	}

	var b strings.Builder
	b.WriteString(pickerTitleStyle.Render(m.title))
	b.WriteString("\n\n")
	for i, login := range m.logins {
		if i == m.cursor {
			b.WriteString(pickerSelectedStyle.Render("> " + login))
		} else {
			b.WriteString("  " + login)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(pickerHelpStyle.Render(fmt.Sprintf("%s %s • %s %s • %s %s",
		m.keys.up.Help().Key, m.keys.up.Help().Desc,
		m.keys.choose.Help().Key, m.keys.choose.Help().Desc,
		m.keys.cancel.Help().Key, m.keys.cancel.Help().Desc)))
	b.WriteString("\n")
	return b.String()
}

// pickLogin runs the picker on the terminal.
func pickLogin(p *registry.Profile, in io.Reader, out io.Writer) (string, error) {
	prog := tea.NewProgram(newLoginPicker(p), tea.WithInput(in), tea.WithOutput(out))
	final, err := prog.Run()
	if err != nil {
		return "", fmt.Errorf("login picker failed: %w", err)
	}

	m, ok := final.(loginPicker)
	if !ok || m.cancelled || m.chosen == "" {
		return "", common.ErrCancelled
	}
	return m.chosen, nil
}
