package cli

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/yllada/swiftrdp/registry"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m loginPicker, msgs ...tea.Msg) (loginPicker, tea.Cmd) {
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(loginPicker)
	}
	return m, cmd
}

func newTestPicker() loginPicker {
	return newLoginPicker(&registry.Profile{
		Name:    "web",
		Address: "10.0.0.5",
		Logins:  []string{"alice", "admin", "backup"},
	})
}

func TestLoginPicker_Navigation(t *testing.T) {
	tests := []struct {
		name string
		keys []tea.Msg
		want string
	}{
		{"enter picks first", []tea.Msg{tea.KeyMsg{Type: tea.KeyEnter}}, "alice"},
		{"down", []tea.Msg{tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyEnter}}, "admin"},
		{"vim keys", []tea.Msg{runes("j"), runes("j"), runes("k"), tea.KeyMsg{Type: tea.KeyEnter}}, "admin"},
		{"up wraps", []tea.Msg{tea.KeyMsg{Type: tea.KeyUp}, tea.KeyMsg{Type: tea.KeyEnter}}, "backup"},
		{"down wraps", []tea.Msg{runes("j"), runes("j"), runes("j"), tea.KeyMsg{Type: tea.KeyEnter}}, "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, cmd := press(newTestPicker(), tt.keys...)
			assert.Equal(t, tt.want, m.chosen)
			assert.False(t, m.cancelled)
			assert.NotNil(t, cmd)
			assert.Empty(t, m.View())
		})
	}
}

func TestLoginPicker_Cancel(t *testing.T) {
	for _, msg := range []tea.Msg{tea.KeyMsg{Type: tea.KeyEsc}, tea.KeyMsg{Type: tea.KeyCtrlC}, runes("q")} {
		m, cmd := press(newTestPicker(), msg)
		assert.True(t, m.cancelled)
		assert.Empty(t, m.chosen)
		assert.NotNil(t, cmd)
	}
}

func TestLoginPicker_View(t *testing.T) {
	m, cmd := press(newTestPicker(), tea.KeyMsg{Type: tea.KeyDown})
	assert.Nil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "web (10.0.0.5)")
	assert.Contains(t, view, "alice")
	assert.Contains(t, view, "> admin")
	assert.Contains(t, view, "esc cancel")
}

func TestLoginPicker_IgnoresOtherMessages(t *testing.T) {
	m, cmd := press(newTestPicker(), tea.WindowSizeMsg{Width: 80, Height: 24})
	assert.Nil(t, cmd)
	assert.Equal(t, 0, m.cursor)
}
