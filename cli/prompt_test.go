package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/swiftrdp/common"
	"github.com/yllada/swiftrdp/registry"
)

func newScriptedConsole(script string) (*Console, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return NewConsole(strings.NewReader(script), out), out
}

func TestConsole_Line(t *testing.T) {
	c, out := newScriptedConsole("first\r\nlast")

	line, err := c.Line("> ")
	require.NoError(t, err)
	assert.Equal(t, "first", line)

	line, err = c.Line("> ")
	require.NoError(t, err)
	assert.Equal(t, "last", line)

	_, err = c.Line("> ")
	assert.True(t, errors.Is(err, common.ErrCancelled))
	assert.Equal(t, "> > > ", out.String())
}

func TestConsole_Confirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
		{"", false},
	}

	for _, tt := range tests {
		c, _ := newScriptedConsole(tt.input)
		got, err := c.Confirm("Proceed?")
		if err != nil {
			t.Errorf("Confirm(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestConsole_NewSecret(t *testing.T) {
	c, _ := newScriptedConsole("abc\nabc\n")
	got, err := c.NewSecret("New passphrase: ")
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	c, _ = newScriptedConsole("abc\nabd\n")
	_, err = c.NewSecret("New passphrase: ")
	assert.Error(t, err)

	c, _ = newScriptedConsole("\n")
	_, err = c.NewSecret("New passphrase: ")
	assert.True(t, errors.Is(err, common.ErrCancelled))
}

func TestConsole_SelectLogin(t *testing.T) {
	p := &registry.Profile{Name: "web", Address: "10.0.0.5", Logins: []string{"alice", "admin"}}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"by number", "2\n", "admin", nil},
		{"by name", "alice\n", "alice", nil},
		{"empty cancels", "\n", "", common.ErrCancelled},
		{"eof cancels", "", "", common.ErrCancelled},
		{"out of range", "3\n", "", nil},
		{"unknown", "bob\n", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, out := newScriptedConsole(tt.input)
			got, err := c.SelectLogin(p)
			assert.Contains(t, out.String(), "2) admin")
			if tt.want != "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			}
		})
	}
}

func TestConsole_PromptPassword(t *testing.T) {
	p := &registry.Profile{Name: "web", Address: "10.0.0.5"}

	c, out := newScriptedConsole("s3cret\n")
	got, err := c.PromptPassword(p, "alice")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got)
	assert.Contains(t, out.String(), "alice@web")

	c, _ = newScriptedConsole("\n")
	_, err = c.PromptPassword(p, "")
	assert.True(t, errors.Is(err, common.ErrCancelled))
}
