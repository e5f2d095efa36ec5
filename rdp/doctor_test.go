package rdp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckDependencies(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(name string) (string, error) {
		if name == "xfreerdp" {
			return "/usr/bin/xfreerdp", nil
		}
		return "", errors.New("not found")
	}

	deps := CheckDependencies("xfreerdp", "wmctrl -l")
	if len(deps) != 3 {
		t.Fatalf("CheckDependencies() returned %d entries, want 3", len(deps))
	}
	assert.True(t, deps[0].Found())
	assert.Equal(t, "/usr/bin/xfreerdp", deps[0].Path)
	assert.Equal(t, "wmctrl", deps[1].Name)
	assert.False(t, deps[1].Found())

	assert.Equal(t, []string{"wmctrl"}, MissingRequired(deps))
}

func TestCheckDependencies_DetectsClient(t *testing.T) {
	orig := lookPath
	t.Cleanup(func() { lookPath = orig })
	lookPath = func(name string) (string, error) { return "/bin/" + name, nil }
	t.Setenv("XDG_SESSION_TYPE", "wayland")

	deps := CheckDependencies("", "")
	assert.Equal(t, "wlfreerdp", deps[0].Name)
	assert.Equal(t, "wmctrl", deps[1].Name)
	assert.Empty(t, MissingRequired(deps))
}
