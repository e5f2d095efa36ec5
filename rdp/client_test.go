package rdp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/swiftrdp/common"
)

func TestWindowTitle(t *testing.T) {
	assert.Equal(t, "SwiftRDP - db (10.1.2.3)", WindowTitle("db", "10.1.2.3"))
}

func TestDetectClientBinary(t *testing.T) {
	t.Setenv("XDG_SESSION_TYPE", "wayland")
	assert.Equal(t, common.ClientWayland, DetectClientBinary())

	t.Setenv("XDG_SESSION_TYPE", "x11")
	assert.Equal(t, common.ClientX11, DetectClientBinary())

	t.Setenv("XDG_SESSION_TYPE", "")
	assert.Equal(t, common.ClientX11, DetectClientBinary())
}

func TestFreeRDPArgs_PasswordNotOnCommandLine(t *testing.T) {
	c := NewFreeRDP("xfreerdp", []string{"/sound"})
	args := c.Args(Params{Address: "h", Login: "u", Password: "s3cret", Title: WindowTitle("n", "h")})

	joined := strings.Join(args, " ")
	assert.NotContains(t, joined, "s3cret")
	assert.Contains(t, args, "/v:h")
	assert.Contains(t, args, "/u:u")
	assert.Contains(t, args, "/from-stdin:force")
	assert.Contains(t, args, "/title:SwiftRDP - n (h)")
	assert.Equal(t, "/sound", args[len(args)-1])
}

func TestFreeRDPArgs_NoLogin(t *testing.T) {
	args := NewFreeRDP("xfreerdp", nil).Args(Params{Address: "h"})
	for _, a := range args {
		assert.False(t, strings.HasPrefix(a, "/u:"))
	}
}

func TestFreeRDPStart_MissingBinary(t *testing.T) {
	c := NewFreeRDP("swiftrdp-no-such-client", nil)
	err := c.Start(context.Background(), Params{Address: "h"})
	require.Error(t, err)

	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Equal(t, "swiftrdp-no-such-client", launchErr.Binary)
	assert.True(t, errors.Is(err, common.ErrLaunch))
}

func TestFreeRDPStart_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewFreeRDP("xfreerdp", nil).Start(ctx, Params{Address: "h"})
	assert.ErrorIs(t, err, context.Canceled)
}
