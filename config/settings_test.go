package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yllada/swiftrdp/common"
)

func TestLoadSettings_CreatesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), cfg)
	assert.FileExists(t, SettingsPath(dir))
}

func TestSettings_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultSettings()
	cfg.ClientBinary = "/opt/freerdp/bin/xfreerdp"
	cfg.ClientArgs = []string{"/cert:ignore", "/dynamic-resolution"}
	cfg.ProbeTimeout = 30 * time.Second
	cfg.ShowNotifications = false
	require.NoError(t, cfg.Save(dir))

	loaded, err := LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadSettings_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, DefaultSettings().Save(dir))

	t.Setenv("SWIFTRDP_PROBE_TIMEOUT", "20s")
	t.Setenv("SWIFTRDP_LOG_LEVEL", "debug")

	cfg, err := LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadSettings_InvalidValuesFallBack(t *testing.T) {
	dir := t.TempDir()
	data := []byte("window_lister: \"\"\nprobe_interval: 0s\nprobe_timeout: -5s\nlog_level: loud\n")
	require.NoError(t, os.WriteFile(SettingsPath(dir), data, 0600))

	cfg, err := LoadSettings(dir)
	require.NoError(t, err)
	assert.Equal(t, common.WindowLister, cfg.WindowLister)
	assert.Equal(t, common.ProbeInterval, cfg.ProbeInterval)
	assert.Equal(t, common.ProbeTimeout, cfg.ProbeTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadSettings_Malformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(SettingsPath(dir), []byte("probe_timeout: [unclosed\n"), 0600))

	_, err := LoadSettings(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConfigLoad)
}
