// Package config provides configuration management for SwiftRDP.
// It handles loading and saving the YAML tunables and the scalar
// preference files kept next to the connection registry.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/yllada/swiftrdp/common"
)

// EnvPrefix is prepended to setting keys for environment overrides,
// e.g. SWIFTRDP_PROBE_TIMEOUT=20s.
const EnvPrefix = "SWIFTRDP"

// Settings represents the tunables persisted to settings.yaml.
type Settings struct {
	// ClientBinary overrides the FreeRDP binary. Empty picks one from the session type.
	ClientBinary string `yaml:"client_binary" mapstructure:"client_binary"`
	// ClientArgs are extra arguments appended to every client invocation.
	ClientArgs []string `yaml:"client_args" mapstructure:"client_args"`
	// WindowLister is the window enumeration tool.
	WindowLister string `yaml:"window_lister" mapstructure:"window_lister"`
	// ProbeInterval is the delay between two window listings.
	ProbeInterval time.Duration `yaml:"probe_interval" mapstructure:"probe_interval"`
	// ProbeTimeout bounds how long a launch waits for the client window.
	ProbeTimeout time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`
	// ShowNotifications enables desktop notifications for launch results.
	ShowNotifications bool `yaml:"show_notifications" mapstructure:"show_notifications"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// DefaultSettings returns the default settings.
func DefaultSettings() *Settings {
	return &Settings{
		ClientBinary:      "",
		ClientArgs:        []string{},
		WindowLister:      common.WindowLister,
		ProbeInterval:     common.ProbeInterval,
		ProbeTimeout:      common.ProbeTimeout,
		ShowNotifications: true,
		LogLevel:          "info",
	}
}

// SettingsPath returns the settings file inside dir.
func SettingsPath(dir string) string {
	return filepath.Join(dir, common.SettingsFileName)
}

// LoadSettings reads settings.yaml from dir with environment overrides.
// If the file doesn't exist, it is created with default values.
func LoadSettings(dir string) (*Settings, error) {
	path := SettingsPath(dir)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultSettings()
		if err := cfg.Save(dir); err != nil {
			return cfg, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults register every key so AutomaticEnv can override keys that
	// are absent from the file.
	def := DefaultSettings()
	v.SetDefault("client_binary", def.ClientBinary)
	v.SetDefault("client_args", def.ClientArgs)
	v.SetDefault("window_lister", def.WindowLister)
	v.SetDefault("probe_interval", def.ProbeInterval)
	v.SetDefault("probe_timeout", def.ProbeTimeout)
	v.SetDefault("show_notifications", def.ShowNotifications)
	v.SetDefault("log_level", def.LogLevel)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}

	var cfg Settings
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfigLoad, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// validate replaces out-of-range values with defaults.
func (s *Settings) validate() error {
	def := DefaultSettings()
	if s.WindowLister == "" {
		s.WindowLister = def.WindowLister
	}
	if s.ProbeInterval <= 0 {
		s.ProbeInterval = def.ProbeInterval
	}
	if s.ProbeTimeout <= 0 {
		s.ProbeTimeout = def.ProbeTimeout
	}
	if s.ProbeInterval > s.ProbeTimeout {
		s.ProbeInterval = s.ProbeTimeout
	}
	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !common.StringInSlice(strings.ToLower(s.LogLevel), validLevels) {
		s.LogLevel = def.LogLevel
	}
	if s.ClientArgs == nil {
		s.ClientArgs = []string{}
	}
	return nil
}

// Save writes the settings to settings.yaml in dir.
func (s *Settings) Save(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfigSave, err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrConfigSave, err)
	}

	if err := common.AtomicWriteFile(SettingsPath(dir), data, 0600); err != nil {
		return fmt.Errorf("%w: %w", common.ErrConfigSave, err)
	}

	return nil
}
