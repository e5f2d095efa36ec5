package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yllada/swiftrdp/common"
)

// Key names a scalar preference file.
type Key string

// Preference keys. Each one is a single-line file in the config directory.
const (
	KeyLanguage       Key = common.LanguageFileName
	KeyTheme          Key = common.ThemeFileName
	KeyDisplayMode    Key = common.DisplayModeFileName
	KeyDefaultHandler Key = common.DefaultHandlerFileName
	KeyMasterHash     Key = common.MasterHashFileName
)

var allKeys = []Key{KeyLanguage, KeyTheme, KeyDisplayMode, KeyDefaultHandler, KeyMasterHash}

// watchDebounce collapses the burst of events an atomic rename produces.
const watchDebounce = 100 * time.Millisecond

// ChangeFunc is called after a preference changes.
type ChangeFunc func(key Key, value string)

// Preferences is the explicit configuration object for the scalar
// preference files. Changes made through Set or by editing the files from
// outside the process are announced to subscribers.
type Preferences struct {
	dir string

	mu     sync.Mutex
	values map[Key]string
	subs   map[int]ChangeFunc
	nextID int
}

// NewPreferences reads the current values from dir.
func NewPreferences(dir string) (*Preferences, error) {
	p := &Preferences{
		dir:    dir,
		values: make(map[Key]string),
		subs:   make(map[int]ChangeFunc),
	}
	for _, k := range allKeys {
		v, err := common.ReadScalar(p.path(k))
		if err != nil {
			return nil, err
		}
		p.values[k] = v
	}
	return p, nil
}

func (p *Preferences) path(k Key) string {
	return filepath.Join(p.dir, string(k))
}

// Get returns the stored value, or the key's default when unset.
func (p *Preferences) Get(k Key) string {
	p.mu.Lock()
	v := p.values[k]
	p.mu.Unlock()

	if v == "" {
		return defaultValue(k)
	}
	return v
}

// Set validates and persists a preference, then notifies subscribers.
// An empty value resets the key to its default.
func (p *Preferences) Set(k Key, value string) error {
	if err := validateValue(k, value); err != nil {
		return err
	}
	if err := common.WriteScalar(p.path(k), value); err != nil {
		return err
	}
	p.update(k, value)
	return nil
}

// Language returns the UI language tag.
func (p *Preferences) Language() string { return p.Get(KeyLanguage) }

// Theme returns auto, light or dark.
func (p *Preferences) Theme() string { return p.Get(KeyTheme) }

// DisplayMode returns window or tabs.
func (p *Preferences) DisplayMode() string { return p.Get(KeyDisplayMode) }

// GateHash returns the stored master passphrase hash, "" when none.
func (p *Preferences) GateHash() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[KeyMasterHash], nil
}

// SetGateHash stores or, with "", clears the master passphrase hash.
func (p *Preferences) SetGateHash(hash string) error {
	return p.Set(KeyMasterHash, hash)
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. fn runs on the goroutine that observed the change.
func (p *Preferences) Subscribe(fn ChangeFunc) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.subs[id] = fn

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// update stores value and notifies subscribers if it changed.
func (p *Preferences) update(k Key, value string) {
	p.mu.Lock()
	if p.values[k] == value {
		p.mu.Unlock()
		return
	}
	p.values[k] = value
	subs := make([]ChangeFunc, 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(k, value)
	}
}

// reload re-reads one key from disk after an external edit.
func (p *Preferences) reload(k Key) {
	v, err := common.ReadScalar(p.path(k))
	if err != nil {
		common.LogWarn("Failed to reload preference %s: %v", k, err)
		return
	}
	if v != "" {
		if err := validateValue(k, v); err != nil {
			common.LogWarn("Ignoring invalid %s value %q: %v", k, v, err)
			return
		}
	}
	p.update(k, v)
}

// Watch picks up edits made to the preference files by other processes
// until ctx is done.
func (p *Preferences) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	// The directory is watched because atomic writes replace the files.
	if err := w.Add(p.dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch path %s: %w", p.dir, err)
	}

	known := make(map[string]Key, len(allKeys))
	for _, k := range allKeys {
		known[string(k)] = k
	}

	go func() {
		defer w.Close()

		var mu sync.Mutex
		timers := make(map[Key]*time.Timer)
		defer func() {
			mu.Lock()
			for _, t := range timers {
				t.Stop()
			}
			mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				k, ok := known[filepath.Base(event.Name)]
				if !ok {
					continue
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}

				mu.Lock()
				if t, exists := timers[k]; exists {
					t.Stop()
				}
				timers[k] = time.AfterFunc(watchDebounce, func() {
					mu.Lock()
					delete(timers, k)
					mu.Unlock()
					p.reload(k)
				})
				mu.Unlock()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				common.LogWarn("Preference watcher error: %v", err)
			}
		}
	}()

	return nil
}

func defaultValue(k Key) string {
	switch k {
	case KeyLanguage:
		return common.DefaultLanguage
	case KeyTheme:
		return common.ThemeAuto
	case KeyDisplayMode:
		return common.DisplayWindow
	}
	return ""
}

func validateValue(k Key, value string) error {
	if value == "" {
		return nil
	}
	switch k {
	case KeyTheme:
		if !common.StringInSlice(value, []string{common.ThemeAuto, common.ThemeLight, common.ThemeDark}) {
			return fmt.Errorf("invalid theme %q: must be auto, light or dark", value)
		}
	case KeyDisplayMode:
		if !common.StringInSlice(value, []string{common.DisplayWindow, common.DisplayTabs}) {
			return fmt.Errorf("invalid display mode %q: must be window or tabs", value)
		}
	case KeyLanguage:
		if len(value) > 16 {
			return fmt.Errorf("invalid language tag %q", value)
		}
	}
	return nil
}
