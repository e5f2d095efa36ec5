package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/yllada/swiftrdp/common"
	"github.com/yllada/swiftrdp/config"
	"github.com/yllada/swiftrdp/history"
	"github.com/yllada/swiftrdp/instance"
	"github.com/yllada/swiftrdp/notify"
	"github.com/yllada/swiftrdp/rdp"
	"github.com/yllada/swiftrdp/registry"
	"github.com/yllada/swiftrdp/vault"
)

// Options override collaborators, mostly for tests. Zero values pick the
// real implementations.
type Options struct {
	Client   rdp.Client
	Lister   rdp.WindowLister
	Notifier common.Notifier
	Prompter rdp.Prompter
	// OnTemporarySuccess runs on the loop after an ad-hoc connection
	// succeeds so the front end can offer to save it.
	OnTemporarySuccess func(p *registry.Profile)
}

// App is one SwiftRDP session.
type App struct {
	dir         string
	settings    *config.Settings
	prefs       *config.Preferences
	store       *registry.Store
	groups      *registry.GroupStore
	archiver    *registry.Archiver
	vault       *vault.Vault
	history     *history.Database
	coordinator *rdp.Coordinator
	loop        *Loop
	notifier    common.Notifier
	prompter    rdp.Prompter
	onTemp      func(p *registry.Profile)
}

// New opens every store under dir. The directory must be writable.
func New(dir string, settings *config.Settings, opts Options) (*App, error) {
	if err := common.CheckWritable(dir); err != nil {
		return nil, err
	}

	prefs, err := config.NewPreferences(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	hist, err := history.Open(filepath.Join(dir, common.HistoryFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	store := registry.NewStore(dir)
	groups := registry.NewGroupStore(dir, store)
	v := vault.New(prefs, store)
	loop := NewLoop()

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.New(settings.ShowNotifications)
	}
	client := opts.Client
	if client == nil {
		client = rdp.NewFreeRDP(settings.ClientBinary, settings.ClientArgs)
	}
	lister := opts.Lister
	if lister == nil {
		lister = rdp.NewCommandLister(settings.WindowLister)
	}

	coordinator := rdp.NewCoordinator(client, lister, v, store, hist, loop, rdp.Options{
		Interval: settings.ProbeInterval,
		Timeout:  settings.ProbeTimeout,
		Marker:   common.WindowMarker,
	})

	a := &App{
		dir:         dir,
		settings:    settings,
		prefs:       prefs,
		store:       store,
		groups:      groups,
		archiver:    registry.NewArchiver(store, groups),
		vault:       v,
		history:     hist,
		coordinator: coordinator,
		loop:        loop,
		notifier:    notifier,
		prompter:    opts.Prompter,
		onTemp:      opts.OnTemporarySuccess,
	}

	prefs.Subscribe(func(k config.Key, value string) {
		loop.Post(func() { a.onPreferenceChanged(k, value) })
	})

	return a, nil
}

// Dir returns the configuration directory.
func (a *App) Dir() string { return a.dir }

// Settings returns the loaded tunables.
func (a *App) Settings() *config.Settings { return a.settings }

// Preferences returns the scalar preference object.
func (a *App) Preferences() *config.Preferences { return a.prefs }

// Store returns the connection store.
func (a *App) Store() *registry.Store { return a.store }

// Groups returns the group store.
func (a *App) Groups() *registry.GroupStore { return a.groups }

// Vault returns the master passphrase vault.
func (a *App) Vault() *vault.Vault { return a.vault }

// History returns the launch history database.
func (a *App) History() *history.Database { return a.history }

// Coordinator returns the launch coordinator.
func (a *App) Coordinator() *rdp.Coordinator { return a.coordinator }

// Loop returns the UI loop.
func (a *App) Loop() *Loop { return a.loop }

// Close cancels any launch still waiting for its window. It then zeroes
// the key and releases the history database.
func (a *App) Close() error {
	if attempt := a.coordinator.Current(); attempt != nil {
		attempt.Cancel()
		<-attempt.Done()
	}
	a.vault.Lock()
	a.loop.Wait()
	return a.history.Close()
}

// SealPassword encrypts a password for a connection record.
func (a *App) SealPassword(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	configured, err := a.vault.Configured()
	if err != nil {
		return "", err
	}
	if !configured {
		return "", common.ErrNoPassphrase
	}
	return a.vault.Seal(plain)
}

// Connect starts a launch attempt. The result is reported through the
// notifier and, for ad-hoc connections, OnTemporarySuccess; onDone, if
// set, runs on the loop afterwards.
func (a *App) Connect(ctx context.Context, p *registry.Profile, onDone func(rdp.Result)) (*rdp.Attempt, error) {
	attempt, err := a.coordinator.Connect(ctx, p, a.prompter, func(r rdp.Result) {
		a.onLaunchResult(r)
		if onDone != nil {
			onDone(r)
		}
	})
	if err != nil {
		if !errors.Is(err, common.ErrCancelled) {
			a.notifyError(p.Name, err)
		}
		return nil, err
	}
	return attempt, nil
}

// HandleDeepLink connects to target. Known addresses use their stored
// profile; anything else becomes a temporary connection. It must run on
// the loop.
func (a *App) HandleDeepLink(target string) {
	if a.coordinator.Busy() {
		common.LogInfo("Ignoring link to %s while another connection is starting", target)
		a.notifyError(target, common.ErrBusy)
		return
	}

	p, err := a.store.FindByAddress(target)
	if err != nil {
		if !errors.Is(err, common.ErrProfileNotFound) {
			a.notifyError(target, err)
			return
		}
		common.LogInfo("No saved connection for %s, connecting ad hoc", target)
		p = registry.NewTemporary(target)
	}

	if _, err := a.Connect(context.Background(), p, nil); err != nil {
		common.LogWarn("Deep link to %s failed: %v", target, err)
	}
}

// SaveTemporary persists an ad-hoc connection after a successful launch.
func (a *App) SaveTemporary(p *registry.Profile) error {
	saved := p.Clone()
	saved.Temporary = false
	saved.LastConnected = time.Now().Format(common.TimestampLayout)
	return a.store.Add(saved, true)
}

// Backup writes an archive in the background and reports on the loop.
func (a *App) Backup(targetDir string, kind registry.ArchiveKind, done func(path string, err error)) {
	var path string
	a.loop.Go(func() error {
		var err error
		path, err = a.archiver.Export(targetDir, kind)
		return err
	}, func(err error) {
		if err != nil {
			a.notifyError("Backup", err)
		}
		if done != nil {
			done(path, err)
		}
	})
}

// Import restores an archive in the background and reports on the loop.
func (a *App) Import(archivePath string, done func(replaced []string, err error)) {
	var replaced []string
	a.loop.Go(func() error {
		var err error
		replaced, err = a.archiver.Import(archivePath)
		return err
	}, func(err error) {
		if err != nil {
			a.notifyError("Import", err)
		}
		if done != nil {
			done(replaced, err)
		}
	})
}

// Serve runs the leader session: the loop, the preference watcher, the
// rendezvous socket and periodic maintenance, until ctx is done.
func (a *App) Serve(ctx context.Context, leader *instance.Leader) error {
	if err := a.prefs.Watch(ctx); err != nil {
		common.LogWarn("Preference changes from other processes will not be picked up: %v", err)
	}

	if removed, err := a.history.Prune(ctx, history.DefaultKeep); err != nil {
		common.LogWarn("Failed to prune launch history: %v", err)
	} else if removed > 0 {
		common.LogDebug("Pruned %d history entries", removed)
	}

	go a.maintenance(ctx)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- leader.Serve(ctx, a.loop, a.HandleDeepLink)
	}()

	a.loop.Run(ctx)
	return <-serveErr
}

func (a *App) maintenance(ctx context.Context) {
	ticker := time.NewTicker(common.RotationCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			common.GetLogger().CheckRotation()
		}
	}
}

func (a *App) onLaunchResult(r rdp.Result) {
	switch r.State {
	case rdp.StateSucceeded:
		if n, ok := a.notifier.(*notify.Desktop); ok {
			_ = n.NotifyConnected(r.Profile.Name)
		} else {
			_ = a.notifier.Notify("Connected", "Connected to "+r.Profile.Name)
		}
		if r.Profile.Temporary && a.onTemp != nil {
			a.onTemp(r.Profile)
		}
	case rdp.StateCancelled:
	default:
		a.notifyError(r.Profile.Name, r.Err)
	}
}

func (a *App) onPreferenceChanged(k config.Key, value string) {
	switch k {
	case config.KeyMasterHash:
		// The gate hash is never logged. Queued notifications may be stale,
		// so the vault is checked against the current hash.
		common.LogInfo("Master passphrase settings changed")
		hash, err := a.prefs.GateHash()
		if err != nil {
			common.LogWarn("Failed to read passphrase hash: %v", err)
			return
		}
		a.vault.SyncGate(hash)
	default:
		common.LogInfo("Preference %s is now %q", k, a.prefs.Get(k))
	}
}

func (a *App) notifyError(name string, err error) {
	if err == nil {
		return
	}
	if n, ok := a.notifier.(*notify.Desktop); ok {
		_ = n.NotifyError(name, err.Error())
		return
	}
	_ = a.notifier.Notify("Connection Error", name+": "+err.Error())
}
