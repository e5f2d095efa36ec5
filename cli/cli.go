// Package cli provides the terminal front end for SwiftRDP.
// It manages connections, groups, backups and the master passphrase, and
// runs the long-lived session that serves deep links.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/yllada/swiftrdp/app"
	"github.com/yllada/swiftrdp/common"
	"github.com/yllada/swiftrdp/config"
	"github.com/yllada/swiftrdp/history"
	"github.com/yllada/swiftrdp/instance"
	"github.com/yllada/swiftrdp/keyring"
	"github.com/yllada/swiftrdp/rdp"
	"github.com/yllada/swiftrdp/registry"
)

// DefaultHistoryLimit is the number of entries --history shows.
const DefaultHistoryLimit = 20

// CLI represents the command-line interface.
type CLI struct {
	app     *app.App
	console *Console
	out     io.Writer

	autoSave bool
	remember bool

	loopOnce sync.Once
	stopLoop context.CancelFunc
}

// New opens the application state under dir. Collaborators left empty in
// opts are filled in: the console prompts for logins and passwords and
// offers to save ad-hoc connections.
func New(dir string, settings *config.Settings, console *Console, opts app.Options) (*CLI, error) {
	c := &CLI{
		console:  console,
		out:      console.out,
		stopLoop: func() {},
	}

	if opts.Prompter == nil {
		opts.Prompter = console
	}
	if opts.OnTemporarySuccess == nil {
		opts.OnTemporarySuccess = c.OfferSave
	}

	a, err := app.New(dir, settings, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", common.AppName, err)
	}
	c.app = a
	return c, nil
}

// App returns the underlying session.
func (c *CLI) App() *app.App {
	return c.app
}

// SetAutoSaveTemporary saves ad-hoc connections without asking.
func (c *CLI) SetAutoSaveTemporary(enabled bool) {
	c.autoSave = enabled
}

// SetRemember stores the master passphrase in the system keyring once it
// has been verified.
func (c *CLI) SetRemember(enabled bool) {
	c.remember = enabled
}

// Close stops the loop and releases the application state.
func (c *CLI) Close() error {
	c.stopLoop()
	return c.app.Close()
}

// ensureLoop runs the UI loop for one-shot commands. The session runs it
// through app.Serve instead.
func (c *CLI) ensureLoop() {
	c.loopOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.stopLoop = cancel
		go c.app.Loop().Run(ctx)
	})
}

// Unlock opens the vault when a master passphrase is configured. The
// keyring is tried first; a rejected remembered passphrase is forgotten.
func (c *CLI) Unlock() error {
	v := c.app.Vault()
	configured, err := v.Configured()
	if err != nil {
		return err
	}
	if !configured || v.Unlocked() {
		return nil
	}

	if pass, err := keyring.Recall(); err == nil {
		if err := v.Unlock(pass); err == nil {
			common.LogDebug("Vault unlocked from system keyring")
			return nil
		}
		common.LogWarn("Remembered master passphrase was rejected, forgetting it")
		if err := keyring.Forget(); err != nil {
			common.LogWarn("Failed to forget master passphrase: %v", err)
		}
	} else if !errors.Is(err, keyring.ErrNotFound) {
		common.LogDebug("System keyring unavailable: %v", err)
	}

	pass, err := c.console.Secret("Master passphrase: ")
	if err != nil {
		return err
	}
	if err := v.Unlock(pass); err != nil {
		return err
	}
	c.rememberPassphrase(pass)
	return nil
}

func (c *CLI) rememberPassphrase(pass string) {
	if !c.remember {
		return
	}
	if err := keyring.Remember(pass); err != nil {
		fmt.Fprintf(c.out, "  Warning: could not store passphrase in keyring: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "✓ Master passphrase stored in system keyring")
}

// ListConnections lists all stored connections.
func (c *CLI) ListConnections() error {
	profiles, err := c.app.Store().Load()
	if err != nil {
		return err
	}

	if len(profiles) == 0 {
		fmt.Fprintln(c.out, "No connections configured.")
		fmt.Fprintln(c.out, "Add one with: swiftrdp --add NAME --address HOST")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tLOGINS\tGROUP\tLAST CONNECTED\tPASSWORD")
	fmt.Fprintln(w, "----\t-------\t------\t-----\t--------------\t--------")

	for _, p := range profiles {
		logins := strings.Join(p.Logins, ",")
		if logins == "" {
			logins = "-"
		}
		group := p.Group
		if group == "" {
			group = "-"
		}
		password := "No"
		if p.HasCredential() {
			password = "Yes"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Name, p.Address, logins, group, p.LastConnected, password)
	}

	return w.Flush()
}

// ListGroups lists groups with their member count.
func (c *CLI) ListGroups() error {
	groups, err := c.app.Groups().List()
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Fprintln(c.out, "No groups configured.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tCONNECTIONS")
	fmt.Fprintln(w, "-----\t-----------")
	for _, g := range groups {
		members, err := c.app.Store().ListByGroup(g)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%d\n", g, len(members))
	}
	return w.Flush()
}

// ProfileInput carries the fields of a new connection.
type ProfileInput struct {
	Name    string
	Address string
	Logins  []string
	Group   string
	Note    string
	// Password prompts for a password and stores it encrypted.
	Password bool
	// Force skips the duplicate address confirmation.
	Force bool
}

// Add stores a new connection. A duplicate address asks for confirmation
// unless Force is set.
func (c *CLI) Add(in ProfileInput) error {
	p := &registry.Profile{
		Name:    strings.TrimSpace(in.Name),
		Address: strings.TrimSpace(in.Address),
		Logins:  in.Logins,
		Group:   strings.TrimSpace(in.Group),
		Note:    in.Note,
	}
	if err := p.Validate(); err != nil {
		return err
	}

	if in.Password {
		sealed, err := c.readCredential(p)
		if err != nil {
			return err
		}
		p.CredentialCipher = sealed
	}

	if p.Group != "" {
		if err := c.app.Groups().Add(p.Group); err != nil {
			return err
		}
	}

	err := c.app.Store().Add(p, in.Force)
	var dup *registry.DuplicateAddressError
	if errors.As(err, &dup) {
		ok, cerr := c.console.Confirm(fmt.Sprintf("%s is already used by %q. Add anyway?", dup.Address, dup.Existing))
		if cerr != nil {
			return cerr
		}
		if !ok {
			return err
		}
		err = c.app.Store().Add(p, true)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "✓ Added %s (%s)\n", p.Name, p.Address)
	return nil
}

// Changes lists the fields to modify on an existing connection. Nil
// fields are left unchanged.
type Changes struct {
	Name     *string
	Address  *string
	Logins   *[]string
	Group    *string
	Note     *string
	Password bool
}

// Edit modifies a stored connection found by name.
func (c *CLI) Edit(name string, ch Changes) error {
	p, err := c.app.Store().FindByName(name)
	if err != nil {
		return err
	}

	if ch.Name != nil {
		p.Name = strings.TrimSpace(*ch.Name)
	}
	if ch.Address != nil {
		p.Address = strings.TrimSpace(*ch.Address)
	}
	if ch.Logins != nil {
		p.Logins = *ch.Logins
	}
	if ch.Group != nil {
		p.Group = strings.TrimSpace(*ch.Group)
	}
	if ch.Note != nil {
		p.Note = *ch.Note
	}
	if err := p.Validate(); err != nil {
		return err
	}

	if ch.Password {
		sealed, err := c.readCredential(p)
		if err != nil {
			return err
		}
		p.CredentialCipher = sealed
	}

	if p.Group != "" {
		if err := c.app.Groups().Add(p.Group); err != nil {
			return err
		}
	}

	if err := c.app.Store().Update(p.ID, p); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Updated %s\n", p.Name)
	return nil
}

// readCredential asks for a connection password and seals it.
func (c *CLI) readCredential(p *registry.Profile) (string, error) {
	configured, err := c.app.Vault().Configured()
	if err != nil {
		return "", err
	}
	if !configured {
		return "", fmt.Errorf("%w: set one with --passwd before storing passwords", common.ErrNoPassphrase)
	}
	if err := c.Unlock(); err != nil {
		return "", err
	}

	password, err := c.console.NewSecret(fmt.Sprintf("Password for %s: ", p.Name))
	if err != nil {
		return "", err
	}
	return c.app.SealPassword(password)
}

// Delete removes every connection with the given name in group.
func (c *CLI) Delete(name, group string) error {
	removed, err := c.app.Store().Delete(name, group)
	if err != nil {
		return err
	}
	if removed == 0 {
		if group == "" {
			fmt.Fprintf(c.out, "No ungrouped connection named %s.\n", name)
		} else {
			fmt.Fprintf(c.out, "No connection named %s in group %s.\n", name, group)
		}
		return nil
	}
	fmt.Fprintf(c.out, "✓ Deleted %d connection(s) named %s\n", removed, name)
	return nil
}

// AddGroup creates a group.
func (c *CLI) AddGroup(name string) error {
	if err := c.app.Groups().Add(name); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Group %s ready\n", strings.TrimSpace(name))
	return nil
}

// DeleteGroup removes a group and ungroups its connections.
func (c *CLI) DeleteGroup(name string) error {
	err := c.app.Groups().Delete(name)
	var cascade *registry.CascadeError
	if errors.As(err, &cascade) && cascade.Phase == registry.PhaseConnections {
		return fmt.Errorf("group %s was removed but its connections could not be updated: %w", name, cascade.Err)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ Deleted group %s\n", name)
	return nil
}

// Connect launches a stored connection and waits for its window.
func (c *CLI) Connect(ctx context.Context, name string) error {
	p, err := c.app.Store().FindByName(name)
	if err != nil {
		return err
	}
	if p.HasCredential() {
		if err := c.Unlock(); err != nil {
			return err
		}
	}
	return c.connect(ctx, p)
}

func (c *CLI) connect(ctx context.Context, p *registry.Profile) error {
	c.ensureLoop()

	results := make(chan rdp.Result, 1)
	if _, err := c.app.Connect(ctx, p, func(r rdp.Result) { results <- r }); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	fmt.Fprintf(c.out, "Connecting to %s (%s)...\n", p.Name, p.Address)

	// Cancelling ctx ends the probe, so a result always arrives.
	r := <-results

	switch r.State {
	case rdp.StateSucceeded:
		fmt.Fprintf(c.out, "✓ Connected to %s in %s\n", p.Name, formatDuration(r.FinishedAt.Sub(r.StartedAt)))
		return nil
	case rdp.StateCancelled:
		return common.ErrCancelled
	default:
		return fmt.Errorf("connection failed: %w", r.Err)
	}
}

// OfferSave runs on the loop after an ad-hoc connection succeeds.
func (c *CLI) OfferSave(p *registry.Profile) {
	if !c.autoSave {
		ok, err := c.console.Confirm(fmt.Sprintf("Save connection to %s?", p.Address))
		if err != nil || !ok {
			return
		}
	}
	if err := c.app.SaveTemporary(p); err != nil {
		fmt.Fprintf(c.out, "  Warning: could not save %s: %v\n", p.Address, err)
		return
	}
	fmt.Fprintf(c.out, "✓ Saved %s\n", p.Address)
}

// Backup writes an archive of connections and groups to dir.
func (c *CLI) Backup(ctx context.Context, dir string, kind registry.ArchiveKind) error {
	c.ensureLoop()

	type outcome struct {
		path string
		err  error
	}
	done := make(chan outcome, 1)
	c.app.Backup(dir, kind, func(path string, err error) { done <- outcome{path, err} })

	select {
	case <-ctx.Done():
		return common.ErrCancelled
	case o := <-done:
		if o.err != nil {
			return o.err
		}
		fmt.Fprintf(c.out, "✓ Wrote %s\n", o.path)
		return nil
	}
}

// Import restores connections and groups from an archive.
func (c *CLI) Import(ctx context.Context, path string) error {
	c.ensureLoop()

	type outcome struct {
		replaced []string
		err      error
	}
	done := make(chan outcome, 1)
	c.app.Import(path, func(replaced []string, err error) { done <- outcome{replaced, err} })

	select {
	case <-ctx.Done():
		return common.ErrCancelled
	case o := <-done:
		if o.err != nil {
			return o.err
		}
		fmt.Fprintf(c.out, "✓ Restored %s\n", strings.Join(o.replaced, ", "))
		return nil
	}
}

// History shows the most recent launch attempts, for one connection when
// name is set.
func (c *CLI) History(ctx context.Context, name string, limit int) error {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var entries []history.Entry
	var err error
	if name == "" {
		entries, err = c.app.History().Recent(ctx, limit)
	} else {
		p, findErr := c.app.Store().FindByName(name)
		if findErr != nil {
			return findErr
		}
		entries, err = c.app.History().ForProfile(ctx, p.ID, limit)
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "No connection attempts recorded.")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tNAME\tADDRESS\tLOGIN\tOUTCOME\tDURATION")
	fmt.Fprintln(w, "-------\t----\t-------\t-----\t-------\t--------")
	for _, e := range entries {
		login := e.Login
		if login == "" {
			login = "-"
		}
		name := e.Name
		if e.Temporary {
			name += " (ad hoc)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Format(common.TimestampLayout), name, e.Address, login,
			e.Outcome, formatDuration(e.Duration()))
	}
	return w.Flush()
}

// Passwd sets the master passphrase, or changes it and re-encrypts every
// stored password.
func (c *CLI) Passwd() error {
	v := c.app.Vault()
	configured, err := v.Configured()
	if err != nil {
		return err
	}

	if !configured {
		next, err := c.console.NewSecret("New master passphrase: ")
		if err != nil {
			return err
		}
		if err := v.Setup(next); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "✓ Master passphrase set")
		c.rememberPassphrase(next)
		return nil
	}

	current, err := c.console.Secret("Current master passphrase: ")
	if err != nil {
		return err
	}
	next, err := c.console.NewSecret("New master passphrase: ")
	if err != nil {
		return err
	}
	if err := v.Rotate(current, next); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "✓ Master passphrase changed")

	if keyring.Remembered() {
		c.remember = true
	}
	c.rememberPassphrase(next)
	return nil
}

// RemovePassphrase removes the master passphrase and every stored password.
func (c *CLI) RemovePassphrase() error {
	current, err := c.console.Secret("Current master passphrase: ")
	if err != nil {
		return err
	}
	if err := c.app.Vault().Remove(current); err != nil {
		return err
	}
	if err := keyring.Forget(); err != nil {
		common.LogWarn("Failed to forget master passphrase: %v", err)
	}
	fmt.Fprintln(c.out, "✓ Master passphrase removed; stored passwords were cleared")
	return nil
}

// Doctor reports the external tools SwiftRDP needs and the current preferences.
func (c *CLI) Doctor() error {
	s := c.app.Settings()
	deps := rdp.CheckDependencies(s.ClientBinary, s.WindowLister)

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tPURPOSE\tSTATUS")
	fmt.Fprintln(w, "----\t-------\t------")
	for _, d := range deps {
		status := d.Path
		if !d.Found() {
			status = "missing"
			if !d.Required {
				status = "missing (optional)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, d.Purpose, status)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	prefs := c.app.Preferences()
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "Language:     %s\n", prefs.Language())
	fmt.Fprintf(c.out, "Theme:        %s\n", prefs.Theme())
	fmt.Fprintf(c.out, "Display mode: %s\n", prefs.DisplayMode())

	if missing := rdp.MissingRequired(deps); len(missing) > 0 {
		return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SetPreference stores a scalar preference.
func (c *CLI) SetPreference(k config.Key, value string) error {
	if err := c.app.Preferences().Set(k, value); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "✓ %s set to %s\n", k, c.app.Preferences().Get(k))
	return nil
}

// Session runs as the leader until ctx is done. target, when set, is a
// deep link to open right away.
func (c *CLI) Session(ctx context.Context, leader *instance.Leader, target string) error {
	s := c.app.Settings()
	if missing := rdp.MissingRequired(rdp.CheckDependencies(s.ClientBinary, s.WindowLister)); len(missing) > 0 {
		common.LogWarn("Missing required tools: %s", strings.Join(missing, ", "))
		fmt.Fprintf(c.out, "Warning: missing required tools: %s (run --doctor)\n", strings.Join(missing, ", "))
	}

	if target != "" {
		c.app.Loop().Post(func() { c.app.HandleDeepLink(target) })
	}

	common.LogInfo("%s session started", common.AppName)
	fmt.Fprintf(c.out, "%s is running. Open rdp:// links or press Ctrl+C to quit.\n", common.AppName)
	return c.app.Serve(ctx, leader)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// PrintHelp prints CLI usage help.
func PrintHelp() {
	fmt.Println(`SwiftRDP - Remote desktop connection manager

Usage:
  swiftrdp [OPTIONS] [rdp://ADDRESS]

Connections:
  --list                    List all connections
  --groups                  List all groups
  --add NAME                Add a connection (needs --address)
      --address HOST        Host name or IP address
      --logins U1,U2        Candidate user names
      --group GROUP         Group, created if missing
      --note TEXT           Free text note
      --password            Prompt for a password and store it encrypted
      --force               Accept an address already used by another connection
  --edit NAME               Change a connection (same field flags as --add,
                            plus --name NEW to rename)
  --delete NAME             Delete connections named NAME (in --group, if given)
  --add-group GROUP         Add a group
  --delete-group GROUP      Delete a group and ungroup its connections
  --connect NAME            Connect and wait for the client window
  --history                 Show recent connection attempts
  --history-for NAME        Show recent attempts for one connection

Backup:
  --backup DIR              Write swiftrdp-backup.tar.zst to DIR
  --export DIR              Write swiftrdp-export.tar.zst to DIR
  --import FILE             Restore connections and groups from an archive

Master passphrase:
  --passwd                  Set or change the master passphrase
  --remove-passphrase       Remove the master passphrase and stored passwords
  --remember                Keep the master passphrase in the system keyring

Preferences:
  --set-theme auto|light|dark
  --set-language TAG
  --set-mode window|tabs

Other:
  --doctor                  Check required external tools
  --save-temp               Save ad-hoc connections without asking
  --version                 Show version and exit
  --verbose                 Enable verbose logging
  --help                    Show this help message

Examples:
  swiftrdp --add office --address 10.0.0.5 --logins alice,admin --password
  swiftrdp --connect office
  swiftrdp rdp://10.0.0.5
  swiftrdp --backup ~/Backups

Notes:
  - Run without options to start a session that serves rdp:// links
  - A second invocation with a link hands it to the running session`)
}
