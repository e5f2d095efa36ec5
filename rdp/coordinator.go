package rdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yllada/swiftrdp/common"
	"github.com/yllada/swiftrdp/history"
	"github.com/yllada/swiftrdp/registry"
)

// State is the phase of a launch attempt.
type State int32

const (
	StateIdle State = iota
	StateResolving
	StateSpawned
	StateProbing
	StateSucceeded
	StateFailed
	StateTimedOut
	StateCancelled
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateResolving:
		return "Resolving credentials..."
	case StateSpawned:
		return "Starting client..."
	case StateProbing:
		return "Waiting for window..."
	case StateSucceeded:
		return "Connected"
	case StateFailed:
		return "Failed"
	case StateTimedOut:
		return "Timed out"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the attempt has finished.
func (s State) Terminal() bool {
	return s >= StateSucceeded
}

// Prompter asks the user for launch inputs. Implementations may return an
// error wrapping common.ErrCancelled when the user backs out.
type Prompter interface {
	SelectLogin(p *registry.Profile) (string, error)
	PromptPassword(p *registry.Profile, login string) (string, error)
}

// CredentialOpener decrypts stored credentials (vault.Vault).
type CredentialOpener interface {
	Open(cipher string) string
}

// Stamper records a successful launch (registry.Store).
type Stamper interface {
	SetLastConnected(id, timestamp string) error
}

// HistoryRecorder stores attempt outcomes (history.Database).
type HistoryRecorder interface {
	Record(ctx context.Context, e *history.Entry) error
}

// Options tune the probe.
type Options struct {
	// Interval is the delay between two window listings.
	Interval time.Duration
	// Timeout bounds the whole probe.
	Timeout time.Duration
	// Marker is the title prefix searched for in the window list.
	Marker string
}

// DefaultOptions returns the standard probe timing.
func DefaultOptions() Options {
	return Options{
		Interval: common.ProbeInterval,
		Timeout:  common.ProbeTimeout,
		Marker:   common.WindowMarker,
	}
}

// Result is delivered once per attempt.
type Result struct {
	Profile    *registry.Profile
	Login      string
	State      State
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Attempt is an in-flight launch.
type Attempt struct {
	state  atomic.Int32
	cancel context.CancelFunc
	done   chan struct{}
	result Result
}

// State returns the current phase.
func (a *Attempt) State() State {
	return State(a.state.Load())
}

func (a *Attempt) setState(s State) {
	a.state.Store(int32(s))
}

// Cancel stops probing. The client process keeps running.
func (a *Attempt) Cancel() {
	a.cancel()
}

// Done is closed when the attempt reaches a terminal state.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the attempt finishes and returns its result.
func (a *Attempt) Wait() Result {
	<-a.done
	return a.result
}

// Coordinator drives launch attempts, one at a time.
type Coordinator struct {
	client     Client
	lister     WindowLister
	opener     CredentialOpener
	stamper    Stamper
	history    HistoryRecorder
	dispatcher common.Dispatcher
	opts       Options

	busy atomic.Bool
	now  func() time.Time

	mu      sync.Mutex
	current *Attempt
}

// NewCoordinator wires a coordinator. history may be nil.
func NewCoordinator(client Client, lister WindowLister, opener CredentialOpener, stamper Stamper,
	hist HistoryRecorder, dispatcher common.Dispatcher, opts Options) *Coordinator {
	def := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Marker == "" {
		opts.Marker = def.Marker
	}
	if dispatcher == nil {
		dispatcher = common.Inline
	}
	return &Coordinator{
		client:     client,
		lister:     lister,
		opener:     opener,
		stamper:    stamper,
		history:    hist,
		dispatcher: dispatcher,
		opts:       opts,
		now:        time.Now,
	}
}

// Busy reports whether an attempt is in flight.
func (c *Coordinator) Busy() bool {
	return c.busy.Load()
}

// Current returns the in-flight attempt, or nil.
func (c *Coordinator) Current() *Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Connect resolves credentials, starts the client and begins probing.
// Errors before the client is running are returned directly and no
// attempt is created. Afterwards the outcome is delivered to onDone
// through the dispatcher; onDone may be nil.
func (c *Coordinator) Connect(ctx context.Context, p *registry.Profile, prompter Prompter, onDone func(Result)) (*Attempt, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, common.ErrBusy
	}

	attempt := &Attempt{done: make(chan struct{})}
	attempt.setState(StateResolving)
	started := c.now()

	login, password, err := c.resolve(p, prompter)
	if err != nil {
		c.busy.Store(false)
		return nil, err
	}

	params := Params{
		Address:  p.Address,
		Login:    login,
		Password: password,
		Title:    WindowTitle(p.Name, p.Address),
	}
	attempt.setState(StateSpawned)
	if err := c.client.Start(ctx, params); err != nil {
		c.busy.Store(false)
		c.record(p, login, StateFailed, err, started)
		var launchErr *LaunchError
		if !errors.As(err, &launchErr) {
			err = &LaunchError{Binary: "client", Err: err}
		}
		return nil, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	attempt.cancel = cancel
	attempt.setState(StateProbing)

	c.mu.Lock()
	c.current = attempt
	c.mu.Unlock()

	go c.probe(probeCtx, attempt, p.Clone(), login, started, onDone)
	return attempt, nil
}

// resolve picks the login and the password.
func (c *Coordinator) resolve(p *registry.Profile, prompter Prompter) (string, string, error) {
	login := ""
	switch {
	case len(p.Logins) == 1:
		login = p.Logins[0]
	case len(p.Logins) > 1:
		if prompter == nil {
			return "", "", fmt.Errorf("%w: several logins and no way to choose", common.ErrNoCredential)
		}
		chosen, err := prompter.SelectLogin(p)
		if err != nil {
			return "", "", err
		}
		login = chosen
	}

	password := ""
	if c.opener != nil && p.HasCredential() {
		password = c.opener.Open(p.CredentialCipher)
		if password == "" {
			common.LogWarn("Stored credential for %s could not be decrypted", p.Name)
		}
	}
	if password == "" && prompter != nil {
		entered, err := prompter.PromptPassword(p, login)
		if err != nil {
			return "", "", err
		}
		password = entered
	}
	if password == "" {
		return "", "", fmt.Errorf("%w for %s", common.ErrNoCredential, p.Name)
	}
	return login, password, nil
}

// probe polls the window list until the tagged window shows up.
func (c *Coordinator) probe(ctx context.Context, attempt *Attempt, p *registry.Profile, login string, started time.Time, onDone func(Result)) {
	defer attempt.cancel()

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	state := StateTimedOut
	var err error

poll:
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				state = StateTimedOut
				err = fmt.Errorf("%w: no window for %s after %s", common.ErrConnectionFailed, p.Address, c.opts.Timeout)
			} else {
				state = StateCancelled
				err = common.ErrCancelled
			}
			break poll
		case <-ticker.C:
			lines, listErr := c.lister.List(ctx)
			if listErr != nil {
				common.LogDebug("Window listing failed: %v", listErr)
				continue
			}
			if MatchWindow(lines, c.opts.Marker, p.Address) {
				state = StateSucceeded
				break poll
			}
		}
	}

	if state == StateSucceeded && !p.Temporary && c.stamper != nil {
		ts := c.now().Format(common.TimestampLayout)
		if stampErr := c.stamper.SetLastConnected(p.ID, ts); stampErr != nil {
			common.LogWarn("Failed to update last connection time for %s: %v", p.Name, stampErr)
		} else {
			p.LastConnected = ts
		}
	}

	switch state {
	case StateSucceeded:
		common.LogInfo("Connected to %s (%s)", p.Name, p.Address)
	case StateCancelled:
		common.LogInfo("Connection attempt to %s cancelled", p.Name)
	default:
		common.LogWarn("Connection to %s could not be confirmed: %v", p.Name, err)
	}

	result := c.record(p, login, state, err, started)

	attempt.result = result
	attempt.setState(state)

	c.mu.Lock()
	if c.current == attempt {
		c.current = nil
	}
	c.mu.Unlock()
	c.busy.Store(false)
	close(attempt.done)

	if onDone != nil {
		c.dispatcher.Post(func() { onDone(result) })
	}
}

// record builds the result and appends it to history.
func (c *Coordinator) record(p *registry.Profile, login string, state State, err error, started time.Time) Result {
	result := Result{
		Profile:    p,
		Login:      login,
		State:      state,
		Err:        err,
		StartedAt:  started,
		FinishedAt: c.now(),
	}

	if c.history == nil {
		return result
	}

	entry := &history.Entry{
		ProfileID:  p.ID,
		Name:       p.Name,
		Address:    p.Address,
		Login:      login,
		Outcome:    outcomeFor(state),
		Temporary:  p.Temporary,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if herr := c.history.Record(ctx, entry); herr != nil {
		common.LogWarn("Failed to record launch history: %v", herr)
	}
	return result
}

func outcomeFor(s State) string {
	switch s {
	case StateSucceeded:
		return history.OutcomeSucceeded
	case StateTimedOut:
		return history.OutcomeTimedOut
	case StateCancelled:
		return history.OutcomeCancelled
	default:
		return history.OutcomeFailed
	}
}
