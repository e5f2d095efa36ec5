// Package instance makes sure only one SwiftRDP process owns the registry.
//
// The first process binds a unix-domain socket and becomes the leader.
// Later invocations connect to it, forward their deep-link argument and
// exit. Messages are handled on the leader's UI loop, never on the accept
// goroutine.
package instance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/yllada/swiftrdp/common"
)

// maxMessageSize bounds a single forwarded argument.
const maxMessageSize = 4096

// Handler receives the target of a forwarded deep link.
type Handler func(target string)

// Leader owns the rendezvous socket.
type Leader struct {
	path string
	ln   net.Listener

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Acquire binds the socket at path. If another live process already owns
// it, ErrAlreadyRunning is returned. A socket file left behind by a dead
// process is removed and the bind is retried once.
func Acquire(path string) (*Leader, error) {
	ln, err := net.Listen("unix", path)
	if err == nil {
		return &Leader{path: path, ln: ln}, nil
	}

	conn, dialErr := net.DialTimeout("unix", path, common.RendezvousTimeout)
	if dialErr == nil {
		conn.Close()
		return nil, common.ErrAlreadyRunning
	}

	common.LogInfo("Removing stale instance socket %s", path)
	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return nil, common.NewStorageError("remove", path, rmErr)
	}

	ln, err = net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bind instance socket: %w", err)
	}
	return &Leader{path: path, ln: ln}, nil
}

// Path returns the socket path.
func (l *Leader) Path() string {
	return l.path
}

// Serve accepts forwarded messages until ctx is done or the leader is
// closed. Valid deep links are handed to handler through dispatcher.
func (l *Leader) Serve(ctx context.Context, dispatcher common.Dispatcher, handler Handler) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.wg.Wait()
				return nil
			}
			common.LogWarn("Instance socket accept failed: %v", err)
			continue
		}

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handle(conn, dispatcher, handler)
		}()
	}
}

func (l *Leader) handle(conn net.Conn, dispatcher common.Dispatcher, handler Handler) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(common.RendezvousTimeout))
	data, err := io.ReadAll(io.LimitReader(conn, maxMessageSize))
	if err != nil {
		common.LogWarn("Failed to read forwarded message: %v", err)
		return
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return
	}

	target, ok := ParseDeepLink(msg)
	if !ok {
		common.LogWarn("Ignoring forwarded argument %q", msg)
		return
	}

	common.LogInfo("Received deep link for %s", target)
	dispatcher.Post(func() { handler(target) })
}

// Close stops accepting and removes the socket file.
func (l *Leader) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.ln.Close()
		if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
	})
	return err
}

// Forward sends arg verbatim to the running leader, one message per
// connection.
func Forward(path, arg string) error {
	conn, err := net.DialTimeout("unix", path, common.RendezvousTimeout)
	if err != nil {
		return fmt.Errorf("connect to running instance: %w", err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(common.RendezvousTimeout))
	if _, err := io.WriteString(conn, arg); err != nil {
		return fmt.Errorf("forward to running instance: %w", err)
	}
	return nil
}

// ParseDeepLink extracts the host from an rdp://host argument.
// The scheme is matched case-insensitively; a port is kept.
func ParseDeepLink(arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	prefix := common.DeepLinkScheme + "://"
	if len(arg) <= len(prefix) || !strings.EqualFold(arg[:len(prefix)], prefix) {
		return "", false
	}

	u, err := url.Parse(prefix + arg[len(prefix):])
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.User != nil {
		return "", false
	}
	return u.Host, true
}
