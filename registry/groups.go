package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/yllada/swiftrdp/common"
)

// Cascade phases reported by CascadeError.
const (
	PhaseGroups      = "groups"
	PhaseConnections = "connections"
)

// CascadeError reports which step of a group deletion failed.
// When Phase is PhaseConnections the group is already gone from the group
// file but some connections may still reference it.
type CascadeError struct {
	Group string
	Phase string
	Err   error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("delete group %q failed during %s update: %v", e.Group, e.Phase, e.Err)
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}

// GroupStore persists group names, one per line.
type GroupStore struct {
	path        string
	mu          sync.Mutex
	lock        *fileLock
	connections *Store
}

// NewGroupStore creates a group store for groups.txt inside dir. Deletions
// cascade into connections.
func NewGroupStore(dir string, connections *Store) *GroupStore {
	path := filepath.Join(dir, common.GroupsFileName)
	return &GroupStore{
		path:        path,
		lock:        newFileLock(path),
		connections: connections,
	}
}

// Path returns the backing file path.
func (g *GroupStore) Path() string {
	return g.path
}

func (g *GroupStore) withLock(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	h, err := g.lock.Lock()
	if err != nil {
		return common.NewStorageError("lock", g.path, err)
	}
	defer func() {
		if err := h.Unlock(); err != nil {
			common.LogWarn("Failed to release lock on %s: %v", g.path, err)
		}
	}()

	return fn()
}

func (g *GroupStore) read() ([]string, error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make([]string, 0), nil
		}
		return nil, common.NewStorageError("read", g.path, err)
	}
	return decodeGroups(data), nil
}

// List returns the group names in file order.
func (g *GroupStore) List() ([]string, error) {
	var groups []string
	err := g.withLock(func() error {
		var err error
		groups, err = g.read()
		return err
	})
	return groups, err
}

// Add registers a group. Adding an existing group is a no-op.
func (g *GroupStore) Add(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: group name is required", common.ErrInvalidProfile)
	}
	if strings.ContainsAny(name, "|\r\n") {
		return fmt.Errorf("%w: group must not contain '|' or line breaks", common.ErrInvalidProfile)
	}

	return g.withLock(func() error {
		groups, err := g.read()
		if err != nil {
			return err
		}
		if common.StringInSlice(name, groups) {
			return nil
		}
		common.LogInfo("Adding group %s", name)
		return common.AtomicWriteFile(g.path, encodeGroups(append(groups, name)), 0600)
	})
}

// Delete removes a group and moves its connections to ungrouped.
// Connections are never deleted by this operation.
func (g *GroupStore) Delete(name string) error {
	err := g.withLock(func() error {
		groups, err := g.read()
		if err != nil {
			return err
		}
		return common.AtomicWriteFile(g.path, encodeGroups(common.RemoveFromSlice(groups, name)), 0600)
	})
	if err != nil {
		return &CascadeError{Group: name, Phase: PhaseGroups, Err: err}
	}

	cleared := 0
	_, err = g.connections.Rewrite(func(list []*Profile) ([]*Profile, error) {
		for _, p := range list {
			if p.Group == name {
				p.Group = ""
				cleared++
			}
		}
		return list, nil
	})
	if err != nil {
		return &CascadeError{Group: name, Phase: PhaseConnections, Err: err}
	}

	common.LogInfo("Deleted group %s, %d connection(s) moved to ungrouped", name, cleared)
	return nil
}

func (g *GroupStore) replaceRaw(data []byte) error {
	return g.withLock(func() error {
		return common.AtomicWriteFile(g.path, data, 0600)
	})
}
