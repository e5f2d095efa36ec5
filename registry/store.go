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

// DuplicateAddressError is returned by Add when another connection already
// points at the same address. Callers may confirm and retry with
// allowDuplicateAddress set.
type DuplicateAddressError struct {
	Address  string
	Existing string
}

func (e *DuplicateAddressError) Error() string {
	return fmt.Sprintf("address %s is already used by %q", e.Address, e.Existing)
}

func (e *DuplicateAddressError) Unwrap() error {
	return common.ErrDuplicateAddress
}

// Store persists connection profiles in a flat pipe-delimited file.
// Every mutation is a read-modify-write under the store mutex and an
// advisory file lock, so two processes never interleave writes.
type Store struct {
	path string
	mu   sync.Mutex
	lock *fileLock
}

// NewStore creates a store for connections.txt inside dir.
func NewStore(dir string) *Store {
	path := filepath.Join(dir, common.ConnectionsFileName)
	return &Store{
		path: path,
		lock: newFileLock(path),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// withLock runs fn holding both the in-process and the cross-process lock.
func (s *Store) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.lock.Lock()
	if err != nil {
		return common.NewStorageError("lock", s.path, err)
	}
	defer func() {
		if err := h.Unlock(); err != nil {
			common.LogWarn("Failed to release lock on %s: %v", s.path, err)
		}
	}()

	return fn()
}

// read parses the file. A missing file is created empty.
// The returned flag reports whether any record was given a fresh id.
func (s *Store) read() ([]*Profile, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, false, common.NewStorageError("read", s.path, err)
		}
		if err := common.AtomicWriteFile(s.path, nil, 0600); err != nil {
			return nil, false, err
		}
		return make([]*Profile, 0), false, nil
	}

	profiles := decodeRecords(data)
	migrated := false
	for _, p := range profiles {
		if p.ensureID() {
			migrated = true
		}
	}
	return profiles, migrated, nil
}

func (s *Store) write(profiles []*Profile) error {
	return common.AtomicWriteFile(s.path, encodeRecords(profiles), 0600)
}

// Load returns every stored profile. Records written before ids existed
// are assigned one and written back so the id stays stable across runs.
func (s *Store) Load() ([]*Profile, error) {
	var profiles []*Profile
	err := s.withLock(func() error {
		list, migrated, err := s.read()
		if err != nil {
			return err
		}
		if migrated {
			if err := s.write(list); err != nil {
				common.LogWarn("Failed to persist connection ids: %v", err)
			} else {
				common.LogInfo("Assigned ids to legacy connection records")
			}
		}
		profiles = list
		return nil
	})
	return profiles, err
}

// Save replaces the whole file with profiles. Temporary profiles are skipped.
func (s *Store) Save(profiles []*Profile) error {
	return s.withLock(func() error {
		return s.write(profiles)
	})
}

// mutate loads the current list, lets fn change it and saves the result.
func (s *Store) mutate(fn func(list []*Profile) ([]*Profile, error)) error {
	return s.withLock(func() error {
		list, _, err := s.read()
		if err != nil {
			return err
		}
		list, err = fn(list)
		if err != nil {
			return err
		}
		return s.write(list)
	})
}

// Add appends a new profile. Name clashes are rejected; an address clash
// returns *DuplicateAddressError unless allowDuplicateAddress is set.
func (s *Store) Add(p *Profile, allowDuplicateAddress bool) error {
	if p.Temporary {
		return fmt.Errorf("%w: temporary connections are not stored", common.ErrInvalidProfile)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	return s.mutate(func(list []*Profile) ([]*Profile, error) {
		for _, existing := range list {
			if existing.Name == p.Name {
				return nil, fmt.Errorf("%w: %s", common.ErrDuplicateName, p.Name)
			}
		}
		if !allowDuplicateAddress {
			for _, existing := range list {
				if strings.EqualFold(existing.Address, p.Address) {
					return nil, &DuplicateAddressError{Address: p.Address, Existing: existing.Name}
				}
			}
		}

		p.ensureID()
		if p.LastConnected == "" {
			p.LastConnected = common.NeverConnected
		}
		common.LogInfo("Adding connection %s (%s)", p.Name, p.Address)
		return append(list, p.Clone()), nil
	})
}

// Update replaces the profile with the given id.
func (s *Store) Update(id string, p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	return s.mutate(func(list []*Profile) ([]*Profile, error) {
		idx := -1
		for i, existing := range list {
			if existing.ID == id {
				idx = i
				continue
			}
			if existing.Name == p.Name {
				return nil, fmt.Errorf("%w: %s", common.ErrDuplicateName, p.Name)
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", common.ErrProfileNotFound, id)
		}

		updated := p.Clone()
		updated.ID = id
		updated.Temporary = false
		list[idx] = updated
		return list, nil
	})
}

// UpdateMatching replaces the first record whose fields equal old.
// When old carries no id, ids are ignored in the comparison.
func (s *Store) UpdateMatching(old, updated *Profile) error {
	if err := updated.Validate(); err != nil {
		return err
	}

	return s.mutate(func(list []*Profile) ([]*Profile, error) {
		for i, existing := range list {
			probe := old.Clone()
			if probe.ID == "" {
				probe.ID = existing.ID
			}
			if !existing.Equal(probe) {
				continue
			}
			for j, other := range list {
				if j != i && other.Name == updated.Name {
					return nil, fmt.Errorf("%w: %s", common.ErrDuplicateName, updated.Name)
				}
			}
			next := updated.Clone()
			next.ID = existing.ID
			next.Temporary = false
			list[i] = next
			return list, nil
		}
		return nil, fmt.Errorf("%w: %s", common.ErrProfileNotFound, old.Name)
	})
}

// Delete removes every record matching name and group and returns how
// many were removed.
func (s *Store) Delete(name, group string) (int, error) {
	removed := 0
	err := s.mutate(func(list []*Profile) ([]*Profile, error) {
		kept := list[:0]
		for _, p := range list {
			if p.Name == name && p.Group == group {
				removed++
				continue
			}
			kept = append(kept, p)
		}
		return kept, nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Remove deletes the profile with the given id.
func (s *Store) Remove(id string) error {
	return s.mutate(func(list []*Profile) ([]*Profile, error) {
		for i, p := range list {
			if p.ID == id {
				return append(list[:i], list[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", common.ErrProfileNotFound, id)
	})
}

// SetLastConnected stamps a successful launch.
func (s *Store) SetLastConnected(id, timestamp string) error {
	return s.mutate(func(list []*Profile) ([]*Profile, error) {
		for _, p := range list {
			if p.ID == id {
				p.LastConnected = timestamp
				return list, nil
			}
		}
		return nil, fmt.Errorf("%w: %s", common.ErrProfileNotFound, id)
	})
}

// Rewrite applies fn to the full profile set and saves the result in one
// atomic write. It returns the set as it was before fn ran, which callers
// can hand back to Save to undo the change.
func (s *Store) Rewrite(fn func(list []*Profile) ([]*Profile, error)) ([]*Profile, error) {
	var previous []*Profile
	err := s.mutate(func(list []*Profile) ([]*Profile, error) {
		previous = cloneAll(list)
		return fn(list)
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

// replaceRaw overwrites the file with already-encoded content (restore path).
func (s *Store) replaceRaw(data []byte) error {
	return s.withLock(func() error {
		return common.AtomicWriteFile(s.path, data, 0600)
	})
}

// Get returns the profile with the given id.
func (s *Store) Get(id string) (*Profile, error) {
	return s.find(func(p *Profile) bool { return p.ID == id }, id)
}

// FindByName returns the profile with the given name.
func (s *Store) FindByName(name string) (*Profile, error) {
	return s.find(func(p *Profile) bool { return p.Name == name }, name)
}

// FindByAddress returns the first profile pointing at address.
// The comparison ignores case.
func (s *Store) FindByAddress(address string) (*Profile, error) {
	return s.find(func(p *Profile) bool { return strings.EqualFold(p.Address, address) }, address)
}

// ListByGroup returns the profiles in group. An empty group lists the
// ungrouped connections.
func (s *Store) ListByGroup(group string) ([]*Profile, error) {
	list, err := s.Load()
	if err != nil {
		return nil, err
	}
	result := make([]*Profile, 0)
	for _, p := range list {
		if p.Group == group {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *Store) find(match func(*Profile) bool, key string) (*Profile, error) {
	list, err := s.Load()
	if err != nil {
		return nil, err
	}
	for _, p := range list {
		if match(p) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", common.ErrProfileNotFound, key)
}

func cloneAll(list []*Profile) []*Profile {
	out := make([]*Profile, len(list))
	for i, p := range list {
		out[i] = p.Clone()
	}
	return out
}
