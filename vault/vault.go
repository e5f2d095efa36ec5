package vault

import (
	"fmt"
	"sync"

	"github.com/yllada/swiftrdp/common"
	"github.com/yllada/swiftrdp/registry"
)

// GateStore persists the one-way passphrase hash.
// An empty hash means no master passphrase is configured.
type GateStore interface {
	GateHash() (string, error)
	SetGateHash(hash string) error
}

// CredentialStore is the part of the connection store the vault rewrites.
type CredentialStore interface {
	Rewrite(fn func(list []*registry.Profile) ([]*registry.Profile, error)) ([]*registry.Profile, error)
	Save(profiles []*registry.Profile) error
}

// Vault owns the in-memory credential key for the session.
type Vault struct {
	mu       sync.RWMutex
	gate     GateStore
	store    CredentialStore
	key      Key
	unlocked bool
	// hash is the gate hash the current key was checked against.
	hash string
}

// New creates a locked vault.
func New(gate GateStore, store CredentialStore) *Vault {
	return &Vault{gate: gate, store: store}
}

// Configured reports whether a master passphrase has been set up.
func (v *Vault) Configured() (bool, error) {
	hash, err := v.gate.GateHash()
	if err != nil {
		return false, err
	}
	return hash != "", nil
}

// Unlocked reports whether the credential key is available.
func (v *Vault) Unlocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.unlocked
}

// Setup stores the gate hash for a first passphrase and unlocks the vault.
func (v *Vault) Setup(passphrase string) error {
	if passphrase == "" {
		return fmt.Errorf("%w: passphrase must not be empty", common.ErrNoPassphrase)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	hash, err := v.gate.GateHash()
	if err != nil {
		return err
	}
	if hash != "" {
		return common.ErrPassphraseExists
	}

	newHash, err := HashForGate(passphrase)
	if err != nil {
		return err
	}
	if err := v.gate.SetGateHash(newHash); err != nil {
		return common.WrapError(err, "failed to store passphrase hash")
	}

	v.setKey(DeriveKey(passphrase), newHash)
	common.LogInfo("Master passphrase configured")
	return nil
}

// Unlock verifies passphrase against the gate hash and loads the key.
func (v *Vault) Unlock(passphrase string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	hash, err := v.verify(passphrase)
	if err != nil {
		return err
	}
	v.setKey(DeriveKey(passphrase), hash)
	return nil
}

// Lock zeroes the in-memory key.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.key.Zero()
	v.unlocked = false
	v.hash = ""
}

// SyncGate reacts to the gate hash being changed outside this vault, for
// example by another process. A key checked against a different hash no
// longer matches the stored credentials and is zeroed. Changes this vault
// made itself are recognised and ignored.
func (v *Vault) SyncGate(hash string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.unlocked || hash == v.hash {
		return
	}
	v.key.Zero()
	v.unlocked = false
	v.hash = ""
	if hash == "" {
		common.LogWarn("Master passphrase was removed elsewhere, vault locked")
	} else {
		common.LogWarn("Master passphrase was changed elsewhere, vault locked")
	}
}

// Rotate changes the master passphrase. Every stored credential is
// re-encrypted under the new key in one write before the new gate hash is
// committed; if committing the hash fails the previous connection set is
// written back. The in-memory key changes only after both writes succeed.
func (v *Vault) Rotate(current, next string) error {
	if next == "" {
		return fmt.Errorf("%w: passphrase must not be empty", common.ErrNoPassphrase)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.verify(current); err != nil {
		return err
	}

	newHash, err := HashForGate(next)
	if err != nil {
		return err
	}

	oldKey := DeriveKey(current)
	newKey := DeriveKey(next)
	defer oldKey.Zero()

	rewritten := 0
	previous, err := v.store.Rewrite(func(list []*registry.Profile) ([]*registry.Profile, error) {
		for _, p := range list {
			if p.CredentialCipher == "" {
				continue
			}
			plain := Decrypt(p.CredentialCipher, oldKey)
			if plain == "" {
				common.LogWarn("Credential for %s could not be decrypted and was cleared", p.Name)
				p.CredentialCipher = ""
				continue
			}
			sealed, err := Encrypt(plain, newKey)
			if err != nil {
				return nil, err
			}
			p.CredentialCipher = sealed
			rewritten++
		}
		return list, nil
	})
	if err != nil {
		newKey.Zero()
		return common.WrapError(err, "failed to re-encrypt credentials")
	}

	if err := v.gate.SetGateHash(newHash); err != nil {
		newKey.Zero()
		if restoreErr := v.store.Save(previous); restoreErr != nil {
			common.LogError("Failed to restore credentials after passphrase change: %v", restoreErr)
			return fmt.Errorf("store passphrase hash: %w (restore also failed: %v)", err, restoreErr)
		}
		return common.WrapError(err, "failed to store passphrase hash")
	}

	v.setKey(newKey, newHash)
	common.LogInfo("Master passphrase changed, %d credential(s) re-encrypted", rewritten)
	return nil
}

// Remove drops the master passphrase: every stored credential is blanked,
// the gate hash is deleted and the key is zeroed.
func (v *Vault) Remove(current string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.verify(current); err != nil {
		return err
	}

	previous, err := v.store.Rewrite(func(list []*registry.Profile) ([]*registry.Profile, error) {
		for _, p := range list {
			p.CredentialCipher = ""
		}
		return list, nil
	})
	if err != nil {
		return common.WrapError(err, "failed to clear credentials")
	}

	if err := v.gate.SetGateHash(""); err != nil {
		if restoreErr := v.store.Save(previous); restoreErr != nil {
			common.LogError("Failed to restore credentials after passphrase removal: %v", restoreErr)
		}
		return common.WrapError(err, "failed to remove passphrase hash")
	}

	v.key.Zero()
	v.unlocked = false
	v.hash = ""
	common.LogInfo("Master passphrase removed")
	return nil
}

// Seal encrypts a password for storage.
func (v *Vault) Seal(plain string) (string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.unlocked {
		return "", common.ErrVaultLocked
	}
	return Encrypt(plain, v.key)
}

// Open decrypts a stored credential. A locked vault, an empty cipher or
// undecryptable data all yield "".
func (v *Vault) Open(cipher string) string {
	if cipher == "" {
		return ""
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if !v.unlocked {
		return ""
	}
	return Decrypt(cipher, v.key)
}

// verify returns the gate hash passphrase matched. It must be called with
// v.mu held.
func (v *Vault) verify(passphrase string) (string, error) {
	hash, err := v.gate.GateHash()
	if err != nil {
		return "", err
	}
	if hash == "" {
		return "", common.ErrNoPassphrase
	}
	if !CheckGate(passphrase, hash) {
		return "", common.ErrPassphraseMismatch
	}
	return hash, nil
}

// setKey must be called with v.mu held.
func (v *Vault) setKey(k Key, hash string) {
	v.key.Zero()
	v.key = k
	v.hash = hash
	v.unlocked = true
}
