package vault

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yllada/swiftrdp/common"
	"github.com/yllada/swiftrdp/registry"
)

type memGate struct {
	hash    string
	failSet bool
}

func (g *memGate) GateHash() (string, error) {
	return g.hash, nil
}

func (g *memGate) SetGateHash(hash string) error {
	if g.failSet {
		return errors.New("disk full")
	}
	g.hash = hash
	return nil
}

func setupVault(t *testing.T, passphrase string) (*Vault, *memGate, *registry.Store) {
	t.Helper()
	store := registry.NewStore(t.TempDir())
	gate := &memGate{}
	v := New(gate, store)
	require.NoError(t, v.Setup(passphrase))
	return v, gate, store
}

func addSealed(t *testing.T, v *Vault, store *registry.Store, name, password string) {
	t.Helper()
	sealed, err := v.Seal(password)
	require.NoError(t, err)
	require.NoError(t, store.Add(&registry.Profile{Name: name, Address: name + ".local", CredentialCipher: sealed}, false))
}

func TestVault_SetupAndUnlock(t *testing.T) {
	store := registry.NewStore(t.TempDir())
	gate := &memGate{}
	v := New(gate, store)

	configured, err := v.Configured()
	require.NoError(t, err)
	assert.False(t, configured)
	assert.True(t, errors.Is(v.Unlock("x"), common.ErrNoPassphrase))

	require.NoError(t, v.Setup("master"))
	assert.True(t, v.Unlocked())
	assert.True(t, errors.Is(v.Setup("again"), common.ErrPassphraseExists))

	v.Lock()
	assert.False(t, v.Unlocked())
	_, err = v.Seal("pw")
	assert.True(t, errors.Is(err, common.ErrVaultLocked))

	assert.True(t, errors.Is(v.Unlock("wrong"), common.ErrPassphraseMismatch))
	assert.False(t, v.Unlocked())
	require.NoError(t, v.Unlock("master"))
	assert.True(t, v.Unlocked())
}

func TestVault_SetupRejectsEmpty(t *testing.T) {
	v := New(&memGate{}, registry.NewStore(t.TempDir()))
	assert.True(t, errors.Is(v.Setup(""), common.ErrNoPassphrase))
}

func TestVault_SealOpen(t *testing.T) {
	v, _, _ := setupVault(t, "master")

	sealed, err := v.Seal("hunter2")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v.Open(sealed))
	assert.Equal(t, "", v.Open(""))
	assert.Equal(t, "", v.Open("garbage"))

	v.Lock()
	assert.Equal(t, "", v.Open(sealed))
}

func TestVault_RotateCorrectPassphrase(t *testing.T) {
	v, gate, store := setupVault(t, "P")
	addSealed(t, v, store, "a", "pw-a")
	addSealed(t, v, store, "b", "pw-b")
	require.NoError(t, store.Add(&registry.Profile{Name: "plain", Address: "p.local"}, false))

	oldHash := gate.hash
	require.NoError(t, v.Rotate("P", "Q"))
	assert.NotEqual(t, oldHash, gate.hash)
	assert.True(t, CheckGate("Q", gate.hash))

	profiles, err := store.Load()
	require.NoError(t, err)
	want := map[string]string{"a": "pw-a", "b": "pw-b", "plain": ""}
	for _, p := range profiles {
		assert.Equal(t, want[p.Name], Decrypt(p.CredentialCipher, DeriveKey("Q")), p.Name)
		assert.Equal(t, want[p.Name], v.Open(p.CredentialCipher), p.Name)
		if p.CredentialCipher != "" {
			assert.Equal(t, "", Decrypt(p.CredentialCipher, DeriveKey("P")))
		}
	}
}

func TestVault_RotateWrongPassphrase(t *testing.T) {
	v, gate, store := setupVault(t, "P")
	addSealed(t, v, store, "a", "pw-a")

	before, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	oldHash := gate.hash

	err = v.Rotate("R", "Q")
	assert.True(t, errors.Is(err, common.ErrPassphraseMismatch))

	after, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, oldHash, gate.hash)
}

func TestVault_RotateRestoresOnGateFailure(t *testing.T) {
	v, gate, store := setupVault(t, "P")
	addSealed(t, v, store, "a", "pw-a")

	before, err := store.Load()
	require.NoError(t, err)

	gate.failSet = true
	require.Error(t, v.Rotate("P", "Q"))

	after, err := store.Load()
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].CredentialCipher, after[0].CredentialCipher)
	assert.Equal(t, "pw-a", v.Open(after[0].CredentialCipher), "in-memory key must be unchanged")
	assert.True(t, CheckGate("P", gate.hash))
}

func TestVault_RotateClearsUndecryptable(t *testing.T) {
	v, _, store := setupVault(t, "P")
	foreign, err := Encrypt("x", DeriveKey("someone-else"))
	require.NoError(t, err)
	require.NoError(t, store.Add(&registry.Profile{Name: "f", Address: "f.local", CredentialCipher: foreign}, false))

	require.NoError(t, v.Rotate("P", "Q"))

	p, err := store.FindByName("f")
	require.NoError(t, err)
	assert.Empty(t, p.CredentialCipher)
}

func TestVault_Remove(t *testing.T) {
	v, gate, store := setupVault(t, "P")
	addSealed(t, v, store, "a", "pw-a")

	assert.True(t, errors.Is(v.Remove("wrong"), common.ErrPassphraseMismatch))
	require.NoError(t, v.Remove("P"))

	assert.Empty(t, gate.hash)
	assert.False(t, v.Unlocked())

	p, err := store.FindByName("a")
	require.NoError(t, err)
	assert.Empty(t, p.CredentialCipher)

	configured, err := v.Configured()
	require.NoError(t, err)
	assert.False(t, configured)
}

func TestVault_SyncGate(t *testing.T) {
	tests := []struct {
		name         string
		hash         func(current string) string
		wantUnlocked bool
	}{
		{"same hash", func(current string) string { return current }, true},
		{"removed", func(string) string { return "" }, false},
		{"replaced", func(string) string {
			h, _ := HashForGate("other")
			return h
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, gate, _ := setupVault(t, "P")
			v.SyncGate(tt.hash(gate.hash))
			assert.Equal(t, tt.wantUnlocked, v.Unlocked())
			if !tt.wantUnlocked {
				_, err := v.Seal("pw")
				assert.True(t, errors.Is(err, common.ErrVaultLocked))
			}
		})
	}
}

func TestVault_SyncGateAfterOwnRotate(t *testing.T) {
	v, gate, _ := setupVault(t, "P")
	oldHash := gate.hash
	require.NoError(t, v.Rotate("P", "Q"))

	v.SyncGate(gate.hash)
	assert.True(t, v.Unlocked())

	// A stale notification carrying the previous hash still locks.
	v.SyncGate(oldHash)
	assert.False(t, v.Unlocked())

	// Locked vaults stay locked and can be unlocked again.
	v.SyncGate(gate.hash)
	assert.False(t, v.Unlocked())
	require.NoError(t, v.Unlock("Q"))
	assert.True(t, v.Unlocked())
}
