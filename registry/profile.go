// Package registry stores connection profiles and groups.
// This file contains the Profile type and its validation rules.
package registry

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/yllada/swiftrdp/common"
)

// Profile represents a stored remote desktop connection.
type Profile struct {
	// ID is a stable identifier (UUID) generated at creation.
	ID string
	// Name is the unique display label.
	Name string
	// Address is the host or IP address to connect to.
	Address string
	// Logins holds one or more candidate usernames.
	Logins []string
	// LastConnected is a TimestampLayout value or common.NeverConnected.
	LastConnected string
	// Note is free text and may span several lines.
	Note string
	// Group is empty for ungrouped connections.
	Group string
	// CredentialCipher is empty or the output of vault.Encrypt.
	CredentialCipher string

	// Temporary marks an ad-hoc profile (deep link to an unknown address).
	// Temporary profiles are never written by the store.
	Temporary bool
}

// NewTemporary builds an unsaved profile for an address with no registry entry.
func NewTemporary(address string) *Profile {
	return &Profile{
		Name:          address,
		Address:       address,
		LastConnected: common.NeverConnected,
		Temporary:     true,
	}
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	c := *p
	c.Logins = slices.Clone(p.Logins)
	return &c
}

// Equal reports whether two profiles carry the same persisted fields.
func (p *Profile) Equal(o *Profile) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.ID == o.ID &&
		p.Name == o.Name &&
		p.Address == o.Address &&
		slices.Equal(p.Logins, o.Logins) &&
		p.LastConnected == o.LastConnected &&
		p.Note == o.Note &&
		p.Group == o.Group &&
		p.CredentialCipher == o.CredentialCipher
}

// HasCredential reports whether an encrypted password is stored.
func (p *Profile) HasCredential() bool {
	return p.CredentialCipher != ""
}

// Validate checks that the profile can be encoded as a record.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", common.ErrInvalidProfile)
	}
	if strings.TrimSpace(p.Address) == "" {
		return fmt.Errorf("%w: address is required", common.ErrInvalidProfile)
	}
	for field, v := range map[string]string{"name": p.Name, "address": p.Address, "group": p.Group} {
		if strings.ContainsAny(v, "|\r\n") {
			return fmt.Errorf("%w: %s must not contain '|' or line breaks", common.ErrInvalidProfile, field)
		}
	}
	for _, login := range p.Logins {
		if strings.ContainsAny(login, "|,\r\n") {
			return fmt.Errorf("%w: login %q must not contain '|', ',' or line breaks", common.ErrInvalidProfile, login)
		}
	}
	return nil
}

// ensureID assigns a UUID if the profile has none and reports whether it did.
func (p *Profile) ensureID() bool {
	if p.ID != "" {
		return false
	}
	p.ID = uuid.NewString()
	return true
}
