// Package keyring remembers the master passphrase in the system keyring
// so the startup gate can unlock without prompting.
//
// There is no local-file fallback: the passphrase either lives in the
// desktop secret service or is typed at startup.
package keyring

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/yllada/swiftrdp/common"
)

const (
	// serviceName is the identifier used in the system keyring.
	serviceName = "swiftrdp"
	// masterUser is the account name the passphrase is filed under.
	masterUser = "master-passphrase"
)

// Common errors returned by keyring operations.
var (
	ErrNotFound    = common.ErrCredentialsNotFound
	ErrUnavailable = errors.New("keyring service unavailable")
)

// Remember stores the master passphrase.
func Remember(passphrase string) error {
	if passphrase == "" {
		return errors.New("passphrase cannot be empty")
	}
	if err := keyring.Set(serviceName, masterUser, passphrase); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	common.LogDebug("Master passphrase stored in system keyring")
	return nil
}

// Recall returns the remembered master passphrase.
func Recall() (string, error) {
	passphrase, err := keyring.Get(serviceName, masterUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return passphrase, nil
}

// Forget removes the remembered passphrase. Forgetting an absent entry is
// not an error.
func Forget() error {
	if err := keyring.Delete(serviceName, masterUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Remembered reports whether a passphrase is stored.
func Remembered() bool {
	_, err := Recall()
	return err == nil
}
