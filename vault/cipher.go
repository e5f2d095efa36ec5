// Package vault holds the master passphrase machinery: key derivation,
// the per-connection credential cipher, the startup gate hash and the
// passphrase rotation protocol.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeySize is the length of a derived key in bytes (AES-256).
const KeySize = 32

// cipherPrefix tags the authenticated record format.
const cipherPrefix = "v2:"

// keyContext separates key material from any other digest of the passphrase.
const keyContext = "swiftrdp/credential-key/v2\x00"

// Key is a derived symmetric key.
type Key [KeySize]byte

// Zero overwrites the key material.
func (k *Key) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// DeriveKey derives the credential key from a passphrase.
// The same passphrase always yields the same key.
func DeriveKey(passphrase string) Key {
	return Key(sha256.Sum256([]byte(keyContext + passphrase)))
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce and
// returns a printable string safe for the pipe-delimited record format.
func Encrypt(plaintext string, key Key) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return cipherPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Malformed input, a wrong key or tampered data
// all yield "": callers treat that as "no usable credential".
func Decrypt(ciphertext string, key Key) string {
	if !strings.HasPrefix(ciphertext, cipherPrefix) {
		return ""
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, cipherPrefix))
	if err != nil {
		return ""
	}

	gcm, err := newGCM(key)
	if err != nil {
		return ""
	}
	if len(data) < gcm.NonceSize()+gcm.Overhead() {
		return ""
	}

	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ""
	}
	return string(plain)
}

func newGCM(key Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// HashForGate returns the one-way digest stored to verify the passphrase at
// startup. It is unrelated to DeriveKey's output.
func HashForGate(passphrase string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash passphrase: %w", err)
	}
	return string(hash), nil
}

// CheckGate compares a supplied passphrase with the stored gate hash.
func CheckGate(passphrase, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passphrase)) == nil
}
