// Package crypto encrypts GitHub access tokens at rest. Tokens are sealed
// with AES-256-GCM under a key derived from the application secret, so a
// rotated secret renders previously stored tokens unreadable.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/crypto/hkdf"
)

const (
	// keyLen is the AES-256 key length in bytes.
	keyLen = 32
	// nonceLen is the GCM nonce length in bytes.
	nonceLen = 12
	// hkdfInfo is the info string for HKDF key derivation.
	hkdfInfo = "scopes-github-token-vault"
)

// ErrEmptyToken is returned when asked to encrypt an empty token.
var ErrEmptyToken = errors.New("token must not be empty")

// Vault seals and opens user access tokens.
type Vault struct {
	key []byte
}

// NewVault derives the vault key from the application-wide secret.
func NewVault(secret string) (*Vault, error) {
	if secret == "" {
		return nil, errors.New("application secret is required to encrypt tokens")
	}
	key, err := deriveKey([]byte(secret))
	if err != nil {
		return nil, err
	}
	return &Vault{key: key}, nil
}

// deriveKey hashes the secret with SHA-256 and expands it via HKDF-SHA256.
func deriveKey(secret []byte) ([]byte, error) {
	digest := sha256.Sum256(secret)
	r := hkdf.New(sha256.New, digest[:], nil, []byte(hkdfInfo))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}

// EncryptToken seals a token for storage.
func (v *Vault) EncryptToken(token string) ([]byte, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	return Encrypt(v.key, []byte(token))
}

// DecryptToken opens a stored token. Returns "" when nothing is stored or
// the ciphertext no longer authenticates (secret rotated, corrupted row).
func (v *Vault) DecryptToken(sealed []byte) string {
	if len(sealed) == 0 {
		return ""
	}
	plaintext, err := Decrypt(v.key, sealed)
	if err != nil {
		slog.Error("unable to decrypt github token", "err", err)
		return ""
	}
	return string(plaintext)
}

// Encrypt encrypts plaintext using AES-256-GCM with a 256-bit key.
// Returns nonce || ciphertext (nonce is prepended).
func Encrypt(key, plaintext []byte) ([]byte, error) {
	if len(key) != keyLen {
		return nil, errors.New("key must be 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("random nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext produced by Encrypt.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	if len(key) != keyLen {
		return nil, errors.New("key must be 32 bytes")
	}

	if len(ciphertext) < nonceLen {
		return nil, errors.New("ciphertext too short")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, ciphertext[:nonceLen], ciphertext[nonceLen:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return plaintext, nil
}
