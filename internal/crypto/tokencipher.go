// Package crypto seals identity provider tokens before they are stored with a
// session row. Sealing uses AES-256-GCM so a tampered column fails to open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrKeyLengthInvalid is returned when a raw key is not exactly 32 bytes.
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes for AES-256")
	// ErrCiphertextCorrupted is returned when a sealed value is not valid base64 or is shorter than a nonce.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted or tampered")
	// ErrDecryptionFailed is returned when GCM authentication fails.
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
	// ErrSaltTooShort is returned when a derivation salt is fewer than 16 bytes.
	ErrSaltTooShort = errors.New("crypto: salt must be at least 16 bytes")
	// ErrEmptySecret is returned by FromSecret for an empty secret.
	ErrEmptySecret = errors.New("crypto: encryption key is empty")
)

// secretSalt is the fixed salt used when the configured encryption key is a
// passphrase rather than a raw 32-byte key.
var secretSalt = []byte("ara-platform/session-token-seal/v1")

const defaultIterations = 100000

// TokenCipher seals and opens provider tokens.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher creates a cipher from a raw 32-byte key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != 32 {
		return nil, ErrKeyLengthInvalid
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &TokenCipher{aead: aead}, nil
}

// DeriveTokenCipher creates a cipher from a PBKDF2-SHA256 derived key.
func DeriveTokenCipher(passphrase string, salt []byte, iterations int) (*TokenCipher, error) {
	if len(salt) < 16 {
		return nil, ErrSaltTooShort
	}
	if iterations < 10000 {
		iterations = defaultIterations
	}
	return NewTokenCipher(pbkdf2.Key([]byte(passphrase), salt, iterations, 32, sha256.New))
}

// FromSecret builds the cipher for the configured encryption key. A secret of
// exactly 32 bytes, or base64 of 32 bytes, is used as the key; anything else
// is treated as a passphrase.
func FromSecret(secret string) (*TokenCipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if len(secret) == 32 {
		return NewTokenCipher([]byte(secret))
	}
	if raw, err := base64.StdEncoding.DecodeString(secret); err == nil && len(raw) == 32 {
		return NewTokenCipher(raw)
	}
	return DeriveTokenCipher(secret, secretSalt, defaultIterations)
}

// Seal encrypts plaintext into URL-safe base64. The empty string seals to itself.
func (tc *TokenCipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, tc.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := tc.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal.
func (tc *TokenCipher) Open(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrCiphertextCorrupted
	}
	n := tc.aead.NonceSize()
	if len(data) < n {
		return "", ErrCiphertextCorrupted
	}
	plaintext, err := tc.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// SealOptional seals plaintext for a nullable column; "" maps to nil.
func (tc *TokenCipher) SealOptional(plaintext string) (*string, error) {
	if plaintext == "" {
		return nil, nil
	}
	sealed, err := tc.Seal(plaintext)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

// OpenOptional opens a nullable column; nil maps to "".
func (tc *TokenCipher) OpenOptional(encoded *string) (string, error) {
	if encoded == nil {
		return "", nil
	}
	return tc.Open(*encoded)
}

// GenerateKey returns a random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
