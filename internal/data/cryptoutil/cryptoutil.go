// Package cryptoutil seals session token handles before they are written to a
// shared store. Sealed values are bound to the key they are stored under.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sealer protects a value at rest. context is authenticated but not stored;
// Open must be given the same context that Seal was.
type Sealer interface {
	Seal(plaintext []byte, context string) (string, error)
	Open(sealed string, context string) ([]byte, error)
}

const (
	// Versioned prefix so the algorithm can rotate without a migration.
	sealedPrefixV1 = "v1:"
	plainPrefix    = "plain:"
)

// ErrUnsealed is returned by AESGCM.Open for values written without a key.
var ErrUnsealed = errors.New("value is not sealed")

// AESGCM implements Sealer with AES-256-GCM.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM constructs a sealer from a 32-byte key.
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCM{aead: aead}, nil
}

// NewAESGCMFromString accepts a 64-char hex key, or hashes any other string to 32 bytes.
func NewAESGCMFromString(key string) (*AESGCM, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("encryption key is required")
	}
	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == 32 {
		return NewAESGCM(decoded)
	}
	sum := sha256.Sum256([]byte(key))
	return NewAESGCM(sum[:])
}

// Seal encrypts plaintext with a random nonce and returns nonce||ciphertext, versioned and base64 encoded.
func (s *AESGCM) Seal(plaintext []byte, context string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	buf := s.aead.Seal(nonce, nonce, plaintext, []byte(context))
	return sealedPrefixV1 + base64.StdEncoding.EncodeToString(buf), nil
}

// Open reverses Seal. A value sealed under a different context fails to open.
func (s *AESGCM) Open(sealed string, context string) ([]byte, error) {
	if strings.HasPrefix(sealed, plainPrefix) {
		return nil, ErrUnsealed
	}
	if !strings.HasPrefix(sealed, sealedPrefixV1) {
		return nil, fmt.Errorf("unknown sealed value version (prefix: %s)", prefixOf(sealed))
	}
	data, err := base64.StdEncoding.DecodeString(sealed[len(sealedPrefixV1):])
	if err != nil {
		return nil, fmt.Errorf("decode sealed value: %w", err)
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return nil, errors.New("sealed value too short")
	}
	pt, err := s.aead.Open(nil, data[:n], data[n:], []byte(context))
	if err != nil {
		return nil, fmt.Errorf("open sealed value: %w", err)
	}
	return pt, nil
}

// Plain stores values unencrypted behind a marker prefix. Used when no key is configured.
type Plain struct{}

func (Plain) Seal(plaintext []byte, _ string) (string, error) {
	return plainPrefix + base64.StdEncoding.EncodeToString(plaintext), nil
}

func (Plain) Open(sealed string, _ string) ([]byte, error) {
	if !strings.HasPrefix(sealed, plainPrefix) {
		return nil, fmt.Errorf("value is sealed (prefix: %s); an encryption key is required", prefixOf(sealed))
	}
	return base64.StdEncoding.DecodeString(sealed[len(plainPrefix):])
}

func prefixOf(v string) string {
	if len(v) > 10 {
		return v[:10]
	}
	return v
}
