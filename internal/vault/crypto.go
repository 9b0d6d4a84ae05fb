// Package vault seals documents with AES-256-GCM for storage at rest.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// KeySize is the length of an AES-256 key in bytes.
const KeySize = 32

var ErrTampered = errors.New("vault: decryption failed (wrong key or tampered data)")

// ParseKey decodes a hex-encoded 32-byte key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("vault: key is not hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// Cipher seals and opens documents with one key.
type Cipher struct {
	gcm cipher.AEAD
}

func NewCipher(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{gcm: gcm}, nil
}

// Seal encrypts plaintext under a fresh nonce and returns nonce||ciphertext as hex.
func (c *Cipher) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	return hex.EncodeToString(c.gcm.Seal(nonce, nonce, plaintext, nil)), nil
}

// Open reverses Seal.
func (c *Cipher) Open(sealed string) ([]byte, error) {
	raw, err := hex.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("vault: sealed value is not hex: %w", err)
	}
	n := c.gcm.NonceSize()
	if len(raw) < n {
		return nil, errors.New("vault: ciphertext too short")
	}
	plaintext, err := c.gcm.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return nil, ErrTampered
	}
	return plaintext, nil
}
