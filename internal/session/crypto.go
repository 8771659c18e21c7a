// Tenantgate - Tenant-Scoped Access Control for Hosted Platforms
// Copyright 2026 Tenantgate Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tenantgate/tenantgate

package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Bundle encryption errors
var (
	// ErrDecryptionFailed indicates the decryption operation failed.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidCiphertext indicates the ciphertext is malformed.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// bundleCipherContext binds derived keys to this use so the same master
// key can safely serve other derivations later.
const bundleCipherContext = "tenantgate-bundle-encryption"

// BundleCipher provides AES-GCM encryption for credential bundles at
// rest. Keys are derived from the master key with HKDF-SHA256.
//
// A nil BundleCipher is valid and means encryption is disabled: values
// pass through unchanged.
type BundleCipher struct {
	aead cipher.AEAD
}

// NewBundleCipher creates a cipher from a base64-encoded master key.
// Returns nil when masterKey is empty (encryption disabled).
func NewBundleCipher(masterKey string) (*BundleCipher, error) {
	if masterKey == "" {
		return nil, nil
	}

	key, err := base64.StdEncoding.DecodeString(masterKey)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(key) < 16 {
		return nil, errors.New("master key must be at least 16 bytes")
	}

	derived, err := deriveKey(key, []byte(bundleCipherContext), 32)
	if err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}

	return &BundleCipher{aead: aead}, nil
}

// deriveKey derives a key using HKDF-SHA256.
func deriveKey(secret, context []byte, keyLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, context)
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Enabled returns true if encryption is active.
func (c *BundleCipher) Enabled() bool {
	return c != nil && c.aead != nil
}

// Encrypt encrypts plaintext and returns base64-encoded ciphertext with
// the nonce prepended. Empty strings pass through.
func (c *BundleCipher) Encrypt(plaintext string) (string, error) {
	if !c.Enabled() || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts base64-encoded ciphertext. Empty strings pass through.
func (c *BundleCipher) Decrypt(ciphertext string) (string, error) {
	if !c.Enabled() || ciphertext == "" {
		return ciphertext, nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrInvalidCiphertext)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+1+c.aead.Overhead() {
		return "", fmt.Errorf("%w: data too short", ErrInvalidCiphertext)
	}

	nonce := data[:nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecryptionFailed, err.Error())
	}

	return string(plaintext), nil
}

// EncryptBundle returns a copy of the bundle with its tokens encrypted.
func (c *BundleCipher) EncryptBundle(b CredentialBundle) (CredentialBundle, error) {
	if !c.Enabled() {
		return b, nil
	}

	access, err := c.Encrypt(b.AccessToken)
	if err != nil {
		return CredentialBundle{}, fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := c.Encrypt(b.RefreshToken)
	if err != nil {
		return CredentialBundle{}, fmt.Errorf("encrypt refresh token: %w", err)
	}

	b.AccessToken = access
	b.RefreshToken = refresh
	return b, nil
}

// DecryptBundle returns a copy of the bundle with its tokens decrypted.
func (c *BundleCipher) DecryptBundle(b CredentialBundle) (CredentialBundle, error) {
	if !c.Enabled() {
		return b, nil
	}

	access, err := c.Decrypt(b.AccessToken)
	if err != nil {
		return CredentialBundle{}, fmt.Errorf("decrypt access token: %w", err)
	}
	refresh, err := c.Decrypt(b.RefreshToken)
	if err != nil {
		return CredentialBundle{}, fmt.Errorf("decrypt refresh token: %w", err)
	}

	b.AccessToken = access
	b.RefreshToken = refresh
	return b, nil
}

// GenerateEncryptionKey generates a base64-encoded 256-bit master key
// suitable for configuration.
func GenerateEncryptionKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
