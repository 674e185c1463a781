package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tidegate/tidegate/internal/domain"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Cipher encrypts credential bundles before they touch durable storage.
// ChaCha20-Poly1305 with a key derived from the configured secret; every
// blob gets a fresh random nonce, prepended to the ciphertext. There is no
// fallback key: construction fails when the key is missing or malformed.
type Cipher struct {
	aead cipher.AEAD
}

const keySize = chacha20poly1305.KeySize

// NewCipher builds a Cipher from a base64-encoded 32-byte key.
func NewCipher(base64Key string) (*Cipher, error) {
	if base64Key == "" {
		return nil, errors.New("credential encryption key is required")
	}

	raw, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding for credential key: %w", err)
	}

	if len(raw) != keySize {
		return nil, fmt.Errorf("invalid credential key length: expected %d bytes, got %d", keySize, len(raw))
	}

	key, err := deriveKey(raw)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// GenerateKey returns a fresh base64-encoded key suitable for NewCipher.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate credential key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Encrypt serializes and seals a credential bundle into an opaque blob.
func (c *Cipher) Encrypt(bundle domain.CredentialBundle) ([]byte, error) {
	plaintext, err := json.Marshal(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credential bundle: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens an opaque blob back into a credential bundle. Any tamper,
// truncation, or key mismatch yields ErrCredentialCorrupt so callers prompt
// re-authorization instead of trusting a silently wrong bundle.
func (c *Cipher) Decrypt(blob []byte) (domain.CredentialBundle, error) {
	if len(blob) < c.aead.NonceSize() {
		return domain.CredentialBundle{}, fmt.Errorf("blob shorter than nonce: %w", domain.ErrCredentialCorrupt)
	}

	nonce, ciphertext := blob[:c.aead.NonceSize()], blob[c.aead.NonceSize():]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return domain.CredentialBundle{}, fmt.Errorf("authenticated decryption failed: %w", domain.ErrCredentialCorrupt)
	}

	var bundle domain.CredentialBundle
	if err := json.Unmarshal(plaintext, &bundle); err != nil {
		return domain.CredentialBundle{}, fmt.Errorf("failed to unmarshal credential bundle: %w", domain.ErrCredentialCorrupt)
	}

	return bundle, nil
}

func deriveKey(secret []byte) ([]byte, error) {
	salt := []byte("tidegate-credentials")
	info := []byte("credential-bundle")

	hkdf := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, keySize)

	if _, err := io.ReadFull(hkdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	return key, nil
}
