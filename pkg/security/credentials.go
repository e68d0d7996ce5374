package security

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	credentialVersion = "v1"
	hkdfInfo          = "revenue-engine/provider-credentials"
)

var (
	// ErrDecryption signals a ciphertext that cannot be opened with the configured key.
	ErrDecryption = errors.New("credential decryption failed")

	errEmptyKey       = errors.New("credential encryption key is required")
	errEmptyPlaintext = errors.New("credential plaintext is required")
)

// CredentialCipher is the opaque encrypt/decrypt capability used for provider secrets at rest.
type CredentialCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// AEADCipher seals credentials with XChaCha20-Poly1305 and a random nonce per record.
type AEADCipher struct {
	aead   cipher.AEAD
	random io.Reader
}

// NewAEADCipher derives a 256-bit key from keyMaterial with HKDF-SHA256.
func NewAEADCipher(keyMaterial string) (*AEADCipher, error) {
	secret := strings.TrimSpace(keyMaterial)
	if secret == "" {
		return nil, errEmptyKey
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive credential key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init credential cipher: %w", err)
	}
	return &AEADCipher{aead: aead, random: rand.Reader}, nil
}

// Encrypt returns "v1.<base64url(nonce|ciphertext)>".
func (c *AEADCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errEmptyPlaintext
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(credentialVersion))
	return credentialVersion + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Any malformed or tampered input yields ErrDecryption.
func (c *AEADCipher) Decrypt(ciphertext string) (string, error) {
	version, encoded, ok := strings.Cut(strings.TrimSpace(ciphertext), ".")
	if !ok || version != credentialVersion {
		return "", ErrDecryption
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrDecryption
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize+c.aead.Overhead() {
		return "", ErrDecryption
	}

	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], []byte(credentialVersion))
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}
