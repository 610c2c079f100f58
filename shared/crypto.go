package shared

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Codec performs symmetric authenticated encryption of message bodies
// under a process-wide secret. The secret is stretched with HKDF-SHA256
// into a ChaCha20-Poly1305 key; each Encrypt call uses a fresh random
// nonce, so equal plaintexts produce distinct ciphertexts.
//
// Callers must treat any error as "leave the message unencrypted" — a
// codec failure is never fatal to the request that triggered it.
type Codec struct {
	aead cipher.AEAD
}

var (
	ErrEmptySecret    = errors.New("message secret must not be empty")
	ErrBadCiphertext  = errors.New("malformed ciphertext")
	ErrDecryptFailure = errors.New("decryption failed")
)

// NewCodec derives a key from secret and returns a ready codec. An empty
// secret is a configuration error; there is deliberately no built-in
// default.
func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	kdf := hkdf.New(sha256.New, []byte(secret), []byte("flowchat-message-key"), nil)
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive message key: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	return &Codec{aead: aead}, nil
}

// Encrypt returns base64(nonce || ciphertext) for plaintext.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt inverts Encrypt. Malformed or tampered input returns an error;
// it never panics, and callers fall back to the stored plaintext.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrBadCiphertext
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrBadCiphertext
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecryptFailure
	}
	return string(plaintext), nil
}
