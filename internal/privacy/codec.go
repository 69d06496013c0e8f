package privacy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Unreadable is the sentinel stored-field value used when a ciphertext can no
// longer be decoded. Callers must treat it as "attribute unavailable" rather
// than surface the raw value to the model or the user.
const Unreadable = "[unreadable]"

// encPrefix versions encoded values so plaintext legacy rows pass through
// Decode untouched.
const encPrefix = "enc:v1:"

var ErrDecodeFailed = errors.New("privacy: decode failed")

// Codec encrypts and decrypts profile attribute values at the storage
// boundary. It is invoked explicitly by the store on save and load; nothing
// else in the service sees ciphertext.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec derives an AES-256-GCM key from the given secret. An empty secret
// yields a pass-through codec (local/dev mode).
func NewCodec(secret string) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return &Codec{}, nil
	}
	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Enabled reports whether values are actually encrypted.
func (c *Codec) Enabled() bool { return c != nil && c.aead != nil }

// Encode encrypts a plaintext attribute value. Empty values and disabled
// codecs pass through unchanged.
func (c *Codec) Encode(plain string) (string, error) {
	if !c.Enabled() || plain == "" {
		return plain, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plain), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decode reverses Encode. Values without the versioned prefix are returned
// as-is so rows written before encryption was enabled stay readable. A value
// that carries the prefix but cannot be opened fails closed with
// ErrDecodeFailed; it is never returned as ciphertext.
func (c *Codec) Decode(stored string) (string, error) {
	if !strings.HasPrefix(stored, encPrefix) {
		return stored, nil
	}
	if !c.Enabled() {
		return "", fmt.Errorf("%w: encrypted value but no key configured", ErrDecodeFailed)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecodeFailed)
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return string(plain), nil
}
