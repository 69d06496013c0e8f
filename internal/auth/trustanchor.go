package auth

import (
	"crypto"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TrustAnchor resolves the verification key for a presented token. Two
// deployments exist: a single shared secret (local / simple gateways) and a
// rotating published key set looked up by the token's kid header (hosted
// identity providers).
type TrustAnchor interface {
	// Resolve returns the key to verify the token with.
	Resolve(token *jwt.Token) (any, error)
	// Methods lists the signing algorithms this anchor accepts. Tokens
	// signed with anything else are rejected before key resolution.
	Methods() []string
}

// SharedSecretAnchor verifies HMAC-signed tokens with one symmetric secret.
type SharedSecretAnchor struct {
	secret []byte
}

func NewSharedSecretAnchor(secret string) (*SharedSecretAnchor, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("shared secret is empty")
	}
	return &SharedSecretAnchor{secret: []byte(secret)}, nil
}

func (a *SharedSecretAnchor) Resolve(_ *jwt.Token) (any, error) {
	return a.secret, nil
}

func (a *SharedSecretAnchor) Methods() []string { return []string{"HS256"} }

// KeySetAnchor verifies asymmetric signatures against a static set of public
// keys indexed by key ID. Rotation is a config reload away: ship a new set
// containing both old and new kids.
type KeySetAnchor struct {
	keys map[string]crypto.PublicKey
}

func NewKeySetAnchor(keys map[string]crypto.PublicKey) (*KeySetAnchor, error) {
	if len(keys) == 0 {
		return nil, errors.New("key set is empty")
	}
	return &KeySetAnchor{keys: keys}, nil
}

// NewKeySetAnchorFromFile loads a JSON document of {"keys": {kid: pemPublicKey}}.
func NewKeySetAnchorFromFile(path string) (*KeySetAnchor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key set: %w", err)
	}
	var doc struct {
		Keys map[string]string `json:"keys"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse key set: %w", err)
	}
	keys := make(map[string]crypto.PublicKey, len(doc.Keys))
	for kid, pemText := range doc.Keys {
		key, err := parsePublicKey(pemText)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", kid, err)
		}
		keys[kid] = key
	}
	return NewKeySetAnchor(keys)
}

func (a *KeySetAnchor) Resolve(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if strings.TrimSpace(kid) == "" {
		return nil, errors.New("token has no kid header")
	}
	key, ok := a.keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return key, nil
}

func (a *KeySetAnchor) Methods() []string { return []string{"RS256", "ES256", "EdDSA"} }

func parsePublicKey(pemText string) (crypto.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("not PEM encoded")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return key, nil
}
