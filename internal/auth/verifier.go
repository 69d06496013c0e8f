package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingCredential means no usable bearer credential was supplied.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidCredential means the credential failed signature, expiry or
	// shape validation. Terminal for the request.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Identity is the verified caller: a stable user key plus the optional
// profile attributes embedded in the credential. It is the single source of
// truth for who a request acts as; request bodies never override it.
type Identity struct {
	UserID    string
	Name      string
	JobTitle  string
	Workplace string
}

// claims mirrors the token payload of the existing clients (userId, not sub).
type claims struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	JobTitle  string `json:"jobTitle"`
	Workplace string `json:"workplace"`
	jwt.RegisteredClaims
}

// Verifier authenticates bearer tokens against a trust anchor. Verification
// is stateless; a Verifier is safe for concurrent use.
type Verifier struct {
	anchor TrustAnchor
}

func NewVerifier(anchor TrustAnchor) *Verifier {
	return &Verifier{anchor: anchor}
}

// VerifyRequest extracts the Authorization bearer token from the request and
// verifies it.
func (v *Verifier) VerifyRequest(r *http.Request) (Identity, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return Identity{}, ErrMissingCredential
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return Identity{}, ErrMissingCredential
	}
	return v.VerifyToken(strings.TrimSpace(token))
}

// VerifyToken validates signature and expiry and decodes the identity. All
// parse and validation failures collapse into ErrInvalidCredential so callers
// cannot distinguish why a token was rejected.
func (v *Verifier) VerifyToken(token string) (Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, v.anchor.Resolve,
		jwt.WithValidMethods(v.anchor.Methods()))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	userID := strings.TrimSpace(c.UserID)
	if userID == "" {
		return Identity{}, fmt.Errorf("%w: token has no userId claim", ErrInvalidCredential)
	}
	return Identity{
		UserID:    userID,
		Name:      strings.TrimSpace(c.Name),
		JobTitle:  strings.TrimSpace(c.JobTitle),
		Workplace: strings.TrimSpace(c.Workplace),
	}, nil
}
