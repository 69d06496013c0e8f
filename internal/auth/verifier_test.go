package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "unit-test-secret"

func signHS256(t *testing.T, secret string, payload jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func clinicianClaims(exp time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"userId":    "u1",
		"name":      "Dr. Emily",
		"jobTitle":  "Surgeon",
		"workplace": "Sunnybrook Health Centre",
		"exp":       exp.Unix(),
	}
}

func newSharedVerifier(t *testing.T) *Verifier {
	t.Helper()
	anchor, err := NewSharedSecretAnchor(testSecret)
	if err != nil {
		t.Fatalf("NewSharedSecretAnchor error = %v", err)
	}
	return NewVerifier(anchor)
}

func TestVerifyTokenDecodesIdentity(t *testing.T) {
	v := newSharedVerifier(t)
	token := signHS256(t, testSecret, clinicianClaims(time.Now().Add(time.Hour)))

	id, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken error = %v", err)
	}
	if id.UserID != "u1" {
		t.Fatalf("UserID = %q, want u1", id.UserID)
	}
	if id.Name != "Dr. Emily" || id.JobTitle != "Surgeon" || id.Workplace != "Sunnybrook Health Centre" {
		t.Fatalf("profile attributes not decoded: %+v", id)
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	v := newSharedVerifier(t)
	token := signHS256(t, testSecret, clinicianClaims(time.Now().Add(-time.Minute)))

	if _, err := v.VerifyToken(token); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expired token error = %v, want ErrInvalidCredential", err)
	}
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	v := newSharedVerifier(t)
	token := signHS256(t, "some-other-secret", clinicianClaims(time.Now().Add(time.Hour)))

	if _, err := v.VerifyToken(token); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("forged token error = %v, want ErrInvalidCredential", err)
	}
}

func TestVerifyTokenRejectsMissingUserID(t *testing.T) {
	v := newSharedVerifier(t)
	token := signHS256(t, testSecret, jwt.MapClaims{
		"name": "Dr. Emily",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	if _, err := v.VerifyToken(token); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("userId-less token error = %v, want ErrInvalidCredential", err)
	}
}

func TestVerifyRequestHeaderHandling(t *testing.T) {
	v := newSharedVerifier(t)
	valid := signHS256(t, testSecret, clinicianClaims(time.Now().Add(time.Hour)))

	cases := []struct {
		name   string
		header string
		want   error
	}{
		{"no header", "", ErrMissingCredential},
		{"wrong scheme", "Basic " + valid, ErrMissingCredential},
		{"bearer no token", "Bearer ", ErrMissingCredential},
		{"garbage token", "Bearer not.a.jwt", ErrInvalidCredential},
		{"valid", "Bearer " + valid, nil},
	}
	for _, tc := range cases {
		r, _ := http.NewRequest(http.MethodPost, "/api/chat", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		_, err := v.VerifyRequest(r)
		if tc.want == nil {
			if err != nil {
				t.Fatalf("%s: error = %v, want nil", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: error = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestKeySetAnchorResolvesByKid(t *testing.T) {
	keyA, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyB, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	anchor, err := NewKeySetAnchor(map[string]crypto.PublicKey{
		"2024-a": &keyA.PublicKey,
		"2025-b": &keyB.PublicKey,
	})
	if err != nil {
		t.Fatalf("NewKeySetAnchor error = %v", err)
	}
	v := NewVerifier(anchor)

	sign := func(key *rsa.PrivateKey, kid string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, clinicianClaims(time.Now().Add(time.Hour)))
		token.Header["kid"] = kid
		signed, err := token.SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return signed
	}

	if _, err := v.VerifyToken(sign(keyB, "2025-b")); err != nil {
		t.Fatalf("rotated-key token error = %v", err)
	}
	if _, err := v.VerifyToken(sign(keyB, "unknown-kid")); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("unknown kid error = %v, want ErrInvalidCredential", err)
	}
	// Signed with A but claims kid B: signature check must fail.
	if _, err := v.VerifyToken(sign(keyA, "2025-b")); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("kid mismatch error = %v, want ErrInvalidCredential", err)
	}
	// HMAC token against an asymmetric anchor must be rejected by method.
	hmacToken := signHS256(t, testSecret, clinicianClaims(time.Now().Add(time.Hour)))
	if _, err := v.VerifyToken(hmacToken); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("alg confusion error = %v, want ErrInvalidCredential", err)
	}
}
