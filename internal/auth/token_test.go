package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestParseJWTExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()
	tok := signedToken(t, jwt.MapClaims{"sub": "u1", "exp": exp})

	got, err := ParseJWTExpiry(tok)
	if err != nil {
		t.Fatalf("ParseJWTExpiry: %v", err)
	}
	if got != exp {
		t.Errorf("expected %d, got %d", exp, got)
	}
}

func TestParseJWTExpiry_Invalid(t *testing.T) {
	if _, err := ParseJWTExpiry("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	noExp := signedToken(t, jwt.MapClaims{"sub": "u1"})
	if _, err := ParseJWTExpiry(noExp); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for missing exp, got %v", err)
	}
}

func TestIsTokenExpiringSoon(t *testing.T) {
	if !IsTokenExpiringSoon(0, TokenExpiryBuffer) {
		t.Error("unknown expiry should count as expiring")
	}
	soon := time.Now().Add(time.Minute).Unix()
	if !IsTokenExpiringSoon(soon, TokenExpiryBuffer) {
		t.Error("token expiring in 1m should be flagged with a 5m buffer")
	}
	later := time.Now().Add(time.Hour).Unix()
	if IsTokenExpiringSoon(later, TokenExpiryBuffer) {
		t.Error("token expiring in 1h should not be flagged")
	}
	if IsTokenExpired(later) {
		t.Error("future token reported expired")
	}
}

func TestCredentials(t *testing.T) {
	c := Credentials{AccessToken: "acc", RefreshToken: "ref"}
	if !c.Present() {
		t.Fatal("expected present")
	}
	if got := c.Header().Get("Authorization"); got != "Bearer acc:ref" {
		t.Errorf("unexpected header %q", got)
	}
	if (Credentials{AccessToken: "acc"}).Present() {
		t.Error("missing refresh token should not be present")
	}
}
