package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TokenExpiryBuffer is how close to expiry a token counts as expiring
	TokenExpiryBuffer = 5 * time.Minute
)

// Common errors
var (
	ErrNoCredentials        = errors.New("no credentials stored")
	ErrInvalidToken         = errors.New("invalid token format")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// Credentials is the access/refresh pair the realtime channel and REST API
// authenticate with.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Present reports whether both tokens are set.
func (c Credentials) Present() bool {
	return c.AccessToken != "" && c.RefreshToken != ""
}

// BearerValue packs both tokens into one Authorization value. The server
// splits on the first colon after the scheme.
func (c Credentials) BearerValue() string {
	return "Bearer " + c.AccessToken + ":" + c.RefreshToken
}

// Header returns a request header carrying the credentials.
func (c Credentials) Header() http.Header {
	h := http.Header{}
	h.Set("Authorization", c.BearerValue())
	return h
}

// IsTokenExpired checks the stored expiry. Zero means unknown, treated as expired.
func IsTokenExpired(tokenExpiry int64) bool {
	if tokenExpiry == 0 {
		return true
	}
	return time.Now().Unix() >= tokenExpiry
}

// IsTokenExpiringSoon checks if the token expires within buffer
func IsTokenExpiringSoon(tokenExpiry int64, buffer time.Duration) bool {
	if tokenExpiry == 0 {
		return true
	}
	return time.Until(time.Unix(tokenExpiry, 0)) <= buffer
}

// ParseJWTExpiry reads the exp claim without verifying the signature.
// The server verifies the token; the client only needs to know when to warn.
func ParseJWTExpiry(token string) (int64, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if exp == nil {
		return 0, fmt.Errorf("%w: no exp claim", ErrInvalidToken)
	}
	return exp.Unix(), nil
}
