// Package webauth implements spec.md's two authentication surfaces: an
// HMAC-signed session token for the (out-of-core-scope) web UI's logged
// in-browser state, and the X-NuGet-ApiKey header middleware the push/
// delete endpoints require. Grounded on the teacher's auth/jwt.go, which
// signs JWTs with an SSH keypair for inter-depot proxying; this system
// has no notion of a peer depot to proxy to, so the signer is collapsed
// to a single shared HMAC secret — config.Auth.CookieKey — matching
// original_source's cookie_key, which the Rust implementation also uses
// as a single symmetric session-signing secret rather than a keypair.
package webauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nugetdepot/nugetdepot/entity"
)

// SessionClaims identifies the logged-in user a session token was issued
// for.
type SessionClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// SessionSigner issues and verifies session tokens signed with a single
// shared HMAC key, the cookie_key from config.Auth.
type SessionSigner struct {
	key []byte
	ttl time.Duration
}

// NewSessionSigner constructs a SessionSigner. An empty key is rejected:
// an empty HMAC key would let any caller forge tokens.
func NewSessionSigner(cookieKey string, ttl time.Duration) (*SessionSigner, error) {
	if cookieKey == "" {
		return nil, fmt.Errorf("webauth: cookie key must not be empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionSigner{key: []byte(cookieKey), ttl: ttl}, nil
}

// Issue creates a session token for u, valid for the signer's configured
// TTL.
func (s *SessionSigner) Issue(u entity.User) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID: u.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Verify parses and validates a session token, returning the user ID it
// was issued for.
func (s *SessionSigner) Verify(tokenString string) (userID string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return "", fmt.Errorf("webauth: verify session token: %w", err)
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("webauth: invalid session token")
	}
	return claims.UserID, nil
}
