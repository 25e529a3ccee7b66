package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTTL = 24 * time.Hour

// Auth mints and verifies the session tokens handed out by /join. Tokens are
// signed with a per-process key, so a restart invalidates every session.
type Auth struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// New constructs an authenticator with a freshly generated signing key.
func New(issuer string, ttl time.Duration) (*Auth, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Auth{key: key, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// MintToken issues a signed session token bound to the given peer id.
func (a *Auth) MintToken(peerID string) (string, error) {
	if a == nil {
		return "", errors.New("auth: not configured")
	}
	now := a.now()
	claims := jwt.MapClaims{
		"sub": peerID,
		"iss": a.issuer,
		"iat": now.Unix(),
		"exp": now.Add(a.ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(a.key)
}

// ParseToken verifies a session token and returns the peer id it was minted
// for.
func (a *Auth) ParseToken(tok string) (string, error) {
	if a == nil {
		return "", errors.New("auth: not configured")
	}
	if tok == "" {
		return "", errors.New("missing token")
	}
	t, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) {
		return a.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !t.Valid {
		return "", errors.New("invalid token")
	}
	if claims, ok := t.Claims.(jwt.MapClaims); ok {
		if sub, ok := claims["sub"].(string); ok {
			return sub, nil
		}
	}
	return "", errors.New("bad claims")
}
