// Package auth issues and verifies the HS256 bearer tokens accepted by the
// development admin server.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrNoSecret  = errors.New("jwt secret not configured")
	ErrNoSubject = errors.New("subject claim required")
	ErrInvalid   = errors.New("invalid token")
)

// Issuer is the iss claim of tokens minted here.
const Issuer = "cfgadmin"

// Principal is the authenticated caller.
type Principal struct {
	Login string
	Roles []string
	Admin bool
}

type claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
	Admin bool     `json:"admin,omitempty"`
}

// Issue signs a token for p valid for ttl. A zero ttl never expires.
func Issue(secret string, p Principal, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrNoSecret
	}
	if p.Login == "" {
		return "", ErrNoSubject
	}
	now := time.Now().UTC()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   Issuer,
			Subject:  p.Login,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Roles: p.Roles,
		Admin: p.Admin,
	}
	if ttl != 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}

// Verify parses token and returns its principal.
func Verify(secret, token string) (Principal, error) {
	if strings.TrimSpace(secret) == "" {
		return Principal{}, ErrNoSecret
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(Issuer))
	c := &claims{}
	parsed, err := parser.ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Principal{}, err
	}
	if !parsed.Valid {
		return Principal{}, ErrInvalid
	}
	if c.Subject == "" {
		return Principal{}, ErrNoSubject
	}
	return Principal{Login: c.Subject, Roles: c.Roles, Admin: c.Admin}, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" value.
func BearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
