// Package auth gates the application behind a signed session cookie.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oszuidwest/zwfm-voice/internal/util"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "token"
	// SessionDuration is how long a session credential stays valid.
	SessionDuration = 24 * time.Hour
)

// ErrInvalidEmail is returned for an email that is not shaped like one.
var ErrInvalidEmail = errors.New("invalid email address")

// AuthError reports a failed login or an unusable session credential.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return e.Reason
}

// Identity is the authenticated user of a session.
type Identity struct {
	Email     string
	ExpiresAt time.Time
}

// claims is the payload of a session credential.
type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Gate issues and verifies HS256 session credentials. It holds no mutable
// state and is safe for concurrent use.
type Gate struct {
	secret    []byte
	passwords []string
	now       func() time.Time
}

// NewGate creates a gate signing with secret and accepting any of passwords.
func NewGate(secret string, passwords []string) (*Gate, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	return &Gate{
		secret:    []byte(secret),
		passwords: passwords,
		now:       time.Now,
	}, nil
}

// Login verifies the password against the allow-list and issues a credential.
func (g *Gate) Login(email, password string) (string, error) {
	if !util.IsEmailShaped(email) {
		return "", ErrInvalidEmail
	}
	if !g.passwordAllowed(password) {
		return "", &AuthError{Reason: "invalid password"}
	}
	return g.Issue(email)
}

// passwordAllowed compares password against every entry so the time taken
// does not depend on which entry matched.
func (g *Gate) passwordAllowed(password string) bool {
	match := 0
	for _, p := range g.passwords {
		if p == "" {
			continue
		}
		match |= subtle.ConstantTimeCompare([]byte(password), []byte(p))
	}
	return match == 1
}

// Issue signs a credential for email.
func (g *Gate) Issue(email string) (string, error) {
	now := g.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionDuration)),
		},
	})
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", util.WrapError("sign session token", err)
	}
	return signed, nil
}

// Resume verifies a credential and returns its identity. Tampered, expired
// or otherwise malformed credentials yield an *AuthError.
func (g *Gate) Resume(credential string) (Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(credential, &c, func(*jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, &AuthError{Reason: "session expired"}
		}
		return Identity{}, &AuthError{Reason: "invalid session"}
	}
	if c.Email == "" {
		return Identity{}, &AuthError{Reason: "invalid session"}
	}
	return Identity{Email: c.Email, ExpiresAt: c.ExpiresAt.Time}, nil
}
