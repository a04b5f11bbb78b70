// Package auth verifies bearer tokens minted by the hosted auth platform.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the authenticated caller extracted from a verified token.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// IsAdmin reports whether the identity may call admin endpoints.
func (i Identity) IsAdmin() bool {
	return i.Role == "admin"
}

// Verifier validates HS256 tokens against the shared platform secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

type claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verify parses and validates a raw token, returning the caller identity.
func (v *Verifier) Verify(rawToken string) (Identity, error) {
	if rawToken == "" {
		return Identity{}, ErrMissingToken
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(rawToken, &parsed, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(parsed.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: subject is not a user ID", ErrInvalidToken)
	}

	return Identity{
		UserID: userID,
		Email:  parsed.Email,
		Role:   parsed.Role,
	}, nil
}

// FromAuthorizationHeader extracts the token from an Authorization header
// value and verifies it.
func (v *Verifier) FromAuthorizationHeader(header string) (Identity, error) {
	const prefix = "Bearer "
	if header == "" {
		return Identity{}, ErrMissingToken
	}
	if !strings.HasPrefix(header, prefix) {
		return Identity{}, fmt.Errorf("%w: authorization header is not a bearer token", ErrInvalidToken)
	}
	return v.Verify(strings.TrimSpace(header[len(prefix):]))
}
