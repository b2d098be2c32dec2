// Package token issues and validates the bearer tokens that gate all
// mutating document operations.
//
// Tokens are self-contained signed JWTs binding a document key to a
// permission bitmask, so validation is pure local computation: no session
// store, no database lookup. Possession of a token is authorization; there
// is no user identity layer. The first token for a document (the root
// token) carries all permissions; further tokens are derived from it via
// Derive and can only narrow the permission set, never widen it.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token cannot be parsed or its
	// signature does not verify.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrWrongDocument is returned when a token was issued for a different
	// document key than the one being accessed.
	ErrWrongDocument = errors.New("token issued for a different document")

	// ErrMissingPermission is returned when a valid token lacks a required
	// permission bit.
	ErrMissingPermission = errors.New("token missing required permission")

	// ErrNoPermissions is returned when a token is requested with an empty
	// permission set.
	ErrNoPermissions = errors.New("no permissions provided")
)

// Claims is the JWT payload for document tokens. The document key rides in
// the registered subject claim; permissions are a bitmask so the check is a
// single AND, not a string comparison.
type Claims struct {
	jwt.RegisteredClaims

	// Permissions is the bitmask of allowed actions.
	Permissions Permission `json:"prm"`
}

// Service signs and verifies document tokens with a shared HMAC secret.
type Service struct {
	secret     []byte
	defaultTTL time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// NewService creates a token service. defaultTTL of zero means issued
// tokens do not expire unless an explicit TTL is passed to Issue.
func NewService(secret string, defaultTTL time.Duration) (*Service, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	return &Service{
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// Issue creates a signed token for the document key with the given
// permission mask. A ttl of zero falls back to the service default; if that
// is also zero the token never expires.
func (s *Service) Issue(documentKey string, permissions Permission, ttl time.Duration) (string, error) {
	if documentKey == "" {
		return "", errors.New("document key must not be empty")
	}
	if permissions == 0 {
		return "", ErrNoPermissions
	}

	if ttl == 0 {
		ttl = s.defaultTTL
	}

	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  documentKey,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Permissions: permissions,
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString, verifies its signature and expiry, checks it
// was issued for documentKey, and checks the required permission bits are
// set. It returns the parsed claims on success.
//
// The error distinguishes the failure modes callers need to tell apart:
// ErrInvalidToken and ErrTokenExpired mean the bearer is unauthorized;
// ErrWrongDocument and ErrMissingPermission mean the token is genuine but
// does not grant the requested operation.
func (s *Service) Validate(tokenString, documentKey string, required Permission) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}

	if claims.Subject != documentKey {
		return nil, ErrWrongDocument
	}
	if !claims.Permissions.Has(required) {
		return nil, fmt.Errorf("%w: %s", ErrMissingPermission, required.String())
	}
	return claims, nil
}

// Derive issues a new token for the same document as parentToken carrying
// the requested permission mask. The requested mask must be a subset of the
// parent's mask; privilege escalation through sharing is rejected with
// ErrMissingPermission. The derived token inherits the service default TTL.
func (s *Service) Derive(parentToken string, requested Permission) (string, error) {
	if requested == 0 {
		return "", ErrNoPermissions
	}

	parent, err := s.parse(parentToken)
	if err != nil {
		return "", err
	}

	if !parent.Permissions.Has(requested) {
		return "", fmt.Errorf("%w: requested %s, parent grants %s",
			ErrMissingPermission, requested.String(), parent.Permissions.String())
	}

	return s.Issue(parent.Subject, requested, 0)
}

func (s *Service) parse(tokenString string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &claims, nil
}
