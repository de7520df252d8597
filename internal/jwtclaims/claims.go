// Package jwtclaims reads claims from compact tokens without verifying them.
// The backend is the only verifier; the client needs `exp` for scheduling.
package jwtclaims

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry is returned when a token carries no exp claim
var ErrNoExpiry = errors.New("token has no exp claim")

var parser = jwt.NewParser()

// ExpiresAt decodes the payload of token and returns its exp claim
func ExpiresAt(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiry
	}
	return exp.Time, nil
}

// IsExpiring reports whether token expires within buffer of now. Tokens that
// cannot be decoded or have no exp are treated as expiring.
func IsExpiring(token string, buffer time.Duration, now time.Time) bool {
	exp, err := ExpiresAt(token)
	if err != nil {
		return true
	}
	return !now.Add(buffer).Before(exp)
}
