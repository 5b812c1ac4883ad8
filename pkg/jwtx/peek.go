package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Peek decodes a token's claims WITHOUT verifying the signature. Clients use
// it to schedule refreshes; never use the result for an authorization decision.
func Peek(raw string) (Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return Claims{}, ErrMalformed
	}
	return claims, nil
}

// ExpiresAt returns the exp claim of an unverified token.
func ExpiresAt(raw string) (time.Time, error) {
	claims, err := Peek(raw)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}
