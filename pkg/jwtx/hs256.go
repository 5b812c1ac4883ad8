package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// HS256 signs and verifies tokens with a shared HMAC secret. The development
// backend uses it; production tokens are opaque to the client anyway.
type HS256 struct {
	secret []byte
	issuer string
}

// NewHS256 returns an HS256 signer/verifier. Issuer is enforced on Verify
// when non-empty.
func NewHS256(secret []byte, issuer string) *HS256 {
	return &HS256{secret: secret, issuer: issuer}
}

func (h *HS256) Sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

func (h *HS256) Verify(raw string) (Claims, error) {
	return h.parse(raw)
}

// VerifyWithGrace checks the signature and issuer but accepts a token that
// expired less than grace ago. Refresh endpoints use it.
func (h *HS256) VerifyWithGrace(raw string, grace time.Duration) (Claims, error) {
	claims, err := h.parse(raw, jwt.WithoutClaimsValidation())
	if err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiryWithLeeway(grace); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (h *HS256) parse(raw string, opts ...jwt.ParserOption) (Claims, error) {
	var claims Claims
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrAlgMismatch
		}
		return h.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return Claims{}, ErrNotYetValid
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Claims{}, ErrMalformed
		case errors.Is(err, ErrAlgMismatch):
			return Claims{}, ErrAlgMismatch
		default:
			return Claims{}, ErrInvalidSig
		}
	}

	if err := claims.ValidateIssuer(h.issuer); err != nil {
		return Claims{}, err
	}
	return claims, nil
}
