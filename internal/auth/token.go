// Package auth verifies the bearer tokens issued by the main application.
// The websocket handshake and the REST endpoints share one verifier, so a
// token is either valid everywhere or nowhere.
package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/briankwest/imglink/internal/errors"
)

// Claims carries the subject the main application signs into access tokens.
// The subject is the numeric user ID, kept as a string for JWT compatibility.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates HS256 access tokens against the shared signing key.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token, returning the user ID it was issued
// for. All failures map to an authentication error; callers at the handshake
// boundary must treat it as permanent.
func (v *Verifier) Verify(tokenString string) (int64, error) {
	if tokenString == "" {
		return 0, apperrors.AuthenticationError("no authentication token provided", nil)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return 0, apperrors.AuthenticationError("invalid token", err)
	}
	if !token.Valid {
		return 0, apperrors.AuthenticationError("invalid token", nil)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, apperrors.AuthenticationError("invalid token subject", err)
	}

	return userID, nil
}

// Sign issues a token for a user. The realtime service never mints tokens in
// production; this exists for tests and local tooling.
func (v *Verifier) Sign(userID int64, ttl time.Duration) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "imglink",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
