// Package auth issues and verifies the tokens that identify callers: HS256 bearer tokens for
// API clients and NextAuth session cookies for browser clients.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/meeting-service/internal/application"
)

// Issuer is the iss claim of every bearer token.
const Issuer = "meeting-service"

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// DefaultTokenTTL is the bearer token lifetime when none is configured.
const DefaultTokenTTL = 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWeakSecret   = fmt.Errorf("token secret must be at least %d characters", MinSecretLength)
)

// Claims is the payload of a bearer token.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTIssuer signs and verifies HS256 bearer tokens.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
}

var _ application.TokenIssuer = (*JWTIssuer)(nil)

// NewJWTIssuer creates an issuer. A non-positive ttl selects DefaultTokenTTL.
func NewJWTIssuer(secret string, ttl time.Duration) (*JWTIssuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTIssuer{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token for user valid from issuedAt for the configured lifetime.
func (i *JWTIssuer) Issue(user application.User, issuedAt time.Time) (string, time.Time, error) {
	expiresAt := issuedAt.Add(i.ttl)
	claims := Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks the signature, algorithm, issuer and expiry of token as of now and returns the
// subject.
func (i *JWTIssuer) Verify(token string, now time.Time) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
