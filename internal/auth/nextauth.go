package auth

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/square/go-jose/v3"
	"golang.org/x/crypto/hkdf"

	"github.com/example/meeting-service/internal/application"
)

// SessionCookieNames are the cookies NextAuth stores its session token in, over plain HTTP and
// HTTPS respectively.
var SessionCookieNames = []string{"next-auth.session-token", "__Secure-next-auth.session-token"}

const nextAuthKeyInfo = "NextAuth.js Generated Encryption Key"

// NextAuthDecoder decrypts NextAuth session tokens (JWE, dir + A256GCM).
type NextAuthDecoder struct {
	key []byte
}

var _ application.TokenVerifier = (*NextAuthDecoder)(nil)

// NewNextAuthDecoder derives the content encryption key from the NextAuth secret.
func NewNextAuthDecoder(secret string) (*NextAuthDecoder, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("nextauth secret cannot be empty")
	}
	key, err := DeriveNextAuthKey(secret, "")
	if err != nil {
		return nil, err
	}
	return &NextAuthDecoder{key: key}, nil
}

// DeriveNextAuthKey reproduces NextAuth's HKDF-SHA256 key derivation. Salt is empty for the
// default session cookie.
func DeriveNextAuthKey(secret, salt string) ([]byte, error) {
	info := nextAuthKeyInfo
	if salt != "" {
		info += fmt.Sprintf(" (%s)", salt)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(salt), []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive nextauth key: %w", err)
	}
	return key, nil
}

type sessionPayload struct {
	Sub string   `json:"sub"`
	Exp *float64 `json:"exp,omitempty"`
}

// Verify decrypts token and returns its subject. Tokens past their exp claim are rejected.
func (d *NextAuthDecoder) Verify(token string, now time.Time) (string, error) {
	object, err := jose.ParseEncrypted(token)
	if err != nil {
		return "", fmt.Errorf("%w: parse session token: %v", ErrInvalidToken, err)
	}

	plaintext, err := object.Decrypt(d.key)
	if err != nil {
		return "", fmt.Errorf("%w: decrypt session token: %v", ErrInvalidToken, err)
	}

	var payload sessionPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return "", fmt.Errorf("%w: decode session payload: %v", ErrInvalidToken, err)
	}
	if payload.Sub == "" {
		return "", fmt.Errorf("%w: session has no subject", ErrInvalidToken)
	}
	if payload.Exp != nil && now.Unix() >= int64(*payload.Exp) {
		return "", fmt.Errorf("%w: session expired", ErrInvalidToken)
	}
	return payload.Sub, nil
}
