package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"
	"time"
)

const (
	// SecretEnvKey is the env var name for the shared session secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SecretEnvKey = "BEACON_SESSION_SECRET"

	// DefaultTTL is the default session token lifetime.
	DefaultTTL = time.Hour
)

// Claims is the decoded token payload.
type Claims struct {
	UserID    string `json:"userId"`
	Username  string `json:"username,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

type header struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

var enc = base64.RawURLEncoding

// Mint builds a signed session token for userID with the default TTL.
// It is pure given the secret and clock: no side effects, no server-side state.
func Mint(userID, username string, secret []byte, now time.Time) (string, error) {
	return MintTTL(userID, username, secret, now, DefaultTTL)
}

// MintTTL builds a signed session token with an explicit lifetime.
func MintTTL(userID, username string, secret []byte, now time.Time, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrMissingSubject
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	hb, err := json.Marshal(header{Alg: "HS256", Typ: "JWT"})
	if err != nil {
		return "", err
	}
	pb, err := json.Marshal(Claims{
		UserID:    userID,
		Username:  username,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return "", err
	}

	signing := enc.EncodeToString(hb) + "." + enc.EncodeToString(pb)
	return signing + "." + enc.EncodeToString(sign(signing, secret)), nil
}

// Verify checks a session token against the shared secret and returns its claims.
//
// Error taxonomy (stable, in check order):
//   - ErrMalformedToken: not exactly three non-empty dot-separated parts
//   - ErrBadSignature: MAC mismatch (constant-time compare)
//   - ErrUnparsablePayload: payload segment is not well-formed
//   - ErrExpired: exp strictly before now (exp == now is still valid)
//   - ErrMissingSubject: no subject user id in the payload
func Verify(tok string, secret []byte, now time.Time) (Claims, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Claims{}, ErrMalformedToken
	}

	got, err := enc.DecodeString(parts[2])
	if err != nil {
		return Claims{}, ErrBadSignature
	}
	want := sign(parts[0]+"."+parts[1], secret)
	if !hmac.Equal(got, want) {
		return Claims{}, ErrBadSignature
	}

	pb, err := enc.DecodeString(parts[1])
	if err != nil {
		return Claims{}, ErrUnparsablePayload
	}
	var c Claims
	if err := json.Unmarshal(pb, &c); err != nil {
		return Claims{}, ErrUnparsablePayload
	}

	if c.ExpiresAt < now.Unix() {
		return Claims{}, ErrExpired
	}
	if strings.TrimSpace(c.UserID) == "" {
		return Claims{}, ErrMissingSubject
	}
	return c, nil
}

func sign(signing string, secret []byte) []byte {
	m := hmac.New(sha256.New, secret)
	_, _ = m.Write([]byte(signing))
	return m.Sum(nil)
}

// SecretFromEnv returns the configured session secret bytes (trimmed), enforcing
// a minimum byte length. Bytes, not runes: the key is used as raw key material.
func SecretFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(SecretEnvKey))
	if raw == "" {
		return nil, ErrSecretMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrSecretTooShort
	}
	return b, nil
}
