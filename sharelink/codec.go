// Package sharelink issues and validates time-limited share tokens. A token
// carries the shared object key and an expiry timestamp, sealed with
// AES-256-GCM under a process-lifetime secret and encoded URL-safe. Tokens
// are stateless: nothing is stored server-side and there is no revocation —
// a link dies when it expires.
package sharelink

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL applies when a share request asks for a non-positive lifetime.
const DefaultTTL = 12 * time.Hour

// ErrInvalidToken covers every decode failure: bad encoding, failed
// authentication, malformed payload, non-numeric expiry. Callers must not
// distinguish between them — the proxied download path answers all of them
// with the same not-found response so a probing client learns nothing.
var ErrInvalidToken = errors.New("invalid share token")

// Codec seals and opens share tokens with a fixed secret.
type Codec struct {
	secret []byte
}

// New builds a Codec from a hex-encoded 32-byte secret.
func New(secretHex string) (*Codec, error) {
	if secretHex == "" {
		return nil, fmt.Errorf("share secret is required")
	}

	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode share secret: %w", err)
	}

	if len(secret) != 32 {
		return nil, fmt.Errorf("share secret must be 32 bytes (64 hex characters)")
	}

	return &Codec{secret: secret}, nil
}

// Encode issues a token for objectKey that expires ttl from now. A
// non-positive ttl falls back to DefaultTTL. Keys containing the payload
// separator '|' cannot be tokenized and are rejected.
func (c *Codec) Encode(objectKey string, ttl time.Duration) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("object key is required")
	}
	if strings.Contains(objectKey, "|") {
		return "", fmt.Errorf("object key must not contain '|'")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	expiresAt := time.Now().Add(ttl).Unix()
	payload := objectKey + "|" + strconv.FormatInt(expiresAt, 10)

	sealed, err := c.seal([]byte(payload))
	if err != nil {
		return "", fmt.Errorf("failed to seal share token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a token and returns the object key and expiry it carries.
// Expiry is not checked here; see IsExpired.
func (c *Codec) Decode(token string) (string, int64, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", 0, ErrInvalidToken
	}

	payload, err := c.open(sealed)
	if err != nil {
		return "", 0, ErrInvalidToken
	}

	parts := strings.Split(string(payload), "|")
	if len(parts) != 2 {
		return "", 0, ErrInvalidToken
	}

	expiresAt, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, ErrInvalidToken
	}

	return parts[0], expiresAt, nil
}

// IsExpired reports whether a token expiry has passed. The expiry instant
// itself is still valid.
func IsExpired(expiresAt int64, now time.Time) bool {
	return now.Unix() > expiresAt
}

func (c *Codec) seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.secret)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *Codec) open(sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.secret)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("token too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertext, nil)
}
