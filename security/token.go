// Package security provides security features for formrelay including
// anti-forgery tokens, rate limiting, audit logging, and secure header
// management.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// DefaultTokenTTL is how long an anti-forgery token remains valid.
	// 24 hours balances long-lived page sessions against the exposure
	// window if a token leaks.
	DefaultTokenTTL = 24 * time.Hour

	// MinSecretLength is the minimum accepted signing secret length in bytes.
	// Secrets shorter than the HMAC-SHA256 output size weaken the MAC.
	MinSecretLength = 32

	// tokenParts is the number of dot-separated components in a token
	tokenParts = 3
)

// Codec creates and validates signed, time-boxed anti-forgery tokens.
//
// A token is three dot-separated parts: a random nonce, a creation timestamp
// in milliseconds since epoch, and an HMAC-SHA256 signature over the first
// two parts. Tokens are stateless: there is no server-side store and no
// revocation list, only the TTL bound.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures a Codec
type CodecOption func(*Codec)

// WithTokenTTL overrides the default 24h validity window
func WithTokenTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source (for testing)
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCodec creates a token codec. A missing or short secret is a
// configuration error and must abort startup; Issue and Validate never fail
// at call time.
func NewCodec(secret []byte, opts ...CodecOption) (*Codec, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("anti-forgery signing secret is required")
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("anti-forgery signing secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}

	c := &Codec{
		secret: secret,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue returns a fresh anti-forgery token. The nonce carries 256 bits of
// entropy; generation uses the same primitive as oauth2.GenerateVerifier for
// consistency with the rest of the security stack.
func (c *Codec) Issue() string {
	nonce := oauth2.GenerateVerifier()
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	return nonce + "." + ts + "." + c.sign(nonce, ts)
}

// Validate reports whether token is authentic and unexpired. It fails closed
// on every malformed input: wrong part count, unparsable timestamp, signature
// mismatch, or age beyond the TTL. It never panics or returns an error.
func (c *Codec) Validate(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != tokenParts {
		return false
	}
	nonce, ts, sig := parts[0], parts[1], parts[2]
	if nonce == "" || ts == "" || sig == "" {
		return false
	}

	issuedMilli, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}

	// Constant-time comparison to prevent timing side-channels on the MAC
	expected := c.sign(nonce, ts)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return false
	}

	age := c.now().Sub(time.UnixMilli(issuedMilli))
	return age <= c.ttl
}

// sign computes the hex HMAC-SHA256 over nonce+timestamp
func (c *Codec) sign(nonce, ts string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(nonce + ts))
	return hex.EncodeToString(mac.Sum(nil))
}
