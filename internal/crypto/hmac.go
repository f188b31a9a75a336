// Package crypto signs and verifies webhook deliveries with a shared secret.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// Header names carried by signed webhook requests.
const (
	TimestampHeader = "X-QX-Timestamp"
	SignatureHeader = "X-QX-Signature"
)

// DefaultTolerance bounds the clock skew accepted by Verify.
const DefaultTolerance = 5 * time.Minute

// HMACAuth holds the shared webhook secret. The signature is
// HMAC-SHA256(secret, timestamp + "." + body), hex encoded with a "sha256="
// prefix.
type HMACAuth struct {
	Secret    string
	Tolerance time.Duration
	now       func() time.Time
}

// NewHMACAuth creates an HMACAuth with DefaultTolerance.
func NewHMACAuth(secret string) *HMACAuth {
	return &HMACAuth{Secret: secret, Tolerance: DefaultTolerance, now: time.Now}
}

// Headers returns the headers a sender attaches to body.
func (h *HMACAuth) Headers(body []byte) map[string]string {
	return h.HeadersAt(body, h.clock().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (h *HMACAuth) HeadersAt(body []byte, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		TimestampHeader: ts,
		SignatureHeader: "sha256=" + h.sign(ts, body),
	}
}

// Verify checks the timestamp and signature headers against body. Every
// failure wraps domain.ErrUnauthorized.
func (h *HMACAuth) Verify(body []byte, timestamp, signature string) error {
	unixTS, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("crypto: missing or malformed %s: %w", TimestampHeader, domain.ErrUnauthorized)
	}
	if tol := h.Tolerance; tol > 0 {
		skew := h.clock().Sub(time.Unix(unixTS, 0))
		if skew < -tol || skew > tol {
			return fmt.Errorf("crypto: timestamp outside tolerance: %w", domain.ErrUnauthorized)
		}
	}

	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil || len(got) == 0 {
		return fmt.Errorf("crypto: missing or malformed %s: %w", SignatureHeader, domain.ErrUnauthorized)
	}
	want, _ := hex.DecodeString(h.sign(strings.TrimSpace(timestamp), body))
	if !hmac.Equal(got, want) {
		return fmt.Errorf("crypto: signature mismatch: %w", domain.ErrUnauthorized)
	}
	return nil
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	secret := "****"
	if len(h.Secret) > 4 {
		secret = h.Secret[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{secret=%s, tolerance=%s}", secret, h.Tolerance)
}

func (h *HMACAuth) sign(ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *HMACAuth) clock() time.Time {
	if h.now == nil {
		return time.Now()
	}
	return h.now()
}
