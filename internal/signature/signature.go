// Package signature produces and verifies the HMAC-SHA256 codes that bind a
// webhook payload to a timestamp. Both the outbound dispatcher and the inbound
// partner gateway use it; they hold independent secrets.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHeader    = errors.New("missing signature or timestamp header")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrExpiredTimestamp = errors.New("expired timestamp")
	ErrBadSignature     = errors.New("signature mismatch")
)

// Tolerance is the default replay window, applied in both directions so stale
// replays and forged future timestamps are rejected alike.
const Tolerance = 300 * time.Second

// Sign returns lowercase hex HMAC-SHA256 over "{ts}.{body}". Callers must
// sign the exact bytes they transmit; a re-serialized payload will not verify.
func Sign(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message(strconv.FormatInt(ts, 10), body))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header against the raw body. It fails closed: any
// missing header, unparsable or out-of-window timestamp, or digest mismatch
// yields a typed error. Comparison is constant-time.
func Verify(secret, sigHeader, tsHeader string, body []byte, now time.Time, tolerance time.Duration) error {
	sigHeader = strings.TrimSpace(sigHeader)
	tsHeader = strings.TrimSpace(tsHeader)
	if sigHeader == "" || tsHeader == "" {
		return ErrMissingHeader
	}
	tsInt, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	if tolerance <= 0 {
		tolerance = Tolerance
	}
	ts := time.Unix(tsInt, 0)
	if ts.Before(now.Add(-tolerance)) || ts.After(now.Add(tolerance)) {
		return ErrExpiredTimestamp
	}
	provided, err := hex.DecodeString(sigHeader)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message(tsHeader, body))
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

func message(ts string, body []byte) []byte {
	msg := make([]byte, 0, len(ts)+1+len(body))
	msg = append(msg, ts...)
	msg = append(msg, '.')
	msg = append(msg, body...)
	return msg
}
