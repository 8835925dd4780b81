package calendly

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>".
const SignatureHeader = "Calendly-Webhook-Signature"

// DefaultSignatureTolerance bounds how old a signed delivery may be.
const DefaultSignatureTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrStaleSignature   = errors.New("webhook signature timestamp outside tolerance")
)

// Sign computes the v1 signature of body at ts.
func Sign(key string, ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10) + "."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks header against body. The signed timestamp must be
// within tolerance of now in either direction.
func VerifySignature(header string, body []byte, key string, now time.Time, tolerance time.Duration) error {
	if strings.TrimSpace(header) == "" {
		return ErrMissingSignature
	}

	var tsRaw, sig string
	for _, part := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch name {
		case "t":
			tsRaw = value
		case "v1":
			sig = value
		}
	}
	if tsRaw == "" || sig == "" {
		return ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	ts := time.Unix(unix, 0)
	if diff := now.Sub(ts); diff > tolerance || diff < -tolerance {
		return ErrStaleSignature
	}

	expected := Sign(key, ts, body)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}
