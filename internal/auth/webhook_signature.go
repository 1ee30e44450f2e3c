// Package auth - webhook_signature.go verifies the HMAC signature that the
// identity provider attaches to webhook deliveries.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Webhook signature failures. All of them map to 401.
var (
	ErrMissingSignature   = errors.New("missing webhook signature")
	ErrMalformedSignature = errors.New("malformed webhook signature")
	ErrSignatureMismatch  = errors.New("webhook signature mismatch")
	ErrSignatureExpired   = errors.New("webhook timestamp outside tolerance")
)

// SignatureHeader is the request header carrying the signature.
const SignatureHeader = "workos-signature"

// DefaultWebhookTolerance bounds the age of a signed delivery.
const DefaultWebhookTolerance = 5 * time.Minute

// SignWebhook computes the header value for body at ts.
func SignWebhook(secret string, ts time.Time, body []byte) string {
	t := strconv.FormatInt(ts.UnixMilli(), 10)
	return "t=" + t + ", v1=" + webhookDigest(secret, t, body)
}

// VerifyWebhookSignature checks header against body. The header has the form
// "t=<unix millis>, v1=<hex hmac-sha256 of "<t>.<body>">".
func VerifyWebhookSignature(header string, body []byte, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}
	if tolerance <= 0 {
		tolerance = DefaultWebhookTolerance
	}

	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformedSignature
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return ErrMalformedSignature
	}

	millis, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrMalformedSignature
	}
	age := now.Sub(time.UnixMilli(millis))
	if age < -tolerance || age > tolerance {
		return ErrSignatureExpired
	}

	got, err := hex.DecodeString(sig)
	if err != nil {
		return ErrMalformedSignature
	}
	want, _ := hex.DecodeString(webhookDigest(secret, ts, body))
	if !hmac.Equal(got, want) {
		return ErrSignatureMismatch
	}
	return nil
}

func webhookDigest(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
