package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	HeaderDelivery  = "X-Featurehooks-Delivery"
	HeaderAttempt   = "X-Featurehooks-Attempt"
	HeaderSignature = "X-Featurehooks-Signature"
	HeaderEvent     = "X-Featurehooks-Event"
)

// HMACSigner signs payloads with HMAC-SHA256. Receivers recompute the digest
// over the raw body with the hook secret.
type HMACSigner struct {
	Header   string
	Prefix   string
	Encoding string // hex | base64
}

func DefaultSigner() HMACSigner {
	return HMACSigner{Header: HeaderSignature, Prefix: "sha256=", Encoding: "hex"}
}

func (s HMACSigner) HeaderName() string {
	if header := strings.TrimSpace(s.Header); header != "" {
		return header
	}
	return HeaderSignature
}

// Sign returns the header value for body, or "" when secret is empty.
func (s HMACSigner) Sign(secret string, body []byte) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	digest := s.digest(secret, body)
	switch strings.ToLower(strings.TrimSpace(s.Encoding)) {
	case "base64":
		return s.Prefix + base64.StdEncoding.EncodeToString(digest)
	default:
		return s.Prefix + hex.EncodeToString(digest)
	}
}

func (s HMACSigner) Verify(secret string, header string, body []byte) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", s.HeaderName())
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimSpace(strings.TrimPrefix(header, strings.TrimSpace(s.Prefix)))
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	expected := s.digest(secret, body)
	var decoded []byte
	var err error
	switch strings.ToLower(strings.TrimSpace(s.Encoding)) {
	case "base64":
		decoded, err = base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode base64 signature: %w", err)
		}
	default:
		decoded, err = hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode hex signature: %w", err)
		}
	}
	if subtle.ConstantTimeCompare(decoded, expected) != 1 {
		return fmt.Errorf("webhooks: signature verification failed")
	}
	return nil
}

func (s HMACSigner) digest(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}
