package akeneowebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	pkgerrors "github.com/angelmondragon/pimsync/pkg/errors"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Akeneo-Request-Signature"

// VerifySignature checks the webhook signature over the exact raw body bytes.
// It must run before the body is parsed. The comparison is constant time via
// hmac.Equal; mismatched lengths compare unequal without byte inspection.
// A missing secret is a configuration fault and fails closed.
func VerifySignature(payload []byte, header, secret string) (bool, error) {
	if strings.TrimSpace(secret) == "" {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "akeneo webhook secret not configured")
	}
	if header == "" {
		return false, nil
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(header)), nil
}
