package akeneowebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	pkgerrors "github.com/angelmondragon/pimsync/pkg/errors"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"id":"evt-001"}`)

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{
			name:   "valid signature",
			header: signBody(secret, body),
			want:   true,
		},
		{
			name:   "wrong secret",
			header: signBody("whsec_other", body),
			want:   false,
		},
		{
			name:   "tampered body",
			header: signBody(secret, []byte(`{"id":"evt-002"}`)),
			want:   false,
		},
		{
			name:   "missing header",
			header: "",
			want:   false,
		},
		{
			name:   "truncated header",
			header: signBody(secret, body)[:16],
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := VerifySignature(body, tt.header, secret)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifySignatureFailsClosedWithoutSecret(t *testing.T) {
	body := []byte(`{"id":"evt-001"}`)
	header := signBody("whsec_test", body)

	ok, err := VerifySignature(body, header, "")
	if ok {
		t.Fatalf("expected verification to fail without a configured secret")
	}
	if err == nil {
		t.Fatalf("expected configuration error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInternal {
		t.Fatalf("expected internal error code, got %v", err)
	}
}
