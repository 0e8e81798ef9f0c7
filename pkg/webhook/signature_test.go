package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	secret := "topsecret"
	body := []byte(`{"id":"wh-1"}`)

	tests := []struct {
		name      string
		signature string
		want      bool
	}{
		{
			name:      "valid signature",
			signature: Sign(secret, body),
			want:      true,
		},
		{
			name:      "valid with sha256 prefix",
			signature: "sha256=" + Sign(secret, body),
			want:      true,
		},
		{
			name:      "wrong secret",
			signature: Sign("othersecret", body),
			want:      false,
		},
		{
			name:      "empty signature",
			signature: "",
			want:      false,
		},
		{
			name:      "not hex",
			signature: "zzzz",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifySignature(secret, body, tt.signature))
		})
	}
}

func TestVerifySignature_BodySensitive(t *testing.T) {
	secret := "topsecret"
	sig := Sign(secret, []byte("original"))

	assert.False(t, VerifySignature(secret, []byte("tampered"), sig))
}
