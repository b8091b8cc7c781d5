package sharelink

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := New(testSecret)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{name: "valid 64 hex chars", secret: testSecret},
		{name: "empty", secret: "", wantErr: true},
		{name: "not hex", secret: strings.Repeat("zz", 32), wantErr: true},
		{name: "too short", secret: "0123456789abcdef", wantErr: true},
		{name: "too long", secret: testSecret + "00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.secret)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	keys := []string{
		"report.pdf",
		"docs/reports/q1 2025.pdf",
		"ünïcode/ファイル.bin",
	}

	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			before := time.Now().Unix()
			token, err := c.Encode(key, time.Hour)
			require.NoError(t, err)
			after := time.Now().Unix()

			gotKey, expiresAt, err := c.Decode(token)
			require.NoError(t, err)
			assert.Equal(t, key, gotKey)
			assert.GreaterOrEqual(t, expiresAt, before+3600)
			assert.LessOrEqual(t, expiresAt, after+3600)
		})
	}
}

func TestEncodeAppliesDefaultTTL(t *testing.T) {
	c := newTestCodec(t)

	for _, ttl := range []time.Duration{0, -time.Minute} {
		before := time.Now().Unix()
		token, err := c.Encode("report.pdf", ttl)
		require.NoError(t, err)
		after := time.Now().Unix()

		_, expiresAt, err := c.Decode(token)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, expiresAt, before+43200)
		assert.LessOrEqual(t, expiresAt, after+43200)
	}
}

func TestEncodeRequiresObjectKey(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.Encode("", time.Hour)
	assert.Error(t, err)
}

func TestEncodeRejectsSeparatorInKey(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.Encode("docs/with|pipe.txt", time.Hour)
	assert.Error(t, err)
}

func TestEncodeProducesURLSafeTokens(t *testing.T) {
	c := newTestCodec(t)

	token, err := c.Encode("docs/a file with spaces & symbols?.pdf", time.Hour)
	require.NoError(t, err)

	_, err = base64.RawURLEncoding.DecodeString(token)
	assert.NoError(t, err)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")
}

func TestDecodeRejectsForeignSecret(t *testing.T) {
	c := newTestCodec(t)
	other, err := New(strings.Repeat("ff", 32))
	require.NoError(t, err)

	token, err := c.Encode("report.pdf", time.Hour)
	require.NoError(t, err)

	_, _, err = other.Decode(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecodeRejectsMalformedTokens(t *testing.T) {
	c := newTestCodec(t)

	sealOf := func(payload string) string {
		sealed, err := c.seal([]byte(payload))
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(sealed)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "not base64", token: "not/base64/===!"},
		{name: "random bytes", token: base64.RawURLEncoding.EncodeToString([]byte("garbage garbage garbage"))},
		{name: "payload without separator", token: sealOf("no-separator-here")},
		{name: "payload with two separators", token: sealOf("docs/with|pipe.txt|1700000000")},
		{name: "payload with empty expiry", token: sealOf("report.pdf|")},
		{name: "payload with non-numeric expiry", token: sealOf("report.pdf|tomorrow")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := c.Decode(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestDecodeRejectsTamperedToken(t *testing.T) {
	c := newTestCodec(t)

	token, err := c.Encode("report.pdf", time.Hour)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.RawURLEncoding.EncodeToString(raw)

	_, _, err = c.Decode(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIsExpired(t *testing.T) {
	expiresAt := int64(1_700_000_000)

	assert.False(t, IsExpired(expiresAt, time.Unix(expiresAt-1, 0)))
	assert.False(t, IsExpired(expiresAt, time.Unix(expiresAt, 0)), "the expiry instant itself is still valid")
	assert.True(t, IsExpired(expiresAt, time.Unix(expiresAt+1, 0)))
}
