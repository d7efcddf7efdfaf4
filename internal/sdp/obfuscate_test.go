package sdp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObfuscateRoundTrip(t *testing.T) {
	for _, text := range []string{
		"v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\n",
		"short",
		"",
		"payload:with:colons",
	} {
		payload := ObfuscatePayload(text)
		parts := strings.SplitN(payload, ":", 3)
		require.Len(t, parts, 3)
		assert.Len(t, parts[0], 32)
		assert.Len(t, parts[1], 16)

		got, err := DeobfuscatePayload(payload)
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}
}

func TestObfuscateKeysAreFresh(t *testing.T) {
	a := ObfuscatePayload("same text")
	b := ObfuscatePayload("same text")
	assert.NotEqual(t, a, b)
}

func TestDeobfuscateMalformed(t *testing.T) {
	for _, payload := range []string{
		"",
		"nocolons",
		"one:colon",
		"shortkey:shortiv:data",
		// A plain SDP line must not be mistaken for an obfuscated payload.
		"a=candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host",
	} {
		_, err := DeobfuscatePayload(payload)
		assert.ErrorIs(t, err, ErrMalformedPayload, payload)
	}
}
