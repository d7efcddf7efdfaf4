package sdp

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// XOR stream obfuscation of application payloads in the key:iv:ciphertext
// format the frontend expects. This is NOT cryptographically secure — it
// only obscures payloads from casual inspection; real confidentiality of
// media comes from the transport's DTLS-SRTP.

const (
	keyLength = 32
	ivLength  = 16

	keyCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var ErrMalformedPayload = errors.New("malformed obfuscated payload")

func randomCharacters(n int) string {
	var b strings.Builder
	b.Grow(n)
	max := big.NewInt(int64(len(keyCharset)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is broken.
			panic(err)
		}
		b.WriteByte(keyCharset[idx.Int64()])
	}
	return b.String()
}

func xorWithKey(in, key string) string {
	out := []byte(in)
	for i := range out {
		out[i] ^= key[i%len(key)]
	}
	return string(out)
}

// ObfuscatePayload XORs text with a freshly generated key and returns
// "key:iv:ciphertext".
func ObfuscatePayload(text string) string {
	key := randomCharacters(keyLength)
	iv := randomCharacters(ivLength)
	return strings.Join([]string{key, iv, xorWithKey(text, key)}, ":")
}

// DeobfuscatePayload reverses ObfuscatePayload. The key and IV segments
// must have the exact generated shape, so plain text containing colons is
// rejected rather than garbled.
func DeobfuscatePayload(payload string) (string, error) {
	parts := strings.SplitN(payload, ":", 3)
	if len(parts) != 3 || len(parts[0]) != keyLength || len(parts[1]) != ivLength {
		return "", ErrMalformedPayload
	}
	for _, seg := range parts[:2] {
		if strings.ContainsFunc(seg, func(r rune) bool {
			return !strings.ContainsRune(keyCharset, r)
		}) {
			return "", ErrMalformedPayload
		}
	}
	return xorWithKey(parts[2], parts[0]), nil
}
