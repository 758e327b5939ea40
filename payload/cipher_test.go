package payload

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	se "healx.io/healx/errors"
)

const (
	testSecret  = "not-so-secret"
	testPayload = "data:application/pdf;base64,JVBERi0xLjQKJcfsj6IKNSAwIG9iago="
)

func TestCipher_MissingKey(t *testing.T) {
	c, err := New("")
	assert.Nil(t, c)
	assert.True(t, se.Is(err, se.ErrCodeConfig), "missing key must be a config error, got %v", err)
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)
	tcs := []struct {
		name      string
		plaintext string
	}{
		{name: "PDF", plaintext: testPayload},
		{name: "Image", plaintext: "data:image/png;base64,iVBORw0KGgo="},
		{name: "SingleByte", plaintext: "x"},
		{name: "Large", plaintext: "data:text/plain;base64," + strings.Repeat("QUJD", 1<<14)},
	}
	for _, c2 := range tcs {
		t.Run(c2.name, func(t *testing.T) {
			ct, err := c.Encrypt(c2.plaintext)
			require.NoError(t, err)
			assert.NotContains(t, ct, c2.plaintext)
			pt, err := c.Decrypt(ct)
			require.NoError(t, err)
			assert.Equal(t, c2.plaintext, pt, "round trip must preserve the payload")
		})
	}
}

func TestCipher_EncryptIsRandomized(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)
	ct1, err := c.Encrypt(testPayload)
	require.NoError(t, err)
	ct2, err := c.Encrypt(testPayload)
	require.NoError(t, err)
	assert.NotEqual(t, ct1, ct2, "each encryption must use a fresh nonce")
}

func TestCipher_EncryptEmpty(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)
	_, err = c.Encrypt("")
	assert.True(t, se.Is(err, se.ErrCodeBadInput))
}

func TestCipher_WrongKey(t *testing.T) {
	c1, err := New(testSecret)
	require.NoError(t, err)
	c2, err := New(testSecret + "!")
	require.NoError(t, err)
	ct, err := c1.Encrypt(testPayload)
	require.NoError(t, err)

	pt, err := c2.Decrypt(ct)
	assert.NotEqual(t, testPayload, pt)
	assert.Empty(t, pt)
	assert.True(t, se.Is(err, se.ErrCodeDecryptionFailed), "wrong key must be classified as failure, got %v", err)
}

func TestCipher_DecryptCorrupted(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)
	ct, err := c.Encrypt(testPayload)
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(ct)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	tcs := []struct {
		name       string
		ciphertext string
	}{
		{name: "Tampered", ciphertext: base64.StdEncoding.EncodeToString(raw)},
		{name: "Truncated", ciphertext: base64.StdEncoding.EncodeToString(raw[:8])},
		{name: "NotBase64", ciphertext: "U2FsdGVkX1+%%%"},
		{name: "Empty", ciphertext: ""},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			pt, err := c.Decrypt(tc.ciphertext)
			assert.Empty(t, pt)
			assert.True(t, se.Is(err, se.ErrCodeDecryptionFailed), "unexpected error %v", err)
		})
	}
}

func TestCipher_ForOwner(t *testing.T) {
	c, err := New(testSecret)
	require.NoError(t, err)
	alice, err := c.ForOwner("alice")
	require.NoError(t, err)
	bob, err := c.ForOwner("bob")
	require.NoError(t, err)
	aliceAgain, err := c.ForOwner("alice")
	require.NoError(t, err)

	ct, err := alice.Encrypt(testPayload)
	require.NoError(t, err)
	pt, err := aliceAgain.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, testPayload, pt, "owner key derivation must be deterministic")

	_, err = bob.Decrypt(ct)
	assert.True(t, se.Is(err, se.ErrCodeDecryptionFailed))
	_, err = c.Decrypt(ct)
	assert.True(t, se.Is(err, se.ErrCodeDecryptionFailed), "master key must not open owner ciphertext")

	_, err = c.ForOwner("")
	assert.True(t, se.Is(err, se.ErrCodeBadInput))
}
