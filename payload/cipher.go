// Package payload converts uploaded file content to and from the encrypted text form persisted in
// the record store.
package payload

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/hkdf"

	se "healx.io/healx/errors"
)

const (
	keyLen = 32 // AES-256

	infoMaster = "healx payload v1"
	infoOwner  = "healx payload owner v1:"
)

// Cipher encrypts and decrypts record payloads with AES-256-GCM. Decrypt fails closed: a wrong
// key, a corrupted or truncated ciphertext and an empty plaintext are all reported as
// ErrCodeDecryptionFailed.
type Cipher struct {
	key  []byte
	aead cipher.AEAD
}

// New derives the master key from secret. An empty secret is a configuration error and no
// Cipher is returned.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, se.NewConfig("missing payload encryption key")
	}
	key, err := derive([]byte(secret), infoMaster)
	if err != nil {
		return nil, se.NewConfig("error deriving payload encryption key").WithCause(err)
	}
	return newCipher(key)
}

// ForOwner returns a Cipher keyed with a subkey bound to ownerID, so that records of different
// users never share an encryption key.
func (c *Cipher) ForOwner(ownerID string) (*Cipher, error) {
	if ownerID == "" {
		return nil, se.NewBadInput("missing record owner")
	}
	key, err := derive(c.key, infoOwner+ownerID)
	if err != nil {
		return nil, se.NewServiceFailure("error deriving owner key").WithCause(err)
	}
	return newCipher(key)
}

// Encrypt seals the base64 data URL of a file. The result is base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", se.NewBadInput("refusing to encrypt empty payload")
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", se.NewServiceFailure("error generating nonce").WithCause(err)
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+c.aead.Overhead())
	out = append(out, nonce...)
	out = c.aead.Seal(out, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a ciphertext produced by Encrypt with the same key.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	const errMsg = "error decrypting payload"
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", se.NewDecryptionFailed(errMsg).WithCause(err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", se.NewDecryptionFailed(errMsg + ": ciphertext too short")
	}
	pt, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", se.NewDecryptionFailed(errMsg).WithCause(err)
	}
	if len(pt) == 0 {
		return "", se.NewDecryptionFailed(errMsg + ": empty payload")
	}
	return string(pt), nil
}

func newCipher(key []byte) (*Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, se.NewConfig("error initializing block cipher").WithCause(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, se.NewConfig("error initializing AEAD").WithCause(err)
	}
	return &Cipher{key: key, aead: aead}, nil
}

func derive(secret []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}
