package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/spectra-gallery/spectra-playground/models"
)

const (
	NonceSize = 12
	TagSize   = 16

	algorithmPrefix = "aes-256-gcm/"
)

// ErrDecrypt is returned for every failure of Open: malformed envelope,
// unknown algorithm, wrong password or tampered ciphertext all look the same.
var ErrDecrypt = errors.New("unable to decrypt")

// AlgorithmFor names the envelope algorithm that uses the given KDF scheme.
func AlgorithmFor(scheme string) string {
	return algorithmPrefix + scheme
}

// Seal derives a key from password with a fresh salt, encrypts plaintext with
// AES-256-GCM under a fresh nonce and returns the text envelope.
func Seal(kdf KDF, plaintext, password []byte) (*models.EncryptionEnvelope, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	nonce, err := RandomBytes(NonceSize)
	if err != nil {
		return nil, err
	}

	key, err := kdf.Derive(password, salt)
	if err != nil {
		return nil, err
	}
	defer Zero(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	// ciphertext carries the tag appended
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	return &models.EncryptionEnvelope{
		Algorithm:  AlgorithmFor(kdf.Scheme()),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Open reverses Seal. Any failure yields ErrDecrypt.
func Open(env *models.EncryptionEnvelope, password []byte) ([]byte, error) {
	if env == nil || !strings.HasPrefix(env.Algorithm, algorithmPrefix) {
		return nil, ErrDecrypt
	}
	kdf, err := LookupKDF(strings.TrimPrefix(env.Algorithm, algorithmPrefix))
	if err != nil {
		return nil, ErrDecrypt
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil || len(salt) != SaltSize {
		return nil, ErrDecrypt
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil || len(nonce) != NonceSize {
		return nil, ErrDecrypt
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil || len(ciphertext) < TagSize {
		return nil, ErrDecrypt
	}

	key, err := kdf.Derive(password, salt)
	if err != nil {
		return nil, ErrDecrypt
	}
	defer Zero(key)

	aead, err := newGCM(key)
	if err != nil {
		return nil, ErrDecrypt
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
