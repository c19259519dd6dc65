package auth

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spectra-gallery/spectra-playground/cryptox"
)

// PasswordHasher produces and checks stored password hashes of the form
// scheme$saltHex$keyHex.
type PasswordHasher struct {
	kdf       cryptox.KDF
	dummyHash string
}

func NewPasswordHasher(scheme string) (*PasswordHasher, error) {
	kdf, err := cryptox.LookupKDF(scheme)
	if err != nil {
		return nil, err
	}
	h := &PasswordHasher{kdf: kdf}

	dummy, err := h.Hash("dummy-password-for-unknown-users")
	if err != nil {
		return nil, err
	}
	h.dummyHash = dummy
	return h, nil
}

func (h *PasswordHasher) Scheme() string {
	return h.kdf.Scheme()
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	salt, err := cryptox.NewSalt()
	if err != nil {
		return "", err
	}
	key, err := h.kdf.Derive([]byte(password), salt)
	if err != nil {
		return "", err
	}
	defer cryptox.Zero(key)

	return h.kdf.Scheme() + "$" + hex.EncodeToString(salt) + "$" + hex.EncodeToString(key), nil
}

// Verify recomputes the key with the stored scheme and salt and compares it
// in constant time. Hashes of any registered scheme are accepted, so the
// default scheme can change without invalidating existing users.
func (h *PasswordHasher) Verify(password, stored string) error {
	parts := strings.Split(stored, "$")
	if len(parts) != 3 {
		return fmt.Errorf("%w: malformed hash", ErrPasswordMismatch)
	}

	kdf, err := cryptox.LookupKDF(parts[0])
	if err != nil {
		return ErrUnknownScheme
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("%w: malformed salt", ErrPasswordMismatch)
	}
	want, err := hex.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("%w: malformed key", ErrPasswordMismatch)
	}

	got, err := kdf.Derive([]byte(password), salt)
	if err != nil {
		return err
	}
	defer cryptox.Zero(got)

	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// DummyHash is a valid hash that no real password matches. Verifying against
// it costs the same as verifying a real user.
func (h *PasswordHasher) DummyHash() string {
	return h.dummyHash
}
