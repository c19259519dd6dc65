// Package cryptox holds the key derivation functions and the AEAD envelope
// shared by password hashing and resource encryption.
package cryptox

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/scrypt"
)

const (
	SchemeScrypt   = "scrypt"
	SchemeArgon2id = "argon2id"

	SaltSize = 16
	KeySize  = 32
)

// KDF derives a KeySize-byte key from a password and salt. Implementations
// are deliberately slow and memory hard.
type KDF interface {
	Scheme() string
	Derive(password, salt []byte) ([]byte, error)
}

type scryptKDF struct {
	n, r, p int
}

func (k scryptKDF) Scheme() string { return SchemeScrypt }

func (k scryptKDF) Derive(password, salt []byte) ([]byte, error) {
	return scrypt.Key(password, salt, k.n, k.r, k.p, KeySize)
}

type argon2idKDF struct {
	time    uint32
	memory  uint32
	threads uint8
}

func (k argon2idKDF) Scheme() string { return SchemeArgon2id }

func (k argon2idKDF) Derive(password, salt []byte) ([]byte, error) {
	return argon2.IDKey(password, salt, k.time, k.memory, k.threads, KeySize), nil
}

var kdfs = map[string]KDF{
	SchemeScrypt:   scryptKDF{n: 1 << 15, r: 8, p: 1},
	SchemeArgon2id: argon2idKDF{time: 1, memory: 64 * 1024, threads: 4},
}

// LookupKDF returns the registered KDF for scheme.
func LookupKDF(scheme string) (KDF, error) {
	k, ok := kdfs[scheme]
	if !ok {
		return nil, fmt.Errorf("unknown kdf scheme %q", scheme)
	}
	return k, nil
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	return RandomBytes(SaltSize)
}

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Zero overwrites b so derived keys do not linger in memory longer than needed.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
