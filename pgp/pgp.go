// Package pgp provides signature generation over distribution-owned key
// pairs, using an ephemeral keyring per operation so that concurrent
// signing for different distributions never shares key material.
package pgp

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

// ErrNoKey is returned when signing is requested for a distribution
// without a key pair.
var ErrNoKey = errors.New("distribution has no signing key")

// Key is an asymmetric signing key pair with both halves ASCII-armored
type Key struct {
	Private     []byte
	Public      []byte
	Passphrase  string
	Fingerprint string
}

// KeyParams control key generation; the zero value selects the defaults
type KeyParams struct {
	Bits       int
	Name       string
	Comment    string
	Email      string
	Expiry     time.Duration
	Passphrase string
}

// WithDefaults fills unset parameters
func (p KeyParams) WithDefaults() KeyParams {
	if p.Bits == 0 {
		p.Bits = 4096
	}
	if p.Name == "" {
		p.Name = "Package Repository"
	}
	if p.Comment == "" {
		p.Comment = "apt repository signing key"
	}
	if p.Email == "" {
		p.Email = "packages@invalid.invalid"
	}
	return p
}

// Signer produces ASCII-armored signatures over arbitrary content.
// detached yields a standalone signature block, otherwise the content is
// cleartext-signed inline.
type Signer interface {
	Sign(key *Key, content []byte, detached bool) ([]byte, error)
}

// KeyGenerator produces fresh signing key pairs non-interactively
type KeyGenerator interface {
	Generate(params KeyParams) (*Key, error)
}

// RandomPassphrase generates a fresh passphrase for a new key pair
func RandomPassphrase() (string, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
