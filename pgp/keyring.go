package pgp

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// KeyringDir is a temp-directory-backed ephemeral keyring. It is created,
// used and torn down within the scope of a single sign or generate call;
// teardown runs on every exit path.
type KeyringDir struct {
	Dir string
}

// NewKeyringDir creates a private temporary keyring directory
func NewKeyringDir() (*KeyringDir, error) {
	dir, err := os.MkdirTemp("", "debindex-keyring")
	if err != nil {
		return nil, errors.Wrap(err, "unable to create ephemeral keyring")
	}
	if err = os.Chmod(dir, 0700); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return &KeyringDir{Dir: dir}, nil
}

// WriteFile places a file inside the keyring directory
func (k *KeyringDir) WriteFile(name string, data []byte, mode os.FileMode) (string, error) {
	path := filepath.Join(k.Dir, name)
	if err := os.WriteFile(path, data, mode); err != nil {
		return "", errors.Wrapf(err, "unable to write %s into keyring", name)
	}
	return path, nil
}

// Close removes the keyring directory and all key material in it
func (k *KeyringDir) Close() error {
	return os.RemoveAll(k.Dir)
}

// withKeyring runs fn inside a fresh ephemeral keyring, guaranteeing
// teardown.
func withKeyring(fn func(k *KeyringDir) error) error {
	keyring, err := NewKeyringDir()
	if err != nil {
		return err
	}
	defer func() { _ = keyring.Close() }()

	return fn(keyring)
}
