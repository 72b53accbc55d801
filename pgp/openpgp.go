package pgp

import (
	"bytes"
	"crypto"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/pkg/errors"
)

var signingConfig = &packet.Config{
	DefaultHash: crypto.SHA256,
}

func decryptEntity(e *openpgp.Entity, passphrase string) error {
	pass := []byte(passphrase)

	if e.PrivateKey != nil && e.PrivateKey.Encrypted {
		if err := e.PrivateKey.Decrypt(pass); err != nil {
			return errors.Wrap(err, "unable to decrypt private key")
		}
	}
	for _, subkey := range e.Subkeys {
		if subkey.PrivateKey != nil && subkey.PrivateKey.Encrypted {
			if err := subkey.PrivateKey.Decrypt(pass); err != nil {
				return errors.Wrap(err, "unable to decrypt subkey")
			}
		}
	}
	return nil
}

// GoSigner is the in-process Signer implementation. Key material is
// still staged through an ephemeral keyring directory to keep the same
// isolation contract as the gpg-backed signer.
type GoSigner struct{}

// Sign implements Signer
func (GoSigner) Sign(key *Key, content []byte, detached bool) (signature []byte, err error) {
	if key == nil {
		return nil, ErrNoKey
	}

	err = withKeyring(func(keyring *KeyringDir) error {
		privatePath, err := keyring.WriteFile("private.asc", key.Private, 0600)
		if err != nil {
			return err
		}
		if _, err = keyring.WriteFile("public.asc", key.Public, 0600); err != nil {
			return err
		}

		f, err := os.Open(privatePath)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		entities, err := openpgp.ReadArmoredKeyRing(f)
		if err != nil {
			return errors.Wrap(err, "unable to read private key")
		}
		if len(entities) == 0 {
			return errors.New("no key found in private keyring half")
		}

		signer := entities[0]
		if err = decryptEntity(signer, key.Passphrase); err != nil {
			return err
		}

		buf := &bytes.Buffer{}
		if detached {
			if err = openpgp.ArmoredDetachSign(buf, signer, bytes.NewReader(content), signingConfig); err != nil {
				return errors.Wrap(err, "unable to create detached signature")
			}
		} else {
			plaintext, err := clearsign.Encode(buf, signer.PrivateKey, signingConfig)
			if err != nil {
				return errors.Wrap(err, "unable to create cleartext signature")
			}
			if _, err = plaintext.Write(content); err != nil {
				return err
			}
			if err = plaintext.Close(); err != nil {
				return err
			}
		}

		signature = buf.Bytes()
		return nil
	})
	return signature, err
}

// GoKeyGenerator is the in-process KeyGenerator implementation
type GoKeyGenerator struct{}

// Generate implements KeyGenerator: a fresh RSA signing entity with the
// private half encrypted under a random passphrase, both halves exported
// as armored text.
func (GoKeyGenerator) Generate(params KeyParams) (*Key, error) {
	params = params.WithDefaults()

	passphrase := params.Passphrase
	if passphrase == "" {
		var err error
		if passphrase, err = RandomPassphrase(); err != nil {
			return nil, err
		}
	}

	config := &packet.Config{
		DefaultHash: crypto.SHA256,
		RSABits:     params.Bits,
	}

	entity, err := openpgp.NewEntity(params.Name, params.Comment, params.Email, config)
	if err != nil {
		return nil, errors.Wrap(err, "unable to generate key pair")
	}

	// serialize once to self-sign, then re-read the signed entity
	signedBuf := &bytes.Buffer{}
	if err = entity.SerializePrivate(signedBuf, config); err != nil {
		return nil, errors.Wrap(err, "unable to serialize key pair")
	}
	entities, err := openpgp.ReadKeyRing(bytes.NewReader(signedBuf.Bytes()))
	if err != nil || len(entities) == 0 {
		return nil, errors.Wrap(err, "unable to re-read generated key pair")
	}
	entity = entities[0]

	if err = entity.PrivateKey.Encrypt([]byte(passphrase)); err != nil {
		return nil, errors.Wrap(err, "unable to encrypt private key")
	}
	for _, subkey := range entity.Subkeys {
		if subkey.PrivateKey != nil {
			if err = subkey.PrivateKey.Encrypt([]byte(passphrase)); err != nil {
				return nil, errors.Wrap(err, "unable to encrypt subkey")
			}
		}
	}

	private := &bytes.Buffer{}
	w, err := armor.Encode(private, openpgp.PrivateKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err = entity.SerializePrivateWithoutSigning(w, config); err != nil {
		return nil, errors.Wrap(err, "unable to export private key")
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	public := &bytes.Buffer{}
	w, err = armor.Encode(public, openpgp.PublicKeyType, nil)
	if err != nil {
		return nil, err
	}
	if err = entity.Serialize(w); err != nil {
		return nil, errors.Wrap(err, "unable to export public key")
	}
	if err = w.Close(); err != nil {
		return nil, err
	}

	return &Key{
		Private:     append(private.Bytes(), '\n'),
		Public:      append(public.Bytes(), '\n'),
		Passphrase:  passphrase,
		Fingerprint: fmt.Sprintf("%X", entity.PrimaryKey.Fingerprint),
	}, nil
}

// Check interfaces
var (
	_ Signer       = GoSigner{}
	_ KeyGenerator = GoKeyGenerator{}
)
