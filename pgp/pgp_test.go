package pgp

import (
	"bytes"
	"os"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	. "gopkg.in/check.v1"
)

// Launch gocheck tests
func Test(t *testing.T) {
	TestingT(t)
}

type KeyringSuite struct{}

var _ = Suite(&KeyringSuite{})

func (s *KeyringSuite) TestLifecycle(c *C) {
	keyring, err := NewKeyringDir()
	c.Assert(err, IsNil)

	st, err := os.Stat(keyring.Dir)
	c.Assert(err, IsNil)
	c.Check(st.Mode().Perm(), Equals, os.FileMode(0700))

	path, err := keyring.WriteFile("private.asc", []byte("key material"), 0600)
	c.Assert(err, IsNil)
	contents, err := os.ReadFile(path)
	c.Assert(err, IsNil)
	c.Check(string(contents), Equals, "key material")

	c.Assert(keyring.Close(), IsNil)
	_, err = os.Stat(keyring.Dir)
	c.Check(os.IsNotExist(err), Equals, true)
}

func (s *KeyringSuite) TestTeardownOnError(c *C) {
	var dir string
	err := withKeyring(func(k *KeyringDir) error {
		dir = k.Dir
		return os.ErrClosed
	})
	c.Check(err, Equals, os.ErrClosed)
	_, err = os.Stat(dir)
	c.Check(os.IsNotExist(err), Equals, true)
}

type NativeSuite struct {
	key *Key
}

var _ = Suite(&NativeSuite{})

func (s *NativeSuite) SetUpSuite(c *C) {
	var err error
	s.key, err = GoKeyGenerator{}.Generate(KeyParams{Bits: 2048, Name: "Test Repository"})
	c.Assert(err, IsNil)
}

func (s *NativeSuite) publicKeyring(c *C) openpgp.EntityList {
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(s.key.Public))
	c.Assert(err, IsNil)
	return keyring
}

func (s *NativeSuite) TestGenerate(c *C) {
	c.Check(bytes.Contains(s.key.Private, []byte("BEGIN PGP PRIVATE KEY BLOCK")), Equals, true)
	c.Check(bytes.Contains(s.key.Public, []byte("BEGIN PGP PUBLIC KEY BLOCK")), Equals, true)
	c.Check(s.key.Passphrase, Not(Equals), "")
	c.Check(s.key.Fingerprint, Matches, "[0-9A-F]{40}")

	// passphrases are random per key
	other, err := GoKeyGenerator{}.Generate(KeyParams{Bits: 2048})
	c.Assert(err, IsNil)
	c.Check(other.Passphrase, Not(Equals), s.key.Passphrase)
	c.Check(other.Fingerprint, Not(Equals), s.key.Fingerprint)

	// the exported private half is passphrase-protected
	entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(s.key.Private))
	c.Assert(err, IsNil)
	c.Assert(entities, HasLen, 1)
	c.Check(entities[0].PrivateKey.Encrypted, Equals, true)
}

func (s *NativeSuite) TestSignDetached(c *C) {
	content := []byte("Origin: Test\nCodename: bookworm\n")

	signature, err := GoSigner{}.Sign(s.key, content, true)
	c.Assert(err, IsNil)
	c.Check(bytes.Contains(signature, []byte("BEGIN PGP SIGNATURE")), Equals, true)

	signer, err := openpgp.CheckArmoredDetachedSignature(
		s.publicKeyring(c), bytes.NewReader(content), bytes.NewReader(signature), nil)
	c.Assert(err, IsNil)
	c.Check(signer, NotNil)
}

func (s *NativeSuite) TestSignCleartext(c *C) {
	content := []byte("Origin: Test\nCodename: bookworm\n")

	signed, err := GoSigner{}.Sign(s.key, content, false)
	c.Assert(err, IsNil)
	c.Check(bytes.Contains(signed, []byte("BEGIN PGP SIGNED MESSAGE")), Equals, true)

	block, _ := clearsign.Decode(signed)
	c.Assert(block, NotNil)

	_, err = openpgp.CheckDetachedSignature(
		s.publicKeyring(c), bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil)
	c.Assert(err, IsNil)
}

func (s *NativeSuite) TestSignNoKey(c *C) {
	_, err := GoSigner{}.Sign(nil, []byte("content"), true)
	c.Check(err, Equals, ErrNoKey)
}

func (s *NativeSuite) TestSignWrongPassphrase(c *C) {
	broken := &Key{
		Private:    s.key.Private,
		Public:     s.key.Public,
		Passphrase: "not the passphrase",
	}
	_, err := GoSigner{}.Sign(broken, []byte("content"), true)
	c.Check(err, ErrorMatches, "unable to decrypt private key.*")
}

func (s *NativeSuite) TestRandomPassphrase(c *C) {
	first, err := RandomPassphrase()
	c.Assert(err, IsNil)
	second, err := RandomPassphrase()
	c.Assert(err, IsNil)

	c.Check(len(first) > 32, Equals, true)
	c.Check(first, Not(Equals), second)
}

func (s *NativeSuite) TestKeyParamsDefaults(c *C) {
	params := KeyParams{}.WithDefaults()
	c.Check(params.Bits, Equals, 4096)
	c.Check(params.Name, Not(Equals), "")
	c.Check(params.Email, Not(Equals), "")

	params = KeyParams{Bits: 2048, Name: "Custom"}.WithDefaults()
	c.Check(params.Bits, Equals, 2048)
	c.Check(params.Name, Equals, "Custom")
}
