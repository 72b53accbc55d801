package pgp

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// FindGPG locates a GnuPG 2.x executable in $PATH
func FindGPG() (string, error) {
	for _, cmd := range []string{"gpg", "gpg2"} {
		output, err := exec.Command(cmd, "--version").CombinedOutput()
		if err == nil && strings.Contains(string(output), "(GnuPG) 2.") {
			return cmd, nil
		}
	}
	return "", errors.New("couldn't find a suitable gpg executable, make sure gnupg2 is available in $PATH")
}

// GpgSigner signs content by shelling out to gpg with an ephemeral
// keyring as its home directory.
type GpgSigner struct {
	gpg string
}

// NewGpgSigner creates a signer around a discovered gpg executable
func NewGpgSigner() (*GpgSigner, error) {
	gpg, err := FindGPG()
	if err != nil {
		return nil, err
	}
	return &GpgSigner{gpg: gpg}, nil
}

func (g *GpgSigner) run(keyring *KeyringDir, stdin []byte, args ...string) ([]byte, error) {
	baseArgs := []string{"--homedir", keyring.Dir, "--batch", "--no-tty"}
	cmd := exec.Command(g.gpg, append(baseArgs, args...)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s exited with %s: %s", g.gpg, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (g *GpgSigner) importKey(keyring *KeyringDir, key *Key) (passphraseFile string, err error) {
	privatePath, err := keyring.WriteFile("private.asc", key.Private, 0600)
	if err != nil {
		return "", err
	}
	publicPath, err := keyring.WriteFile("public.asc", key.Public, 0600)
	if err != nil {
		return "", err
	}
	passphraseFile, err = keyring.WriteFile("passphrase", []byte(key.Passphrase), 0600)
	if err != nil {
		return "", err
	}

	if _, err = g.run(keyring, nil, "--import", privatePath, publicPath); err != nil {
		return "", err
	}
	return passphraseFile, nil
}

// Sign implements Signer via the external gpg executable
func (g *GpgSigner) Sign(key *Key, content []byte, detached bool) (signature []byte, err error) {
	if key == nil {
		return nil, ErrNoKey
	}

	err = withKeyring(func(keyring *KeyringDir) error {
		passphraseFile, err := g.importKey(keyring, key)
		if err != nil {
			return err
		}

		mode := "--clearsign"
		if detached {
			mode = "--detach-sign"
		}

		signature, err = g.run(keyring, content,
			"--pinentry-mode", "loopback",
			"--passphrase-file", passphraseFile,
			"--digest-algo", "SHA256",
			"--armor", "-o", "-", mode)
		return err
	})
	return signature, err
}

// shellEscape single-quotes s for inclusion in a sh script
func shellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// GpgKeyGenerator generates key pairs by shelling out to gpg inside an
// ephemeral keyring.
type GpgKeyGenerator struct {
	gpg string
}

// NewGpgKeyGenerator creates a generator around a discovered gpg
// executable.
func NewGpgKeyGenerator() (*GpgKeyGenerator, error) {
	gpg, err := FindGPG()
	if err != nil {
		return nil, err
	}
	return &GpgKeyGenerator{gpg: gpg}, nil
}

func batchParams(params KeyParams) string {
	var b strings.Builder
	b.WriteString("Key-Type: RSA\n")
	fmt.Fprintf(&b, "Key-Length: %d\n", params.Bits)
	b.WriteString("Key-Usage: sign\n")
	fmt.Fprintf(&b, "Name-Real: %s\n", params.Name)
	if params.Comment != "" {
		fmt.Fprintf(&b, "Name-Comment: %s\n", params.Comment)
	}
	fmt.Fprintf(&b, "Name-Email: %s\n", params.Email)
	if params.Expiry > 0 {
		fmt.Fprintf(&b, "Expire-Date: seconds=%d\n", int64(params.Expiry.Seconds()))
	} else {
		b.WriteString("Expire-Date: 0\n")
	}
	b.WriteString("%commit\n")
	return b.String()
}

// Generate implements KeyGenerator via gpg --batch --gen-key. The
// passphrase is answered by a scripted pinentry placed inside the
// ephemeral keyring, so generation never prompts.
func (g *GpgKeyGenerator) Generate(params KeyParams) (*Key, error) {
	params = params.WithDefaults()

	passphrase := params.Passphrase
	if passphrase == "" {
		var err error
		if passphrase, err = RandomPassphrase(); err != nil {
			return nil, err
		}
	}

	result := &Key{Passphrase: passphrase}

	err := withKeyring(func(keyring *KeyringDir) error {
		pinentry := "#!/bin/sh\n" +
			"echo OK\n" +
			"while read cmd; do\n" +
			"  case \"$cmd\" in\n" +
			"    GETPIN) echo D " + shellEscape(passphrase) + "; echo OK;;\n" +
			"    BYE) exit 0;;\n" +
			"    *) echo OK;;\n" +
			"  esac\n" +
			"done\n"
		pinentryPath, err := keyring.WriteFile("pinentry.sh", []byte(pinentry), 0700)
		if err != nil {
			return err
		}
		if _, err = keyring.WriteFile("gpg-agent.conf",
			[]byte("pinentry-program "+pinentryPath+"\nallow-loopback-pinentry\n"), 0600); err != nil {
			return err
		}
		passphraseFile, err := keyring.WriteFile("passphrase", []byte(passphrase), 0600)
		if err != nil {
			return err
		}
		paramsPath, err := keyring.WriteFile("gen-key-params", []byte(batchParams(params)), 0600)
		if err != nil {
			return err
		}

		signer := &GpgSigner{gpg: g.gpg}
		if _, err = signer.run(keyring, nil,
			"--pinentry-mode", "loopback",
			"--passphrase-file", passphraseFile,
			"--gen-key", paramsPath); err != nil {
			return err
		}

		if result.Public, err = signer.run(keyring, nil, "--armor", "--export"); err != nil {
			return err
		}
		if result.Private, err = signer.run(keyring, nil,
			"--pinentry-mode", "loopback",
			"--passphrase-file", passphraseFile,
			"--armor", "--export-secret-keys"); err != nil {
			return err
		}

		entities, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(result.Public))
		if err != nil || len(entities) == 0 {
			return fmt.Errorf("unable to read back generated key: %s", err)
		}
		result.Fingerprint = fmt.Sprintf("%X", entities[0].PrimaryKey.Fingerprint)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Check interfaces
var (
	_ Signer       = &GpgSigner{}
	_ KeyGenerator = &GpgKeyGenerator{}
)
