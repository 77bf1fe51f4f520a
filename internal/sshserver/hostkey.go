package sshserver

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

const hostKeyComment = "broadcast-chat host key"

// LoadOrGenerateSigner returns the host key stored at path. The first run
// creates it as an OpenSSH ed25519 key readable only by its owner; later
// runs reuse it so clients keep trusting the server. An empty path yields a
// throwaway key.
func LoadOrGenerateSigner(path string) (ssh.Signer, error) {
	if path == "" {
		return EphemeralSigner()
	}

	pemBytes, err := os.ReadFile(path)
	switch {
	case err == nil:
		signer, err := ssh.ParsePrivateKey(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("sshserver: parse host key %q: %w", path, err)
		}
		return signer, nil
	case errors.Is(err, os.ErrNotExist):
		return createHostKey(path)
	default:
		return nil, fmt.Errorf("sshserver: read host key: %w", err)
	}
}

// EphemeralSigner returns a host key that lives only in memory.
func EphemeralSigner() (ssh.Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("sshserver: generate host key: %w", err)
	}
	return ssh.NewSignerFromKey(priv)
}

func createHostKey(path string) (ssh.Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("sshserver: generate host key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, hostKeyComment)
	if err != nil {
		return nil, fmt.Errorf("sshserver: encode host key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("sshserver: host key dir: %w", err)
	}
	// Never overwrite a key another process wrote first.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("sshserver: create host key %q: %w", path, err)
	}
	_, err = f.Write(pem.EncodeToMemory(block))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("sshserver: write host key %q: %w", path, err)
	}

	return ssh.NewSignerFromKey(priv)
}
