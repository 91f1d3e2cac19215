package remote

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

const keyComment = "kvmigrate"

// KeyManager generates and locates the ed25519 identity used to reach
// hypervisor hosts. Keys live in {dataDir}/ssh/.
type KeyManager struct {
	dataDir string
}

// NewKeyManager creates a key manager rooted at dataDir.
func NewKeyManager(dataDir string) *KeyManager {
	return &KeyManager{dataDir: dataDir}
}

func (m *KeyManager) sshDir() string {
	return filepath.Join(m.dataDir, "ssh")
}

func (m *KeyManager) privateKeyPath() string {
	return filepath.Join(m.sshDir(), "id_ed25519")
}

func (m *KeyManager) publicKeyPath() string {
	return m.privateKeyPath() + ".pub"
}

// EnsureKeyPair generates a key pair unless one already exists and returns
// the private and public key paths.
func (m *KeyManager) EnsureKeyPair() (privateKeyPath, publicKeyPath string, err error) {
	privPath := m.privateKeyPath()
	pubPath := m.publicKeyPath()

	if m.KeyPairExists() {
		return privPath, pubPath, nil
	}

	if err := os.MkdirAll(m.sshDir(), 0700); err != nil {
		return "", "", errors.Wrap(err, "create ssh directory")
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", errors.Wrap(err, "generate ed25519 key")
	}

	pemBlock, err := ssh.MarshalPrivateKey(privKey, keyComment)
	if err != nil {
		return "", "", errors.Wrap(err, "marshal private key")
	}
	if err := os.WriteFile(privPath, pem.EncodeToMemory(pemBlock), 0600); err != nil {
		return "", "", errors.Wrap(err, "write private key")
	}

	sshPubKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		os.Remove(privPath)
		return "", "", errors.Wrap(err, "convert public key")
	}
	line := strings.TrimSuffix(string(ssh.MarshalAuthorizedKey(sshPubKey)), "\n") + " " + keyComment + "\n"
	if err := os.WriteFile(pubPath, []byte(line), 0644); err != nil {
		os.Remove(privPath)
		return "", "", errors.Wrap(err, "write public key")
	}

	return privPath, pubPath, nil
}

// KeyPairExists returns true if both halves of the key pair exist.
func (m *KeyManager) KeyPairExists() bool {
	_, privErr := os.Stat(m.privateKeyPath())
	_, pubErr := os.Stat(m.publicKeyPath())
	return privErr == nil && pubErr == nil
}

// PrivateKeyPath returns the private key path, or an error if the key was
// never generated.
func (m *KeyManager) PrivateKeyPath() (string, error) {
	path := m.privateKeyPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", errors.New("SSH key not generated; run 'kvmigrate keygen' first")
		}
		return "", err
	}
	return path, nil
}

// AuthorizedKey returns the public key line for authorized_keys on a host.
func (m *KeyManager) AuthorizedKey() (string, error) {
	content, err := os.ReadFile(m.publicKeyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New("SSH key not generated; run 'kvmigrate keygen' first")
		}
		return "", err
	}
	return string(content), nil
}
