package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	uuid "github.com/google/uuid"
)

// ErrKeyNotFound is returned for an unknown kid.
var ErrKeyNotFound = errors.New("key not found")

// KeyProvider defines the interface for providing cryptographic keys.
type KeyProvider interface {
	GetSigningKey() (*rsa.PrivateKey, error)
	SigningKeyID() string
	GetVerificationKey(kid string) (*rsa.PublicKey, error)
	ListVerificationKeys() map[string]*rsa.PublicKey
}

// FileKeyProvider reads PEM encoded RSA keys from a directory. The file name without
// extension is the kid; the lexically first private key signs.
type FileKeyProvider struct {
	keys       map[string]*rsa.PublicKey
	signingKey *rsa.PrivateKey
	signingKID string
}

// NewFileKeyProvider loads every key file in keyDir.
func NewFileKeyProvider(keyDir string) (*FileKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	provider := &FileKeyProvider{
		keys: make(map[string]*rsa.PublicKey),
	}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
		}

		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("failed to decode PEM block from %s", path)
		}

		// Try PKCS#1 format (RSA PRIVATE KEY)
		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
			if provider.signingKey == nil {
				provider.signingKey = key
				provider.signingKID = kid
			}
			provider.keys[kid] = &key.PublicKey
			continue
		}

		// Try PKCS#8 format (PRIVATE KEY)
		if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			if rsaKey, ok := key.(*rsa.PrivateKey); ok {
				kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
				if provider.signingKey == nil {
					provider.signingKey = rsaKey
					provider.signingKID = kid
				}
				provider.keys[kid] = &rsaKey.PublicKey
				continue
			}
		}

		// Try to parse as public key (PKCS#1)
		if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
			kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
			provider.keys[kid] = key
			continue
		}

		// Try to parse as public key (PKIX/X.509)
		if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
			if rsaKey, ok := key.(*rsa.PublicKey); ok {
				kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
				provider.keys[kid] = rsaKey
				continue
			}
		}

		return nil, fmt.Errorf("failed to parse key from file %s", path)
	}

	if provider.signingKey == nil {
		return nil, errors.New("no private key found for signing")
	}

	return provider, nil
}

// GetSigningKey returns the private key for signing tokens.
func (p *FileKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	return p.signingKey, nil
}

// SigningKeyID returns the kid stamped on issued tokens.
func (p *FileKeyProvider) SigningKeyID() string {
	return p.signingKID
}

// GetVerificationKey returns the public key for verifying tokens.
func (p *FileKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

// ListVerificationKeys returns every public key known to the provider.
func (p *FileKeyProvider) ListVerificationKeys() map[string]*rsa.PublicKey {
	out := make(map[string]*rsa.PublicKey, len(p.keys))
	for kid, key := range p.keys {
		out[kid] = key
	}
	return out
}

// EphemeralKeyProvider holds a single key generated at startup. Tokens do not
// survive a restart.
type EphemeralKeyProvider struct {
	key *rsa.PrivateKey
	kid string
}

// NewEphemeralKeyProvider generates a fresh RSA key.
func NewEphemeralKeyProvider(bits int) (*EphemeralKeyProvider, error) {
	if bits < 2048 {
		bits = 2048
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return &EphemeralKeyProvider{key: key, kid: "ephemeral-" + uuid.NewString()[:8]}, nil
}

// GetSigningKey returns the generated key.
func (p *EphemeralKeyProvider) GetSigningKey() (*rsa.PrivateKey, error) {
	return p.key, nil
}

// SigningKeyID returns the generated kid.
func (p *EphemeralKeyProvider) SigningKeyID() string {
	return p.kid
}

// GetVerificationKey resolves the generated kid only.
func (p *EphemeralKeyProvider) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	if kid != p.kid {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return &p.key.PublicKey, nil
}

// ListVerificationKeys returns the generated public key.
func (p *EphemeralKeyProvider) ListVerificationKeys() map[string]*rsa.PublicKey {
	return map[string]*rsa.PublicKey{p.kid: &p.key.PublicKey}
}

// NewKeyProvider loads keys from keyDir, or generates an ephemeral key when keyDir
// is empty and the environment is not production.
func NewKeyProvider(env, keyDir string) (KeyProvider, error) {
	if strings.TrimSpace(keyDir) != "" {
		return NewFileKeyProvider(keyDir)
	}
	if env == "production" {
		return nil, errors.New("jwt key directory is required in production")
	}
	return NewEphemeralKeyProvider(2048)
}
