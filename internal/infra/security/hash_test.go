package security

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/arklim/identity-server/internal/core/domain"
	"golang.org/x/crypto/argon2"
)

func newTestHasher(t *testing.T) *Argon2Hasher {
	t.Helper()
	hasher, err := NewArgon2Hasher(Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	return hasher
}

func TestArgon2HasherHashAndVerify(t *testing.T) {
	hasher := newTestHasher(t)
	password := "correct horse battery staple"

	credential, err := hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if credential.Algorithm != argon2Variant {
		t.Fatalf("unexpected algorithm: %s", credential.Algorithm)
	}

	parts := strings.Split(credential.Hash, "$")
	if len(parts) != 5 {
		t.Fatalf("unexpected hash format: %q", credential.Hash)
	}
	if parts[1] != argon2Version {
		t.Fatalf("unexpected version: %s", parts[1])
	}
	if parts[2] != "m=8192,t=1,p=1" {
		t.Fatalf("encoded hash does not reflect configured parameters: %s", parts[2])
	}

	ok, err := hasher.Verify(password, credential)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("Verify returned false for correct password")
	}

	ok, err = hasher.Verify("Tr0ub4dor&3", credential)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("Verify returned true for incorrect password")
	}
}

func TestArgon2HasherSaltsEachHash(t *testing.T) {
	hasher := newTestHasher(t)
	first, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	second, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if first.Hash == second.Hash {
		t.Fatal("expected distinct hashes for repeated password")
	}
}

func TestArgon2HasherVerifyInvalidFormat(t *testing.T) {
	hasher := newTestHasher(t)
	if _, err := hasher.Verify("password", domain.Credential{Algorithm: argon2Variant, Hash: "invalid-format"}); err == nil {
		t.Fatal("Verify expected to return error for invalid format")
	}
	if _, err := hasher.Verify("password", domain.Credential{Algorithm: "bcrypt", Hash: "$2a$10$abc"}); err == nil {
		t.Fatal("Verify expected to reject foreign algorithm")
	}
}

func TestArgon2HasherVerifyEmptyInputs(t *testing.T) {
	hasher := newTestHasher(t)
	ok, err := hasher.Verify("", domain.Credential{})
	if err != nil {
		t.Fatalf("Verify returned error for empty inputs: %v", err)
	}
	if ok {
		t.Fatal("Verify should return false for empty inputs")
	}
}

func TestArgon2HasherVerifyLegacyFormat(t *testing.T) {
	hasher := newTestHasher(t)
	password := "correct horse battery staple"
	salt := make([]byte, 16)
	for i := range salt {
		salt[i] = byte(i)
	}

	legacyHash := argon2.IDKey([]byte(password), salt, 1, 64*1024, 4, 32)
	encoded := base64.StdEncoding.EncodeToString(salt) + ":" + base64.StdEncoding.EncodeToString(legacyHash)

	ok, err := hasher.Verify(password, domain.Credential{Hash: encoded})
	if err != nil {
		t.Fatalf("Verify failed to parse legacy format: %v", err)
	}
	if !ok {
		t.Fatal("Verify did not validate legacy hash")
	}
}

func TestNewArgon2HasherRejectsWeakConfig(t *testing.T) {
	cfg := DefaultArgon2Config()
	cfg.Memory = 1024
	if _, err := NewArgon2Hasher(cfg); !errors.Is(err, errInvalidConfig) {
		t.Fatalf("expected errInvalidConfig, got %v", err)
	}
}

func TestHashTokenIsStable(t *testing.T) {
	token, err := GenerateSecureToken(32)
	if err != nil {
		t.Fatalf("GenerateSecureToken returned error: %v", err)
	}
	if HashToken(token) != HashToken(token) {
		t.Fatal("expected stable digest")
	}
	if HashToken(token) == token {
		t.Fatal("digest must differ from token")
	}
}
