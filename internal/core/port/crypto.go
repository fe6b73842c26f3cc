package port

import "github.com/arklim/identity-server/internal/core/domain"

// PasswordHasher creates and verifies opaque credentials.
type PasswordHasher interface {
	Hash(password string) (domain.Credential, error)
	Verify(password string, credential domain.Credential) (bool, error)
}

// PasswordValidator enforces password strength requirements. Hints are identity
// attributes the password must not be built from.
type PasswordValidator interface {
	ValidateFor(password string, hints ...string) error
}
