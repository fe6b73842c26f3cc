package usecase

import (
	"errors"
	"fmt"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/security"
)

// ErrWeakPassword wraps password policy violations.
var ErrWeakPassword = errors.New("password rejected by policy")

// Credentials validates and hashes new passwords.
type Credentials struct {
	hasher    port.PasswordHasher
	validator port.PasswordValidator
}

// NewCredentials constructs a Credentials helper.
func NewCredentials(hasher port.PasswordHasher, validator port.PasswordValidator) *Credentials {
	return &Credentials{hasher: hasher, validator: validator}
}

// Derive checks password against the policy, using the identity's names and emails as
// hints, and returns the credential to store. An identity that already holds a
// credential cannot keep the same password.
func (c *Credentials) Derive(identity domain.Identity, password string) (domain.Credential, error) {
	if identity.Password.Hash != "" {
		if same, err := c.hasher.Verify(password, identity.Password); err == nil && same {
			return domain.Credential{}, fmt.Errorf("%w: %w", ErrWeakPassword, security.ReusedPassword())
		}
	}
	if c.validator != nil {
		hints := append([]string{identity.Name, identity.RealName}, identity.Emails...)
		if err := c.validator.ValidateFor(password, hints...); err != nil {
			var violation *security.PasswordViolation
			if errors.As(err, &violation) {
				return domain.Credential{}, fmt.Errorf("%w: %s", ErrWeakPassword, violation.Message)
			}
			return domain.Credential{}, fmt.Errorf("%w: %v", ErrWeakPassword, err)
		}
	}
	credential, err := c.hasher.Hash(password)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("hash password: %w", err)
	}
	return credential, nil
}
