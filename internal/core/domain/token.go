package domain

import (
	"time"

	"github.com/google/uuid"
)

// EmailOperation enumerates the email ownership changes guarded by a challenge.
type EmailOperation string

const (
	EmailOperationAdd    EmailOperation = "EMAIL_ADD"
	EmailOperationRemove EmailOperation = "EMAIL_REMOVE"
)

// EmailChallenge is a pending email ownership change awaiting permit or deny.
// Only the hashes of the permit and deny tokens are persisted.
type EmailChallenge struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	OwnerKind  PrincipalKind
	Email      string
	Operation  EmailOperation
	PermitHash string
	DenyHash   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// IsExpired reports whether the challenge can no longer be resolved.
func (c EmailChallenge) IsExpired(at time.Time) bool {
	return !c.ExpiresAt.After(at)
}

// PasswordReset is an outstanding password reset request for an unauthenticated user.
type PasswordReset struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the password reset can still be redeemed.
func (r PasswordReset) IsExpired(at time.Time) bool {
	return !r.ExpiresAt.After(at)
}
