package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/core/domain"
)

// Transactor opens storage transactions.
type Transactor interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is a storage transaction. It ends with exactly one of Commit or Rollback;
// Rollback after Commit is a no-op.
type Tx interface {
	Queries
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Queries exposes the per-entity query facades bound to one transaction.
type Queries interface {
	Users() UserQueries
	Admins() AdminQueries
	Bans() BanQueries
	EmailChallenges() EmailChallengeQueries
	PasswordResets() PasswordResetQueries
	Audit() AuditQueries
	LoginRecords() LoginRecordQueries
}

// UserQueries persists users. Lookups return repository.ErrNotFound when absent.
type UserQueries interface {
	Create(ctx context.Context, user domain.User) error
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByName(ctx context.Context, name string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user domain.User) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params domain.SearchParameters, seek domain.SeekKey) ([]domain.User, error)
	Count(ctx context.Context, params domain.SearchParameters) (int64, error)
}

// AdminQueries persists admins and their permission sets.
type AdminQueries interface {
	Create(ctx context.Context, admin domain.Admin) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Admin, error)
	GetByName(ctx context.Context, name string) (*domain.Admin, error)
	GetByEmail(ctx context.Context, email string) (*domain.Admin, error)
	Update(ctx context.Context, admin domain.Admin) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params domain.SearchParameters, seek domain.SeekKey) ([]domain.Admin, error)
	Count(ctx context.Context, params domain.SearchParameters) (int64, error)
}

// BanQueries persists bans keyed by subject.
type BanQueries interface {
	Put(ctx context.Context, ban domain.Ban) error
	Get(ctx context.Context, subject uuid.UUID) (*domain.Ban, error)
	Delete(ctx context.Context, subject uuid.UUID) error
}

// EmailChallengeQueries persists email ownership challenges.
type EmailChallengeQueries interface {
	Create(ctx context.Context, challenge domain.EmailChallenge) error
	GetByPermitHash(ctx context.Context, hash string) (*domain.EmailChallenge, error)
	GetByDenyHash(ctx context.Context, hash string) (*domain.EmailChallenge, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteMatching(ctx context.Context, owner uuid.UUID, op domain.EmailOperation, email string) (int, error)
}

// PasswordResetQueries persists password reset requests.
type PasswordResetQueries interface {
	Create(ctx context.Context, reset domain.PasswordReset) error
	GetByTokenHash(ctx context.Context, hash string) (*domain.PasswordReset, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteForUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// AuditQueries appends and searches audit events.
type AuditQueries interface {
	Append(ctx context.Context, event domain.AuditEvent) error
	Search(ctx context.Context, params domain.SearchParameters, seek domain.SeekKey) ([]domain.AuditEvent, error)
	Count(ctx context.Context, params domain.SearchParameters) (int64, error)
}

// LoginRecordQueries persists login history, newest first.
type LoginRecordQueries interface {
	Append(ctx context.Context, record domain.LoginRecord, keep int) error
	List(ctx context.Context, subject uuid.UUID, limit int) ([]domain.LoginRecord, error)
}
