package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/repository"
)

var (
	// ErrUserNotFound indicates the user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrAdminNotFound indicates the admin does not exist.
	ErrAdminNotFound = errors.New("admin not found")
)

// LoadPrincipal reads a principal of the given kind.
func LoadPrincipal(ctx context.Context, q port.Queries, kind domain.PrincipalKind, id uuid.UUID) (domain.Principal, error) {
	switch kind {
	case domain.PrincipalUser:
		user, err := q.Users().Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Principal{}, ErrUserNotFound
		}
		if err != nil {
			return domain.Principal{}, fmt.Errorf("load user: %w", err)
		}
		return domain.Principal{User: user}, nil
	case domain.PrincipalAdmin:
		admin, err := q.Admins().Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Principal{}, ErrAdminNotFound
		}
		if err != nil {
			return domain.Principal{}, fmt.Errorf("load admin: %w", err)
		}
		return domain.Principal{Admin: admin}, nil
	default:
		return domain.Principal{}, fmt.Errorf("unknown principal kind %q", kind)
	}
}

// SaveIdentity replaces the principal's identity attributes and persists it.
func SaveIdentity(ctx context.Context, q port.Queries, p domain.Principal, identity domain.Identity) (domain.Principal, error) {
	switch {
	case p.User != nil:
		user := *p.User
		user.Identity = identity
		if err := q.Users().Update(ctx, user); err != nil {
			return domain.Principal{}, fmt.Errorf("update user: %w", err)
		}
		return domain.Principal{User: &user}, nil
	case p.Admin != nil:
		admin := *p.Admin
		admin.Identity = identity
		if err := q.Admins().Update(ctx, admin); err != nil {
			return domain.Principal{}, fmt.Errorf("update admin: %w", err)
		}
		return domain.Principal{Admin: &admin}, nil
	default:
		return domain.Principal{}, fmt.Errorf("save identity: anonymous principal")
	}
}

// EmailOwned reports whether any principal owns email.
func EmailOwned(ctx context.Context, q port.Queries, email string) (bool, error) {
	if _, err := q.Users().GetByEmail(ctx, email); err == nil {
		return true, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, fmt.Errorf("lookup user email: %w", err)
	}
	if _, err := q.Admins().GetByEmail(ctx, email); err == nil {
		return true, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, fmt.Errorf("lookup admin email: %w", err)
	}
	return false, nil
}
