package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/infra/ids"
	"github.com/arklim/identity-server/internal/repository"
)

// ErrAdminExists is returned when the bootstrap admin name is already taken.
var ErrAdminExists = errors.New("admin already exists")

// BootstrapInput describes the first administrator.
type BootstrapInput struct {
	Name     string
	RealName string
	Email    string
	Password string
}

// BootstrapAdmin creates an administrator holding every permission in its own
// transaction. It is the only way to create an admin without an acting admin.
func BootstrapAdmin(ctx context.Context, store port.Transactor, credentials *Credentials, clk clock.Clock, in BootstrapInput) (domain.Admin, error) {
	if clk == nil {
		clk = clock.Real()
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Admin{}, errors.New("admin name is required")
	}
	email, err := ParseEmail(in.Email)
	if err != nil {
		return domain.Admin{}, err
	}

	now := clk.Now().UTC()
	admin := domain.Admin{
		Identity: domain.Identity{
			ID:        ids.New(),
			Name:      name,
			RealName:  strings.TrimSpace(in.RealName),
			Emails:    []string{email},
			CreatedAt: now,
			UpdatedAt: now,
		},
		Permissions: domain.NewPermissionSet(domain.AllPermissions()...),
	}
	admin.Password, err = credentials.Derive(admin.Identity, in.Password)
	if err != nil {
		return domain.Admin{}, err
	}

	tx, err := store.Begin(ctx)
	if err != nil {
		return domain.Admin{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	var q port.Queries = tx

	if _, err := q.Admins().GetByName(ctx, name); err == nil {
		return domain.Admin{}, ErrAdminExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.Admin{}, fmt.Errorf("lookup admin: %w", err)
	}
	owned, err := EmailOwned(ctx, q, email)
	if err != nil {
		return domain.Admin{}, err
	}
	if owned {
		return domain.Admin{}, ErrEmailTaken
	}

	if err := q.Admins().Create(ctx, admin); err != nil {
		return domain.Admin{}, fmt.Errorf("create admin: %w", err)
	}
	event := domain.AuditEvent{
		ID:      ids.Sortable(now),
		ActorID: admin.ID,
		Time:    now,
		Type:    domain.AuditAdminCreated,
		Message: fmt.Sprintf("admin %s bootstrapped with every permission", admin.Name),
	}
	if err := q.Audit().Append(ctx, event); err != nil {
		return domain.Admin{}, fmt.Errorf("append audit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Admin{}, fmt.Errorf("commit: %w", err)
	}
	return admin, nil
}
