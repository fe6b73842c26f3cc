package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/pagination"
	"github.com/arklim/identity-server/internal/policy"
	"github.com/arklim/identity-server/internal/usecase"
)

func (h *Handlers) registerAdmins(catalog command.Catalog) {
	catalog.Register(TagAdminSelf, command.AdminOnly, typed(h.adminSelf))
	catalog.Register(TagAdminCreate, command.AdminOnly, typed(h.createAdmin))
	catalog.Register(TagAdminGet, command.AdminOnly, typed(h.getAdmin))
	catalog.Register(TagAdminDelete, command.AdminOnly, typed(h.deleteAdmin))
	catalog.Register(TagAdminPermissionGrant, command.AdminOnly, typed(h.grantPermissions))
	catalog.Register(TagAdminPermissionRevoke, command.AdminOnly, typed(h.revokePermissions))
	catalog.Register(TagAdminPasswordUpdate, command.AdminOnly, typed(h.updateAdminPassword))

	catalog.Register(TagAdminEmailAdd, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, cmd AdminEmailAdd) (any, error) {
		action := policy.AddAdminEmail{Actor: c.Principal, Target: cmd.ID}
		return h.addEmail(ctx, c, domain.PrincipalAdmin, cmd.EmailTarget, action, domain.AuditAdminEmailAdded)
	}))
	catalog.Register(TagAdminEmailRemove, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, cmd AdminEmailRemove) (any, error) {
		action := func(target domain.Identity) policy.Action {
			return policy.RemoveAdminEmail{Actor: c.Principal, Target: target, Email: cmd.Email}
		}
		return h.removeEmail(ctx, c, domain.PrincipalAdmin, cmd.EmailTarget, action, domain.AuditAdminEmailRemoved)
	}))

	catalog.Register(TagAdminBanCreate, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, cmd AdminBanCreate) (any, error) {
		action := policy.BanAdmin{Actor: c.Principal, Target: cmd.ID}
		return h.placeBan(ctx, c, domain.PrincipalAdmin, cmd.BanRequest, action, domain.AuditAdminBanned)
	}))
	catalog.Register(TagAdminBanGet, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, cmd AdminBanGet) (any, error) {
		return h.getBan(ctx, c, cmd.ID, policy.ReadAdminBan{Actor: c.Principal, Target: cmd.ID})
	}))
	catalog.Register(TagAdminBanDelete, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, cmd AdminBanDelete) (any, error) {
		return h.liftBan(ctx, c, cmd.ID, policy.UnbanAdmin{Actor: c.Principal, Target: cmd.ID}, domain.AuditAdminUnbanned)
	}))

	catalog.Register(TagAdminSearchBegin, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, cmd AdminSearchBegin) (any, error) {
		params, err := principalSearch(cmd.SearchRequest)
		if err != nil {
			return nil, err
		}
		if err := authorize(policy.SearchAdmins{Actor: c.Principal}); err != nil {
			return nil, err
		}
		return beginSearch(ctx, c, h.deps.Paging, pagination.KindAdmins, pagination.Admins(), params, adminView)
	}))
	catalog.Register(TagAdminSearchNext, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, _ AdminSearchNext) (any, error) {
		if err := authorize(policy.SearchAdmins{Actor: c.Principal}); err != nil {
			return nil, err
		}
		return stepSearch(ctx, c, h.deps.Paging, pagination.KindAdmins, true, adminView)
	}))
	catalog.Register(TagAdminSearchPrevious, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, _ AdminSearchPrevious) (any, error) {
		if err := authorize(policy.SearchAdmins{Actor: c.Principal}); err != nil {
			return nil, err
		}
		return stepSearch(ctx, c, h.deps.Paging, pagination.KindAdmins, false, adminView)
	}))
}

func (h *Handlers) adminSelf(_ context.Context, c *command.Context, _ AdminSelf) (any, error) {
	admin := c.Principal.Admin
	if err := authorize(policy.ReadAdmin{Actor: c.Principal, Target: admin.ID}); err != nil {
		return nil, err
	}
	return adminView(*admin), nil
}

func (h *Handlers) createAdmin(ctx context.Context, c *command.Context, cmd AdminCreate) (any, error) {
	name, err := validName(cmd.Name)
	if err != nil {
		return nil, err
	}
	realName, err := validRealName(cmd.RealName)
	if err != nil {
		return nil, err
	}
	email, err := usecase.ParseEmail(cmd.Email)
	if err != nil {
		return nil, err
	}
	if cmd.Password == "" {
		return nil, missing("password")
	}
	perms, err := parsePermissions(cmd.Permissions)
	if err != nil {
		return nil, err
	}
	if err := authorize(policy.CreateAdmin{Actor: c.Principal, Permissions: perms}); err != nil {
		return nil, err
	}

	owned, err := usecase.EmailOwned(ctx, c.Queries, email)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, usecase.ErrEmailTaken
	}

	now := c.Now()
	admin := domain.Admin{
		Identity: domain.Identity{
			ID:        uuid.New(),
			Name:      name,
			RealName:  realName,
			Emails:    []string{email},
			CreatedAt: now,
			UpdatedAt: now,
		},
		Permissions: perms,
	}
	credential, err := h.deps.Credentials.Derive(admin.Identity, cmd.Password)
	if err != nil {
		return nil, err
	}
	admin.Password = credential
	if err := c.Queries.Admins().Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}

	message := fmt.Sprintf("admin %s created with [%s]", admin.Name, strings.Join(perms.Strings(), ","))
	if err := audit(ctx, c, domain.AuditAdminCreated, message); err != nil {
		return nil, err
	}
	return adminView(admin), nil
}

func (h *Handlers) getAdmin(ctx context.Context, c *command.Context, cmd AdminGet) (any, error) {
	if err := requireID(cmd.ID); err != nil {
		return nil, err
	}
	if err := authorize(policy.ReadAdmin{Actor: c.Principal, Target: cmd.ID}); err != nil {
		return nil, err
	}
	target, err := usecase.LoadPrincipal(ctx, c.Queries, domain.PrincipalAdmin, cmd.ID)
	if err != nil {
		return nil, err
	}
	return adminView(*target.Admin), nil
}

func (h *Handlers) deleteAdmin(ctx context.Context, c *command.Context, cmd AdminDelete) (any, error) {
	if err := requireID(cmd.ID); err != nil {
		return nil, err
	}
	if err := authorize(policy.DeleteAdmin{Actor: c.Principal, Target: cmd.ID}); err != nil {
		return nil, err
	}
	target, err := usecase.LoadPrincipal(ctx, c.Queries, domain.PrincipalAdmin, cmd.ID)
	if err != nil {
		return nil, err
	}
	if err := c.Queries.Admins().Delete(ctx, cmd.ID); err != nil {
		return nil, fmt.Errorf("delete admin: %w", err)
	}
	if err := audit(ctx, c, domain.AuditAdminDeleted, "admin "+target.Admin.Name+" deleted"); err != nil {
		return nil, err
	}
	return adminView(*target.Admin), nil
}

func (h *Handlers) grantPermissions(ctx context.Context, c *command.Context, cmd AdminPermissionGrant) (any, error) {
	if err := requireID(cmd.ID); err != nil {
		return nil, err
	}
	perms, err := requiredPermissions(cmd.Permissions)
	if err != nil {
		return nil, err
	}
	if err := authorize(policy.GrantAdminPermissions{Actor: c.Principal, Target: cmd.ID, Permissions: perms}); err != nil {
		return nil, err
	}
	return h.editPermissions(ctx, c, cmd.ID, perms, domain.AuditAdminPermissionGrant, domain.PermissionSet.With)
}

func (h *Handlers) revokePermissions(ctx context.Context, c *command.Context, cmd AdminPermissionRevoke) (any, error) {
	if err := requireID(cmd.ID); err != nil {
		return nil, err
	}
	perms, err := requiredPermissions(cmd.Permissions)
	if err != nil {
		return nil, err
	}
	if err := authorize(policy.RevokeAdminPermissions{Actor: c.Principal, Target: cmd.ID, Permissions: perms}); err != nil {
		return nil, err
	}
	return h.editPermissions(ctx, c, cmd.ID, perms, domain.AuditAdminPermissionRevoke, domain.PermissionSet.Without)
}

func requiredPermissions(names []string) (domain.PermissionSet, error) {
	if len(names) == 0 {
		return nil, missing("permissions")
	}
	return parsePermissions(names)
}

func (h *Handlers) editPermissions(ctx context.Context, c *command.Context, id uuid.UUID, perms domain.PermissionSet, eventType string, apply func(domain.PermissionSet, domain.Permission) domain.PermissionSet) (any, error) {
	target, err := usecase.LoadPrincipal(ctx, c.Queries, domain.PrincipalAdmin, id)
	if err != nil {
		return nil, err
	}
	admin := *target.Admin
	for _, p := range perms.Sorted() {
		admin.Permissions = apply(admin.Permissions, p)
	}
	admin.UpdatedAt = c.Now()
	if err := c.Queries.Admins().Update(ctx, admin); err != nil {
		return nil, fmt.Errorf("update admin: %w", err)
	}
	message := fmt.Sprintf("%s: [%s]", admin.Name, strings.Join(perms.Strings(), ","))
	if err := audit(ctx, c, eventType, message); err != nil {
		return nil, err
	}
	return adminView(admin), nil
}

func (h *Handlers) updateAdminPassword(ctx context.Context, c *command.Context, cmd AdminPasswordUpdate) (any, error) {
	if cmd.Password == "" {
		return nil, missing("password")
	}
	id := cmd.ID
	if id == uuid.Nil {
		id = c.Principal.ID()
	}
	if err := authorize(policy.WriteAdminCredentials{Actor: c.Principal, Target: id}); err != nil {
		return nil, err
	}
	target, err := usecase.LoadPrincipal(ctx, c.Queries, domain.PrincipalAdmin, id)
	if err != nil {
		return nil, err
	}
	admin := *target.Admin
	credential, err := h.deps.Credentials.Derive(admin.Identity, cmd.Password)
	if err != nil {
		return nil, err
	}
	admin.Password = credential
	admin.UpdatedAt = c.Now()
	if err := c.Queries.Admins().Update(ctx, admin); err != nil {
		return nil, fmt.Errorf("update admin: %w", err)
	}
	if err := audit(ctx, c, domain.AuditAdminPasswordChanged, "password changed for "+admin.Name); err != nil {
		return nil, err
	}
	return MessageView{Message: "password updated"}, nil
}
