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

func (h *Handlers) registerUsers(catalog command.Catalog) {
	catalog.Register(TagUserCreate, command.AdminOnly, typed(h.createUser))
	catalog.Register(TagUserGet, command.AdminOnly, typed(h.getUser))
	catalog.Register(TagUserDelete, command.AdminOnly, typed(h.deleteUser))
	catalog.Register(TagUserUpdate, command.AdminOnly, typed(h.updateUser))
	catalog.Register(TagUserLoginHistoryGet, command.AdminOnly, typed(h.userLoginHistory))

	catalog.Register(TagUserEmailAdd, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, cmd UserEmailAdd) (any, error) {
		action := policy.AddUserEmail{Actor: c.Principal, Target: cmd.ID}
		return h.addEmail(ctx, c, domain.PrincipalUser, cmd.EmailTarget, action, domain.AuditUserEmailAdded)
	}))
	catalog.Register(TagUserEmailRemove, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, cmd UserEmailRemove) (any, error) {
		action := func(target domain.Identity) policy.Action {
			return policy.RemoveUserEmail{Actor: c.Principal, Target: target, Email: cmd.Email}
		}
		return h.removeEmail(ctx, c, domain.PrincipalUser, cmd.EmailTarget, action, domain.AuditUserEmailRemoved)
	}))

	catalog.Register(TagUserBanCreate, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, cmd UserBanCreate) (any, error) {
		action := policy.BanUser{Actor: c.Principal, Target: cmd.ID}
		return h.placeBan(ctx, c, domain.PrincipalUser, cmd.BanRequest, action, domain.AuditUserBanned)
	}))
	catalog.Register(TagUserBanGet, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, cmd UserBanGet) (any, error) {
		return h.getBan(ctx, c, cmd.ID, policy.ReadUserBan{Actor: c.Principal, Target: cmd.ID})
	}))
	catalog.Register(TagUserBanDelete, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, cmd UserBanDelete) (any, error) {
		return h.liftBan(ctx, c, cmd.ID, policy.UnbanUser{Actor: c.Principal, Target: cmd.ID}, domain.AuditUserUnbanned)
	}))

	catalog.Register(TagUserSearchBegin, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, cmd UserSearchBegin) (any, error) {
		params, err := principalSearch(cmd.SearchRequest)
		if err != nil {
			return nil, err
		}
		if err := authorize(policy.SearchUsers{Actor: c.Principal}); err != nil {
			return nil, err
		}
		return beginSearch(ctx, c, h.deps.Paging, pagination.KindUsers, pagination.Users(), params, userView)
	}))
	catalog.Register(TagUserSearchNext, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, _ UserSearchNext) (any, error) {
		if err := authorize(policy.SearchUsers{Actor: c.Principal}); err != nil {
			return nil, err
		}
		return stepSearch(ctx, c, h.deps.Paging, pagination.KindUsers, true, userView)
	}))
	catalog.Register(TagUserSearchPrevious, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, _ UserSearchPrevious) (any, error) {
		if err := authorize(policy.SearchUsers{Actor: c.Principal}); err != nil {
			return nil, err
		}
		return stepSearch(ctx, c, h.deps.Paging, pagination.KindUsers, false, userView)
	}))
}

func (h *Handlers) createUser(ctx context.Context, c *command.Context, cmd UserCreate) (any, error) {
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
	if err := authorize(policy.CreateUser{Actor: c.Principal}); err != nil {
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
	user := domain.User{Identity: domain.Identity{
		ID:        uuid.New(),
		Name:      name,
		RealName:  realName,
		Emails:    []string{email},
		CreatedAt: now,
		UpdatedAt: now,
	}}
	credential, err := h.deps.Credentials.Derive(user.Identity, cmd.Password)
	if err != nil {
		return nil, err
	}
	user.Password = credential
	if err := c.Queries.Users().Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if err := audit(ctx, c, domain.AuditUserCreated, "user "+user.Name+" created"); err != nil {
		return nil, err
	}
	return userView(user), nil
}

func (h *Handlers) getUser(ctx context.Context, c *command.Context, cmd UserGet) (any, error) {
	if err := requireID(cmd.ID); err != nil {
		return nil, err
	}
	if err := authorize(policy.ReadUser{Actor: c.Principal, Target: cmd.ID}); err != nil {
		return nil, err
	}
	target, err := usecase.LoadPrincipal(ctx, c.Queries, domain.PrincipalUser, cmd.ID)
	if err != nil {
		return nil, err
	}
	return userView(*target.User), nil
}

func (h *Handlers) deleteUser(ctx context.Context, c *command.Context, cmd UserDelete) (any, error) {
	if err := requireID(cmd.ID); err != nil {
		return nil, err
	}
	if err := authorize(policy.DeleteUser{Actor: c.Principal, Target: cmd.ID}); err != nil {
		return nil, err
	}
	target, err := usecase.LoadPrincipal(ctx, c.Queries, domain.PrincipalUser, cmd.ID)
	if err != nil {
		return nil, err
	}
	if err := c.Queries.Users().Delete(ctx, cmd.ID); err != nil {
		return nil, fmt.Errorf("delete user: %w", err)
	}
	if err := audit(ctx, c, domain.AuditUserDeleted, "user "+target.User.Name+" deleted"); err != nil {
		return nil, err
	}
	return userView(*target.User), nil
}

func (h *Handlers) updateUser(ctx context.Context, c *command.Context, cmd UserUpdate) (any, error) {
	if err := requireID(cmd.ID); err != nil {
		return nil, err
	}
	if cmd.Name == nil && cmd.RealName == nil && cmd.Password == nil {
		return nil, missing("name, real_name or password")
	}
	var name, realName string
	var err error
	if cmd.Name != nil {
		if name, err = validName(*cmd.Name); err != nil {
			return nil, err
		}
	}
	if cmd.RealName != nil {
		if realName, err = validRealName(*cmd.RealName); err != nil {
			return nil, err
		}
	}
	if err := authorize(policy.UpdateUser{Actor: c.Principal, Target: cmd.ID}); err != nil {
		return nil, err
	}

	target, err := usecase.LoadPrincipal(ctx, c.Queries, domain.PrincipalUser, cmd.ID)
	if err != nil {
		return nil, err
	}
	user := *target.User
	var changed []string
	if cmd.Name != nil {
		user.Name = name
		changed = append(changed, "name")
	}
	if cmd.RealName != nil {
		user.RealName = realName
		changed = append(changed, "real_name")
	}
	if cmd.Password != nil {
		credential, err := h.deps.Credentials.Derive(user.Identity, *cmd.Password)
		if err != nil {
			return nil, err
		}
		user.Password = credential
		changed = append(changed, "password")
	}
	user.UpdatedAt = c.Now()
	if err := c.Queries.Users().Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	message := fmt.Sprintf("user %s updated: %s", user.Name, strings.Join(changed, ","))
	if err := audit(ctx, c, domain.AuditUserUpdated, message); err != nil {
		return nil, err
	}
	return userView(user), nil
}

func (h *Handlers) userLoginHistory(ctx context.Context, c *command.Context, cmd UserLoginHistoryGet) (any, error) {
	if err := requireID(cmd.ID); err != nil {
		return nil, err
	}
	if cmd.Limit < 0 {
		return nil, invalid("limit must not be negative")
	}
	if err := authorize(policy.ReadLoginHistory{Actor: c.Principal, Target: cmd.ID}); err != nil {
		return nil, err
	}
	if _, err := usecase.LoadPrincipal(ctx, c.Queries, domain.PrincipalUser, cmd.ID); err != nil {
		return nil, err
	}
	records, err := c.Queries.LoginRecords().List(ctx, cmd.ID, domain.ClampLimit(cmd.Limit))
	if err != nil {
		return nil, fmt.Errorf("list logins: %w", err)
	}
	return loginRecordViews(records), nil
}
