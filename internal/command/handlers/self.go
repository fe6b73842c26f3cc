package handlers

import (
	"context"
	"fmt"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/infra/logger"
	"github.com/arklim/identity-server/internal/policy"
	"github.com/arklim/identity-server/internal/usecase"
)

func (h *Handlers) registerSelf(catalog command.Catalog) {
	catalog.Register(TagUserSelf, command.UserOnly, typed(h.userSelf))
	catalog.Register(TagUserEmailAddBegin, command.UserOnly, typed(h.beginUserEmailAdd))
	catalog.Register(TagUserEmailRemoveBegin, command.UserOnly, typed(h.beginUserEmailRemove))
	catalog.Register(TagUserRealNameUpdate, command.UserOnly, typed(h.updateRealName))
	catalog.Register(TagUserPasswordUpdate, command.UserOnly, typed(h.updateOwnPassword))
	catalog.Register(TagUserLoginHistory, command.UserOnly, typed(h.ownLoginHistory))
}

func (h *Handlers) userSelf(_ context.Context, c *command.Context, _ UserSelf) (any, error) {
	user := c.Principal.User
	if err := authorize(policy.ReadUser{Actor: c.Principal, Target: user.ID}); err != nil {
		return nil, err
	}
	return userView(*user), nil
}

func (h *Handlers) beginUserEmailAdd(ctx context.Context, c *command.Context, cmd UserEmailAddBegin) (any, error) {
	if cmd.Email == "" {
		return nil, missing("email")
	}
	if err := authorize(policy.AddUserEmail{Actor: c.Principal, Target: c.Principal.ID()}); err != nil {
		return nil, err
	}
	challenge, err := h.deps.Challenges.BeginEmailAdd(ctx, c.Queries, h.challengeRequest(c, cmd.Email))
	if err != nil {
		return nil, err
	}
	if err := audit(ctx, c, domain.AuditEmailChallengeCreated, fmt.Sprintf("%s %s requested", challenge.Operation, logger.MaskEmail(challenge.Email))); err != nil {
		return nil, err
	}
	return challengeView(challenge), nil
}

func (h *Handlers) beginUserEmailRemove(ctx context.Context, c *command.Context, cmd UserEmailRemoveBegin) (any, error) {
	if cmd.Email == "" {
		return nil, missing("email")
	}
	if err := authorize(policy.RemoveUserEmail{Actor: c.Principal, Target: c.Principal.Identity(), Email: cmd.Email}); err != nil {
		return nil, err
	}
	challenge, err := h.deps.Challenges.BeginEmailRemove(ctx, c.Queries, h.challengeRequest(c, cmd.Email))
	if err != nil {
		return nil, err
	}
	if err := audit(ctx, c, domain.AuditEmailChallengeCreated, fmt.Sprintf("%s %s requested", challenge.Operation, logger.MaskEmail(challenge.Email))); err != nil {
		return nil, err
	}
	return challengeView(challenge), nil
}

func (h *Handlers) challengeRequest(c *command.Context, email string) usecase.ChallengeRequest {
	return usecase.ChallengeRequest{
		Owner:         c.Principal,
		Email:         email,
		RequestID:     c.RequestID,
		RemoteAddress: c.RemoteAddress,
		UserAgent:     c.UserAgent,
	}
}

func (h *Handlers) updateRealName(ctx context.Context, c *command.Context, cmd UserRealNameUpdate) (any, error) {
	realName, err := validRealName(cmd.RealName)
	if err != nil {
		return nil, err
	}
	user := *c.Principal.User
	if err := authorize(policy.UpdateUser{Actor: c.Principal, Target: user.ID}); err != nil {
		return nil, err
	}
	user.RealName = realName
	user.UpdatedAt = c.Now()
	if err := c.Queries.Users().Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if err := audit(ctx, c, domain.AuditUserUpdated, "real name changed"); err != nil {
		return nil, err
	}
	return userView(user), nil
}

func (h *Handlers) updateOwnPassword(ctx context.Context, c *command.Context, cmd UserPasswordUpdate) (any, error) {
	if cmd.Current == "" {
		return nil, missing("current")
	}
	if cmd.Password == "" {
		return nil, missing("password")
	}
	if cmd.Password != cmd.Confirmation {
		return nil, usecase.ErrPasswordResetMismatch
	}
	user := *c.Principal.User
	if err := authorize(policy.WriteUserCredentials{Actor: c.Principal, Target: user.ID}); err != nil {
		return nil, err
	}

	ok, err := h.deps.Hasher.Verify(cmd.Current, user.Password)
	if err != nil || !ok {
		return nil, domain.Fail(domain.ErrAuthentication, "current password is incorrect")
	}
	credential, err := h.deps.Credentials.Derive(user.Identity, cmd.Password)
	if err != nil {
		return nil, err
	}
	user.Password = credential
	user.UpdatedAt = c.Now()
	if err := c.Queries.Users().Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if err := audit(ctx, c, domain.AuditUserPasswordChanged, "password changed"); err != nil {
		return nil, err
	}
	return MessageView{Message: "password updated"}, nil
}

func (h *Handlers) ownLoginHistory(ctx context.Context, c *command.Context, cmd UserLoginHistory) (any, error) {
	if cmd.Limit < 0 {
		return nil, invalid("limit must not be negative")
	}
	if err := authorize(policy.ReadLoginHistory{Actor: c.Principal, Target: c.Principal.ID()}); err != nil {
		return nil, err
	}
	records, err := c.Queries.LoginRecords().List(ctx, c.Principal.ID(), domain.ClampLimit(cmd.Limit))
	if err != nil {
		return nil, fmt.Errorf("list logins: %w", err)
	}
	return loginRecordViews(records), nil
}
