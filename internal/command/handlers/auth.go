package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/infra/security"
	"github.com/arklim/identity-server/internal/usecase"
)

const resetAcknowledgement = "if the address belongs to an account, a reset link has been sent"

func (h *Handlers) registerAuth(catalog command.Catalog) {
	catalog.Register(TagUserLogin, command.Anonymous, typed(func(ctx context.Context, c *command.Context, cmd UserLogin) (any, error) {
		return h.login(ctx, c, domain.PrincipalUser, cmd.Credentials)
	}), command.WithDelay(h.deps.LoginDelay))
	catalog.Register(TagAdminLogin, command.Anonymous, typed(func(ctx context.Context, c *command.Context, cmd AdminLogin) (any, error) {
		return h.login(ctx, c, domain.PrincipalAdmin, cmd.Credentials)
	}), command.WithDelay(h.deps.LoginDelay))
	catalog.Register(TagPasswordResetBegin, command.Anonymous, typed(h.beginPasswordReset))
	catalog.Register(TagPasswordResetConfirm, command.Anonymous, typed(h.confirmPasswordReset))
	catalog.Register(TagEmailPermit, command.Anonymous, typed(h.permitEmail))
	catalog.Register(TagEmailDeny, command.Anonymous, typed(h.denyEmail))
}

func (h *Handlers) login(ctx context.Context, c *command.Context, kind domain.PrincipalKind, in Credentials) (any, error) {
	principal, err := h.deps.Admission.Login(ctx, c.Queries, usecase.LoginInput{
		Kind:          kind,
		Name:          in.Name,
		Password:      in.Password,
		RemoteAddress: c.RemoteAddress,
		UserAgent:     c.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	token, claims, err := h.deps.Tokens.Issue(security.AccessTokenOptions{
		PrincipalID: principal.ID().String(),
		Kind:        string(kind),
		SessionID:   uuid.NewString(),
		Issuer:      h.deps.Token.Issuer,
		Audience:    h.deps.Token.Audience,
		TTL:         h.deps.Token.TTL,
		IssuedAt:    c.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	eventType := domain.AuditUserLoggedIn
	if kind == domain.PrincipalAdmin {
		eventType = domain.AuditAdminLoggedIn
	}
	message := fmt.Sprintf("%s logged in from %s", principal.Identity().Name, c.RemoteAddress)
	if err := c.Audit(ctx, principal.ID(), eventType, message); err != nil {
		return nil, err
	}

	return LoginView{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
		Kind:        string(kind),
		PrincipalID: principal.ID(),
	}, nil
}

func (h *Handlers) beginPasswordReset(ctx context.Context, c *command.Context, cmd PasswordResetBegin) (any, error) {
	if strings.TrimSpace(cmd.Email) == "" {
		return nil, missing("email")
	}
	reset, err := h.deps.Resets.Begin(ctx, c.Queries, usecase.PasswordResetRequest{
		Email:         cmd.Email,
		RequestID:     c.RequestID,
		RemoteAddress: c.RemoteAddress,
		UserAgent:     c.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	if reset != nil {
		if err := c.Audit(ctx, reset.UserID, domain.AuditUserPasswordResetSent, "password reset requested from "+c.RemoteAddress); err != nil {
			return nil, err
		}
	}
	return MessageView{Message: resetAcknowledgement}, nil
}

func (h *Handlers) confirmPasswordReset(ctx context.Context, c *command.Context, cmd PasswordResetConfirm) (any, error) {
	if cmd.Password == "" {
		return nil, missing("password")
	}
	user, err := h.deps.Resets.Confirm(ctx, c.Queries, usecase.PasswordResetConfirmation{
		Token:        cmd.Token,
		Password:     cmd.Password,
		Confirmation: cmd.Confirmation,
	})
	if err != nil {
		return nil, err
	}
	if err := c.Audit(ctx, user.ID, domain.AuditUserPasswordReset, "password reset completed"); err != nil {
		return nil, err
	}
	return MessageView{Message: "password updated"}, nil
}

func (h *Handlers) permitEmail(ctx context.Context, c *command.Context, cmd EmailPermit) (any, error) {
	if strings.TrimSpace(cmd.Token) == "" {
		return nil, missing("token")
	}
	op, err := parseOperation(cmd.Operation)
	if err != nil {
		return nil, err
	}
	challenge, err := h.deps.Challenges.Permit(ctx, c.Queries, cmd.Token, op)
	if err != nil {
		return nil, err
	}
	message := fmt.Sprintf("%s %s permitted", challenge.Operation, challenge.Email)
	if err := c.Audit(ctx, challenge.OwnerID, domain.AuditEmailChallengePermit, message); err != nil {
		return nil, err
	}
	return challengeView(challenge), nil
}

func (h *Handlers) denyEmail(ctx context.Context, c *command.Context, cmd EmailDeny) (any, error) {
	if strings.TrimSpace(cmd.Token) == "" {
		return nil, missing("token")
	}
	challenge, err := h.deps.Challenges.Deny(ctx, c.Queries, cmd.Token)
	if err != nil {
		return nil, err
	}
	message := fmt.Sprintf("%s %s denied", challenge.Operation, challenge.Email)
	if err := c.Audit(ctx, challenge.OwnerID, domain.AuditEmailChallengeDeny, message); err != nil {
		return nil, err
	}
	return challengeView(challenge), nil
}

func parseOperation(raw string) (domain.EmailOperation, error) {
	op := domain.EmailOperation(strings.ToUpper(strings.TrimSpace(raw)))
	switch op {
	case "":
		return "", missing("operation")
	case domain.EmailOperationAdd, domain.EmailOperationRemove:
		return op, nil
	default:
		return "", invalid("unknown email operation %q", raw)
	}
}
