package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/infra/logger"
	"github.com/arklim/identity-server/internal/policy"
	"github.com/arklim/identity-server/internal/repository"
	"github.com/arklim/identity-server/internal/usecase"
)

func principalView(p domain.Principal) any {
	if p.Admin != nil {
		return adminView(*p.Admin)
	}
	return userView(*p.User)
}

func requireID(id uuid.UUID) error {
	if id == uuid.Nil {
		return missing("id")
	}
	return nil
}

// addEmail attaches an address directly, without a challenge.
func (h *Handlers) addEmail(ctx context.Context, c *command.Context, kind domain.PrincipalKind, in EmailTarget, action policy.Action, eventType string) (any, error) {
	if err := requireID(in.ID); err != nil {
		return nil, err
	}
	email, err := usecase.ParseEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := authorize(action); err != nil {
		return nil, err
	}

	target, err := usecase.LoadPrincipal(ctx, c.Queries, kind, in.ID)
	if err != nil {
		return nil, err
	}
	owned, err := usecase.EmailOwned(ctx, c.Queries, email)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, usecase.ErrEmailTaken
	}

	identity := target.Identity()
	identity.Emails = append(identity.Emails, email)
	identity.UpdatedAt = c.Now()
	saved, err := usecase.SaveIdentity(ctx, c.Queries, target, identity)
	if err != nil {
		return nil, err
	}
	if err := audit(ctx, c, eventType, fmt.Sprintf("%s added to %s", logger.MaskEmail(email), identity.Name)); err != nil {
		return nil, err
	}
	return principalView(saved), nil
}

// removeEmail detaches an address. The target is read first since the decision
// depends on how many addresses it holds.
func (h *Handlers) removeEmail(ctx context.Context, c *command.Context, kind domain.PrincipalKind, in EmailTarget, action func(domain.Identity) policy.Action, eventType string) (any, error) {
	if err := requireID(in.ID); err != nil {
		return nil, err
	}
	email, err := usecase.ParseEmail(in.Email)
	if err != nil {
		return nil, err
	}

	target, err := usecase.LoadPrincipal(ctx, c.Queries, kind, in.ID)
	if err != nil {
		return nil, err
	}
	identity := target.Identity()
	if err := authorize(action(identity)); err != nil {
		return nil, err
	}
	if !identity.HasEmail(email) {
		return nil, usecase.ErrEmailNotOwned
	}

	kept := make([]string, 0, len(identity.Emails))
	for _, e := range identity.Emails {
		if !strings.EqualFold(e, email) {
			kept = append(kept, e)
		}
	}
	identity.Emails = kept
	identity.UpdatedAt = c.Now()
	saved, err := usecase.SaveIdentity(ctx, c.Queries, target, identity)
	if err != nil {
		return nil, err
	}
	if err := audit(ctx, c, eventType, fmt.Sprintf("%s removed from %s", logger.MaskEmail(email), identity.Name)); err != nil {
		return nil, err
	}
	return principalView(saved), nil
}

func (h *Handlers) placeBan(ctx context.Context, c *command.Context, kind domain.PrincipalKind, in BanRequest, action policy.Action, eventType string) (any, error) {
	if err := requireID(in.ID); err != nil {
		return nil, err
	}
	if in.Expires != nil && !in.Expires.After(c.Now()) {
		return nil, invalid("ban expiry must be in the future")
	}
	if err := authorize(action); err != nil {
		return nil, err
	}

	target, err := usecase.LoadPrincipal(ctx, c.Queries, kind, in.ID)
	if err != nil {
		return nil, err
	}
	ban := domain.Ban{SubjectID: in.ID, Reason: strings.TrimSpace(in.Reason)}
	if in.Expires != nil {
		expires := in.Expires.UTC()
		ban.Expires = &expires
	}
	if err := c.Queries.Bans().Put(ctx, ban); err != nil {
		return nil, fmt.Errorf("store ban: %w", err)
	}

	message := fmt.Sprintf("%s banned permanently", target.Identity().Name)
	if ban.Expires != nil {
		message = fmt.Sprintf("%s banned until %s", target.Identity().Name, ban.Expires.Format(time.RFC3339))
	}
	if err := audit(ctx, c, eventType, message); err != nil {
		return nil, err
	}
	return banView(ban), nil
}

func (h *Handlers) getBan(ctx context.Context, c *command.Context, id uuid.UUID, action policy.Action) (any, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	if err := authorize(action); err != nil {
		return nil, err
	}
	ban, err := loadBan(ctx, c, id)
	if err != nil {
		return nil, err
	}
	return banView(ban), nil
}

func (h *Handlers) liftBan(ctx context.Context, c *command.Context, id uuid.UUID, action policy.Action, eventType string) (any, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	if err := authorize(action); err != nil {
		return nil, err
	}
	ban, err := loadBan(ctx, c, id)
	if err != nil {
		return nil, err
	}
	if err := c.Queries.Bans().Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete ban: %w", err)
	}
	if err := audit(ctx, c, eventType, "ban lifted from "+id.String()); err != nil {
		return nil, err
	}
	return banView(ban), nil
}

func loadBan(ctx context.Context, c *command.Context, id uuid.UUID) (domain.Ban, error) {
	ban, err := c.Queries.Bans().Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Ban{}, ErrBanNotFound
	}
	if err != nil {
		return domain.Ban{}, fmt.Errorf("load ban: %w", err)
	}
	return *ban, nil
}
