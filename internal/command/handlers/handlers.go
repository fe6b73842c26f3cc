// Package handlers implements the command catalog. Every handler validates its payload,
// asks the policy engine once, then works through the transaction's query facades.
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/security"
	"github.com/arklim/identity-server/internal/pagination"
	"github.com/arklim/identity-server/internal/policy"
	"github.com/arklim/identity-server/internal/usecase"
)

const (
	maxNameLength     = 64
	maxRealNameLength = 128
)

// TokenIssuer signs access tokens for admitted principals.
type TokenIssuer interface {
	Issue(opts security.AccessTokenOptions) (string, *security.AccessTokenClaims, error)
}

// TokenSettings configures issued access tokens.
type TokenSettings struct {
	Issuer   string
	Audience []string
	TTL      time.Duration
}

// Deps bundles the collaborators shared by all handlers.
type Deps struct {
	Admission   *usecase.AdmissionController
	Challenges  *usecase.ChallengeService
	Resets      *usecase.PasswordResetService
	Credentials *usecase.Credentials
	Hasher      port.PasswordHasher
	Tokens      TokenIssuer
	Token       TokenSettings
	Paging      *pagination.Registry
	// LoginDelay holds every login response, served after the transaction ends.
	LoginDelay  time.Duration
}

// Handlers holds the command implementations.
type Handlers struct {
	deps Deps
}

// NewCatalog returns a catalog with every command registered.
func NewCatalog(deps Deps) command.Catalog {
	catalog := command.Catalog{}
	Register(catalog, deps)
	return catalog
}

// Register adds every command to catalog.
func Register(catalog command.Catalog, deps Deps) {
	h := &Handlers{deps: deps}
	h.registerAuth(catalog)
	h.registerSelf(catalog)
	h.registerAdmins(catalog)
	h.registerUsers(catalog)
	h.registerAudit(catalog)
}

// typed adapts a handler over a concrete payload type and maps its errors onto the taxonomy.
func typed[T command.Command](fn func(ctx context.Context, c *command.Context, cmd T) (any, error)) command.Handler {
	return func(ctx context.Context, c *command.Context, cmd command.Command) (command.Response, error) {
		payload, ok := cmd.(T)
		if !ok {
			return command.Response{}, domain.Failf(domain.ErrProtocol, "unexpected payload for %s", cmd.Tag())
		}
		body, err := fn(ctx, c, payload)
		if err != nil {
			return command.Response{}, translate(err)
		}
		return command.OK(body), nil
	}
}

func authorize(action policy.Action) error {
	return policy.Check(action).Err()
}

func audit(ctx context.Context, c *command.Context, eventType, message string) error {
	return c.Audit(ctx, c.Principal.ID(), eventType, message)
}

func validName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", missing("name")
	}
	if len(name) > maxNameLength {
		return "", invalid("name must be at most %d characters", maxNameLength)
	}
	return name, nil
}

func validRealName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if len(name) > maxRealNameLength {
		return "", invalid("real name must be at most %d characters", maxRealNameLength)
	}
	return name, nil
}

func parsePermissions(names []string) (domain.PermissionSet, error) {
	set := domain.NewPermissionSet()
	for _, name := range names {
		perm, err := domain.ParsePermission(name)
		if err != nil {
			return nil, invalid("%v", err)
		}
		set[perm] = struct{}{}
	}
	return set, nil
}
