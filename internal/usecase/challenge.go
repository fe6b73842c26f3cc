package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/infra/logger"
	"github.com/arklim/identity-server/internal/infra/security"
	"github.com/arklim/identity-server/internal/policy"
	"github.com/arklim/identity-server/internal/repository"
)

const (
	challengeTokenBytes = 32
	defaultChallengeTTL = 24 * time.Hour
)

var (
	// ErrChallengeNotFound covers unknown, consumed and expired challenges alike.
	ErrChallengeNotFound = errors.New("email verification not found")
	// ErrChallengeOperation indicates the token was issued for a different operation.
	ErrChallengeOperation = errors.New("email verification operation mismatch")
	// ErrEmailTaken indicates the address already belongs to a principal.
	ErrEmailTaken = errors.New("email address already in use")
	// ErrEmailNotOwned indicates the owner does not hold the address being removed.
	ErrEmailNotOwned = errors.New("email address not owned")
	// ErrInvalidEmail indicates a malformed address.
	ErrInvalidEmail = errors.New("invalid email address")
)

// ChallengeRequest starts an email ownership change for Owner.
type ChallengeRequest struct {
	Owner         domain.Principal
	Email         string
	RequestID     uuid.UUID
	RemoteAddress string
	UserAgent     string
}

// ChallengeSettings configures the challenge service.
type ChallengeSettings struct {
	TTL       time.Duration
	PublicURL string
}

// ChallengeService issues and resolves email ownership challenges.
type ChallengeService struct {
	limiter  port.RateLimiter
	composer port.MailComposer
	sender   port.MailSender
	clock    clock.Clock
	settings ChallengeSettings
	logger   *zap.Logger
}

// NewChallengeService constructs a ChallengeService.
func NewChallengeService(limiter port.RateLimiter, composer port.MailComposer, sender port.MailSender, clk clock.Clock, settings ChallengeSettings, log *zap.Logger) *ChallengeService {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if settings.TTL <= 0 {
		settings.TTL = defaultChallengeTTL
	}
	settings.PublicURL = strings.TrimRight(settings.PublicURL, "/")
	return &ChallengeService{
		limiter:  limiter,
		composer: composer,
		sender:   sender,
		clock:    clk,
		settings: settings,
		logger:   log,
	}
}

// BeginEmailAdd mails permit and deny links for adding an address nobody owns yet.
func (s *ChallengeService) BeginEmailAdd(ctx context.Context, q port.Queries, req ChallengeRequest) (domain.EmailChallenge, error) {
	email, err := ParseEmail(req.Email)
	if err != nil {
		return domain.EmailChallenge{}, err
	}
	owned, err := EmailOwned(ctx, q, email)
	if err != nil {
		return domain.EmailChallenge{}, err
	}
	if owned {
		return domain.EmailChallenge{}, ErrEmailTaken
	}
	return s.begin(ctx, q, req, email, domain.EmailOperationAdd)
}

// BeginEmailRemove mails permit and deny links for removing one of the owner's addresses.
func (s *ChallengeService) BeginEmailRemove(ctx context.Context, q port.Queries, req ChallengeRequest) (domain.EmailChallenge, error) {
	email, err := ParseEmail(req.Email)
	if err != nil {
		return domain.EmailChallenge{}, err
	}
	if !req.Owner.Identity().HasEmail(email) {
		return domain.EmailChallenge{}, ErrEmailNotOwned
	}
	return s.begin(ctx, q, req, email, domain.EmailOperationRemove)
}

func (s *ChallengeService) begin(ctx context.Context, q port.Queries, req ChallengeRequest, email string, op domain.EmailOperation) (domain.EmailChallenge, error) {
	owner := req.Owner.Identity()

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, owner.ID.String())
		if err != nil {
			return domain.EmailChallenge{}, fmt.Errorf("rate limit: %w", err)
		}
		if !allowed {
			return domain.EmailChallenge{}, ErrRateLimited
		}
	}

	if _, err := q.EmailChallenges().DeleteMatching(ctx, owner.ID, op, email); err != nil {
		return domain.EmailChallenge{}, fmt.Errorf("supersede challenges: %w", err)
	}

	permit, err := security.GenerateSecureToken(challengeTokenBytes)
	if err != nil {
		return domain.EmailChallenge{}, err
	}
	deny, err := security.GenerateSecureToken(challengeTokenBytes)
	if err != nil {
		return domain.EmailChallenge{}, err
	}

	now := s.clock.Now()
	challenge := domain.EmailChallenge{
		ID:         uuid.New(),
		OwnerID:    owner.ID,
		OwnerKind:  req.Owner.Kind(),
		Email:      email,
		Operation:  op,
		PermitHash: security.HashToken(permit),
		DenyHash:   security.HashToken(deny),
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.settings.TTL),
	}
	if err := q.EmailChallenges().Create(ctx, challenge); err != nil {
		return domain.EmailChallenge{}, fmt.Errorf("store challenge: %w", err)
	}

	message, err := s.composer.EmailChallenge(port.EmailChallengeMail{
		To:        email,
		Name:      owner.Name,
		Operation: string(op),
		Email:     email,
		PermitURL: s.link("/email/permit", op, permit),
		DenyURL:   s.link("/email/deny", op, deny),
		Host:      req.RemoteAddress,
		UserAgent: req.UserAgent,
		Expires:   challenge.ExpiresAt,
	})
	if err != nil {
		return domain.EmailChallenge{}, err
	}
	if err := s.sender.Send(ctx, req.RequestID, message); err != nil {
		return domain.EmailChallenge{}, fmt.Errorf("send challenge: %w", err)
	}

	s.logger.Info("email challenge issued",
		zap.String("owner_id", owner.ID.String()),
		zap.String("operation", string(op)),
		zap.String("email", logger.MaskEmail(email)),
	)
	return challenge, nil
}

// Permit applies the challenge's effect and consumes it.
func (s *ChallengeService) Permit(ctx context.Context, q port.Queries, token string, op domain.EmailOperation) (domain.EmailChallenge, error) {
	challenge, err := s.lookup(ctx, q.EmailChallenges().GetByPermitHash, token)
	if err != nil {
		return domain.EmailChallenge{}, err
	}
	if challenge.Operation != op {
		return domain.EmailChallenge{}, ErrChallengeOperation
	}

	owner, err := LoadPrincipal(ctx, q, challenge.OwnerKind, challenge.OwnerID)
	if err != nil {
		return domain.EmailChallenge{}, err
	}
	identity := owner.Identity()

	switch challenge.Operation {
	case domain.EmailOperationAdd:
		owned, err := EmailOwned(ctx, q, challenge.Email)
		if err != nil {
			return domain.EmailChallenge{}, err
		}
		if owned {
			return domain.EmailChallenge{}, ErrEmailTaken
		}
		identity.Emails = append(identity.Emails, challenge.Email)
	case domain.EmailOperationRemove:
		if err := policy.KeepsAnEmail(identity, challenge.Email).Err(); err != nil {
			return domain.EmailChallenge{}, err
		}
		identity.Emails = withoutEmail(identity.Emails, challenge.Email)
	default:
		return domain.EmailChallenge{}, ErrChallengeOperation
	}
	identity.UpdatedAt = s.clock.Now()

	if _, err := SaveIdentity(ctx, q, owner, identity); err != nil {
		return domain.EmailChallenge{}, err
	}
	if err := q.EmailChallenges().Delete(ctx, challenge.ID); err != nil {
		return domain.EmailChallenge{}, fmt.Errorf("consume challenge: %w", err)
	}
	return challenge, nil
}

// Deny consumes the challenge without applying it.
func (s *ChallengeService) Deny(ctx context.Context, q port.Queries, token string) (domain.EmailChallenge, error) {
	challenge, err := s.lookup(ctx, q.EmailChallenges().GetByDenyHash, token)
	if err != nil {
		return domain.EmailChallenge{}, err
	}
	if err := q.EmailChallenges().Delete(ctx, challenge.ID); err != nil {
		return domain.EmailChallenge{}, fmt.Errorf("consume challenge: %w", err)
	}
	return challenge, nil
}

func (s *ChallengeService) lookup(ctx context.Context, get func(context.Context, string) (*domain.EmailChallenge, error), token string) (domain.EmailChallenge, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.EmailChallenge{}, ErrChallengeNotFound
	}
	challenge, err := get(ctx, security.HashToken(token))
	if errors.Is(err, repository.ErrNotFound) {
		return domain.EmailChallenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return domain.EmailChallenge{}, fmt.Errorf("load challenge: %w", err)
	}
	if challenge.IsExpired(s.clock.Now()) {
		return domain.EmailChallenge{}, ErrChallengeNotFound
	}
	return *challenge, nil
}

func (s *ChallengeService) link(path string, op domain.EmailOperation, token string) string {
	values := url.Values{}
	values.Set("operation", string(op))
	values.Set("token", token)
	return s.settings.PublicURL + path + "?" + values.Encode()
}

// ParseEmail validates and normalizes a bare address.
func ParseEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", ErrInvalidEmail
	}
	return domain.NormalizeEmail(addr.Address), nil
}

func withoutEmail(emails []string, email string) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if !strings.EqualFold(e, email) {
			out = append(out, e)
		}
	}
	return out
}
