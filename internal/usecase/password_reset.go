package usecase

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/arklim/identity-server/internal/repository"
)

const (
	resetTokenBytes  = 32
	defaultResetTTL  = time.Hour
	defaultResetPage = "/password/reset"
)

var (
	// ErrPasswordResetNotFound covers unknown, consumed and expired reset tokens.
	ErrPasswordResetNotFound = errors.New("password reset not found")
	// ErrPasswordResetMismatch indicates the password and its confirmation differ.
	ErrPasswordResetMismatch = errors.New("password confirmation mismatch")
)

// PasswordResetRequest starts a reset for the user owning Email.
type PasswordResetRequest struct {
	Email         string
	RequestID     uuid.UUID
	RemoteAddress string
	UserAgent     string
}

// PasswordResetConfirmation completes a reset.
type PasswordResetConfirmation struct {
	Token        string
	Password     string
	Confirmation string
}

// PasswordResetSettings configures the reset flow. Page is the form, hosted outside
// this service, that collects the new password and posts user.password.reset.confirm.
// A relative Page is resolved against PublicURL.
type PasswordResetSettings struct {
	TTL       time.Duration
	PublicURL string
	Page      string
}

// PasswordResetService lets an unauthenticated user replace a forgotten password.
type PasswordResetService struct {
	limiter     port.RateLimiter
	composer    port.MailComposer
	sender      port.MailSender
	credentials *Credentials
	clock       clock.Clock
	settings    PasswordResetSettings
	logger      *zap.Logger
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(limiter port.RateLimiter, composer port.MailComposer, sender port.MailSender, credentials *Credentials, clk clock.Clock, settings PasswordResetSettings, log *zap.Logger) *PasswordResetService {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if settings.TTL <= 0 {
		settings.TTL = defaultResetTTL
	}
	settings.PublicURL = strings.TrimRight(settings.PublicURL, "/")
	settings.Page = strings.TrimSpace(settings.Page)
	if settings.Page == "" {
		settings.Page = defaultResetPage
	}
	return &PasswordResetService{
		limiter:     limiter,
		composer:    composer,
		sender:      sender,
		credentials: credentials,
		clock:       clk,
		settings:    settings,
		logger:      log,
	}
}

// Begin mails a reset link when the address belongs to a user and returns the stored
// request. Unknown addresses yield a nil request and no error.
func (s *PasswordResetService) Begin(ctx context.Context, q port.Queries, req PasswordResetRequest) (*domain.PasswordReset, error) {
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, req.RemoteAddress)
		if err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		if !allowed {
			return nil, ErrRateLimited
		}
	}

	email, err := ParseEmail(req.Email)
	if err != nil {
		return nil, err
	}

	user, err := q.Users().GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info("password reset for unknown email", zap.String("email", logger.MaskEmail(email)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if _, err := q.PasswordResets().DeleteForUser(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("supersede resets: %w", err)
	}

	token, err := security.GenerateSecureToken(resetTokenBytes)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	reset := domain.PasswordReset{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: security.HashToken(token),
		CreatedAt: now,
		ExpiresAt: now.Add(s.settings.TTL),
	}
	if err := q.PasswordResets().Create(ctx, reset); err != nil {
		return nil, fmt.Errorf("store reset: %w", err)
	}

	values := url.Values{}
	values.Set("token", token)
	message, err := s.composer.PasswordReset(port.PasswordResetMail{
		To:        email,
		Name:      user.Name,
		ResetURL:  s.resetLink(values),
		Host:      req.RemoteAddress,
		UserAgent: req.UserAgent,
		Expires:   reset.ExpiresAt,
	})
	if err != nil {
		return nil, err
	}
	if err := s.sender.Send(ctx, req.RequestID, message); err != nil {
		return nil, fmt.Errorf("send reset: %w", err)
	}
	return &reset, nil
}

// Confirm sets the new password and consumes the reset token.
func (s *PasswordResetService) Confirm(ctx context.Context, q port.Queries, in PasswordResetConfirmation) (domain.User, error) {
	if in.Password != in.Confirmation {
		return domain.User{}, ErrPasswordResetMismatch
	}

	token := strings.TrimSpace(in.Token)
	if token == "" {
		return domain.User{}, ErrPasswordResetNotFound
	}
	reset, err := q.PasswordResets().GetByTokenHash(ctx, security.HashToken(token))
	if errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, ErrPasswordResetNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load reset: %w", err)
	}
	if reset.IsExpired(s.clock.Now()) {
		return domain.User{}, ErrPasswordResetNotFound
	}

	user, err := q.Users().Get(ctx, reset.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, ErrPasswordResetNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}

	credential, err := s.credentials.Derive(user.Identity, in.Password)
	if err != nil {
		return domain.User{}, err
	}
	user.Password = credential
	user.UpdatedAt = s.clock.Now()
	if err := q.Users().Update(ctx, *user); err != nil {
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	if _, err := q.PasswordResets().DeleteForUser(ctx, user.ID); err != nil {
		return domain.User{}, fmt.Errorf("consume reset: %w", err)
	}
	return *user, nil
}

func (s *PasswordResetService) resetLink(values url.Values) string {
	page := s.settings.Page
	if u, err := url.Parse(page); err != nil || !u.IsAbs() {
		page = s.settings.PublicURL + "/" + strings.TrimLeft(page, "/")
	}
	sep := "?"
	if strings.Contains(page, "?") {
		sep = "&"
	}
	return page + sep + values.Encode()
}
