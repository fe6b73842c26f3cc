package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/infra/logger"
	"github.com/arklim/identity-server/internal/repository"
)

const defaultHistoryLimit = 100

var (
	// ErrInvalidCredentials covers both an unknown name and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited indicates the caller exceeded an attempt limit.
	ErrRateLimited = errors.New("too many attempts")
)

// BanError reports an active ban. It matches ErrBanned.
type BanError struct {
	Ban domain.Ban
}

// ErrBanned matches any *BanError.
var ErrBanned = errors.New("principal is banned")

func (e *BanError) Error() string {
	if e.Ban.Expires == nil {
		return fmt.Sprintf("banned: %s", e.Ban.Reason)
	}
	return fmt.Sprintf("banned until %s: %s", e.Ban.Expires.UTC().Format(time.RFC3339), e.Ban.Reason)
}

func (e *BanError) Is(target error) bool {
	return target == ErrBanned
}

// LoginObserver receives login outcomes.
type LoginObserver interface {
	ObserveLogin(kind, outcome string)
}

// LoginInput carries one login attempt.
type LoginInput struct {
	Kind          domain.PrincipalKind
	Name          string
	Password      string
	RemoteAddress string
	UserAgent     string
}

// AdmissionSettings tunes the admission controller.
type AdmissionSettings struct {
	HistoryLimit int
}

// AdmissionController authenticates principals by name and password.
type AdmissionController struct {
	limiter  port.RateLimiter
	hasher   port.PasswordHasher
	clock    clock.Clock
	settings AdmissionSettings
	observer LoginObserver
	logger   *zap.Logger
}

// NewAdmissionController constructs an AdmissionController.
func NewAdmissionController(limiter port.RateLimiter, hasher port.PasswordHasher, clk clock.Clock, settings AdmissionSettings, observer LoginObserver, log *zap.Logger) *AdmissionController {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if settings.HistoryLimit <= 0 {
		settings.HistoryLimit = defaultHistoryLimit
	}
	return &AdmissionController{
		limiter:  limiter,
		hasher:   hasher,
		clock:    clk,
		settings: settings,
		observer: observer,
		logger:   log,
	}
}

// Login verifies the attempt and records it in the principal's login history. The
// anti-timing delay belongs to the caller, outside the storage transaction.
func (a *AdmissionController) Login(ctx context.Context, q port.Queries, in LoginInput) (domain.Principal, error) {
	principal, err := a.login(ctx, q, in)
	a.observe(in.Kind, err)
	if err != nil {
		a.logger.Info("login rejected",
			zap.String("kind", string(in.Kind)),
			zap.String("remote", logger.MaskIP(in.RemoteAddress)),
			zap.Error(err),
		)
	}
	return principal, err
}

func (a *AdmissionController) login(ctx context.Context, q port.Queries, in LoginInput) (domain.Principal, error) {
	if a.limiter != nil {
		allowed, err := a.limiter.Allow(ctx, in.RemoteAddress)
		if err != nil {
			return domain.Principal{}, fmt.Errorf("rate limit: %w", err)
		}
		if !allowed {
			return domain.Principal{}, ErrRateLimited
		}
	}

	name := strings.TrimSpace(in.Name)
	if name == "" || in.Password == "" {
		return domain.Principal{}, ErrInvalidCredentials
	}

	principal, err := lookupByName(ctx, q, in.Kind, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Principal{}, ErrInvalidCredentials
		}
		return domain.Principal{}, err
	}
	identity := principal.Identity()

	if err := CheckBan(ctx, q, identity.ID, a.clock.Now()); err != nil {
		return domain.Principal{}, err
	}

	ok, err := a.hasher.Verify(in.Password, identity.Password)
	if err != nil {
		a.logger.Warn("credential verification failed", zap.String("principal_id", identity.ID.String()), zap.Error(err))
		return domain.Principal{}, ErrInvalidCredentials
	}
	if !ok {
		return domain.Principal{}, ErrInvalidCredentials
	}

	record := domain.LoginRecord{
		SubjectID: identity.ID,
		Time:      a.clock.Now(),
		Host:      in.RemoteAddress,
		UserAgent: in.UserAgent,
	}
	if err := q.LoginRecords().Append(ctx, record, a.settings.HistoryLimit); err != nil {
		return domain.Principal{}, fmt.Errorf("record login: %w", err)
	}
	return principal, nil
}

func (a *AdmissionController) observe(kind domain.PrincipalKind, err error) {
	if a.observer == nil {
		return
	}
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrRateLimited):
		outcome = "rate_limited"
	case errors.Is(err, ErrBanned):
		outcome = "banned"
	case errors.Is(err, ErrInvalidCredentials):
		outcome = "invalid_credentials"
	default:
		outcome = "error"
	}
	a.observer.ObserveLogin(string(kind), outcome)
}

// CheckBan returns a *BanError when subject carries a ban active at now.
func CheckBan(ctx context.Context, q port.Queries, subject uuid.UUID, now time.Time) error {
	ban, err := q.Bans().Get(ctx, subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load ban: %w", err)
	}
	if !ban.Active(now) {
		return nil
	}
	return &BanError{Ban: *ban}
}

func lookupByName(ctx context.Context, q port.Queries, kind domain.PrincipalKind, name string) (domain.Principal, error) {
	switch kind {
	case domain.PrincipalUser:
		user, err := q.Users().GetByName(ctx, name)
		if err != nil {
			return domain.Principal{}, err
		}
		return domain.Principal{User: user}, nil
	case domain.PrincipalAdmin:
		admin, err := q.Admins().GetByName(ctx, name)
		if err != nil {
			return domain.Principal{}, err
		}
		return domain.Principal{Admin: admin}, nil
	default:
		return domain.Principal{}, repository.ErrNotFound
	}
}
