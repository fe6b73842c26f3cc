package handlers

import (
	"errors"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/pagination"
	"github.com/arklim/identity-server/internal/usecase"
)

var (
	// ErrBanNotFound indicates the subject carries no ban.
	ErrBanNotFound = errors.New("ban not found")
	// ErrNoSearch indicates next or previous without a prior begin in this session.
	ErrNoSearch = errors.New("no search in progress")
)

// ErrorCase maps a sentinel error to a taxonomy code and client message.
type ErrorCase struct {
	Err     error
	Code    domain.ErrorCode
	Message string
}

var errorCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredentials, Code: domain.ErrAuthentication, Message: "invalid name or password"},
	{Err: usecase.ErrRateLimited, Code: domain.ErrRateLimitExceeded, Message: "too many attempts, try again later"},
	{Err: usecase.ErrUserNotFound, Code: domain.ErrUserNonexistent, Message: "user does not exist"},
	{Err: usecase.ErrAdminNotFound, Code: domain.ErrAdminNonexistent, Message: "admin does not exist"},
	{Err: ErrBanNotFound, Code: domain.ErrBanNonexistent, Message: "ban does not exist"},
	{Err: usecase.ErrChallengeNotFound, Code: domain.ErrEmailVerificationNonexistent, Message: "email verification does not exist"},
	{Err: usecase.ErrChallengeOperation, Code: domain.ErrEmailVerificationFailed, Message: "email verification does not match the operation"},
	{Err: usecase.ErrEmailNotOwned, Code: domain.ErrEmailVerificationFailed, Message: "email is not registered to this account"},
	{Err: usecase.ErrEmailTaken, Code: domain.ErrEmailDuplicate, Message: "email is already in use"},
	{Err: usecase.ErrInvalidEmail, Code: domain.ErrHTTPParameterInvalid, Message: "email address is invalid"},
	{Err: usecase.ErrPasswordResetNotFound, Code: domain.ErrPasswordResetNonexistent, Message: "password reset does not exist"},
	{Err: usecase.ErrPasswordResetMismatch, Code: domain.ErrPasswordResetMismatch, Message: "password and confirmation differ"},
	{Err: ErrNoSearch, Code: domain.ErrHTTPParameterNonexistent, Message: "no search in progress"},
	{Err: pagination.ErrSeekKeyNull, Code: domain.ErrSQL, Message: "storage failure"},
}

// translate maps usecase sentinels onto the taxonomy. Errors without a case pass
// through for the executor to classify.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var failure *domain.Failure
	if errors.As(err, &failure) {
		return failure
	}

	var ban *usecase.BanError
	if errors.As(err, &ban) {
		return domain.Fail(domain.ErrBanned, ban.Error())
	}
	if errors.Is(err, usecase.ErrWeakPassword) {
		return domain.Fail(domain.ErrPasswordInvalid, err.Error())
	}

	for _, cs := range errorCases {
		if errors.Is(err, cs.Err) {
			f := domain.Fail(cs.Code, cs.Message)
			if f.Status >= 500 {
				return f.WithCause(err)
			}
			return f
		}
	}
	return err
}

func invalid(format string, args ...any) error {
	return domain.Failf(domain.ErrHTTPParameterInvalid, format, args...)
}

func missing(name string) error {
	return domain.Failf(domain.ErrHTTPParameterNonexistent, "%s is required", name)
}
