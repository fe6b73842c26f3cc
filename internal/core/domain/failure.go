package domain

import (
	"fmt"
	"net/http"
)

// ErrorCode is the client-visible error taxonomy.
type ErrorCode string

const (
	ErrSecurityPolicyDenied         ErrorCode = "SECURITY_POLICY_DENIED"
	ErrAuthentication               ErrorCode = "AUTHENTICATION_ERROR"
	ErrBanned                       ErrorCode = "BANNED"
	ErrRateLimitExceeded            ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrUserNonexistent              ErrorCode = "USER_NONEXISTENT"
	ErrAdminNonexistent             ErrorCode = "ADMIN_NONEXISTENT"
	ErrBanNonexistent               ErrorCode = "BAN_NONEXISTENT"
	ErrEmailVerificationNonexistent ErrorCode = "EMAIL_VERIFICATION_NONEXISTENT"
	ErrEmailVerificationFailed      ErrorCode = "EMAIL_VERIFICATION_FAILED"
	ErrEmailDuplicate               ErrorCode = "EMAIL_DUPLICATE"
	ErrPasswordResetNonexistent     ErrorCode = "PASSWORD_RESET_NONEXISTENT"
	ErrPasswordResetMismatch        ErrorCode = "PASSWORD_RESET_MISMATCH"
	ErrHTTPParameterNonexistent     ErrorCode = "HTTP_PARAMETER_NONEXISTENT"
	ErrHTTPParameterInvalid         ErrorCode = "HTTP_PARAMETER_INVALID"
	ErrSQL                          ErrorCode = "SQL_ERROR"
	ErrSQLUnique                    ErrorCode = "SQL_ERROR_UNIQUE"
	ErrMailSystemFailure            ErrorCode = "MAIL_SYSTEM_FAILURE"
	ErrProtocol                     ErrorCode = "PROTOCOL_ERROR"
	ErrIO                           ErrorCode = "IO_ERROR"
	ErrPasswordInvalid              ErrorCode = "PASSWORD_ERROR"
)

// DefaultStatus returns the HTTP-style status conventionally paired with the code.
func (c ErrorCode) DefaultStatus() int {
	switch c {
	case ErrSecurityPolicyDenied, ErrBanned:
		return http.StatusForbidden
	case ErrAuthentication:
		return http.StatusUnauthorized
	case ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrUserNonexistent, ErrAdminNonexistent, ErrBanNonexistent,
		ErrEmailVerificationNonexistent, ErrPasswordResetNonexistent:
		return http.StatusNotFound
	case ErrEmailVerificationFailed, ErrPasswordResetMismatch, ErrHTTPParameterNonexistent,
		ErrHTTPParameterInvalid, ErrProtocol, ErrPasswordInvalid:
		return http.StatusBadRequest
	case ErrSQLUnique, ErrEmailDuplicate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Failure is a structured command failure. Cause is for logging only and never
// leaves the process.
type Failure struct {
	Code    ErrorCode
	Status  int
	Message string
	Cause   error
}

// Fail constructs a Failure with the code's default status.
func Fail(code ErrorCode, message string) *Failure {
	return &Failure{Code: code, Status: code.DefaultStatus(), Message: message}
}

// Failf constructs a Failure with a formatted message.
func Failf(code ErrorCode, format string, args ...any) *Failure {
	return Fail(code, fmt.Sprintf(format, args...))
}

// WithCause attaches the underlying error for logging.
func (f *Failure) WithCause(err error) *Failure {
	out := *f
	out.Cause = err
	return &out
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}
