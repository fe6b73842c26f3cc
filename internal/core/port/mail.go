package port

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrMail marks mail rendering or delivery failures.
var ErrMail = errors.New("mail system failure")

// Mail is a rendered outbound message.
type Mail struct {
	To      string
	Headers map[string]string
	Subject string
	Body    string
}

// MailSender delivers mail. Implementations wrap failures with ErrMail.
type MailSender interface {
	Send(ctx context.Context, requestID uuid.UUID, mail Mail) error
}

// EmailChallengeMail carries the data for an email verification message.
type EmailChallengeMail struct {
	To        string
	Name      string
	Operation string
	Email     string
	PermitURL string
	DenyURL   string
	Host      string
	UserAgent string
	Expires   time.Time
}

// PasswordResetMail carries the data for a password reset message.
type PasswordResetMail struct {
	To        string
	Name      string
	ResetURL  string
	Host      string
	UserAgent string
	Expires   time.Time
}

// MailComposer renders messages from templates. Implementations wrap failures with ErrMail.
type MailComposer interface {
	EmailChallenge(data EmailChallengeMail) (Mail, error)
	PasswordReset(data PasswordResetMail) (Mail, error)
}
