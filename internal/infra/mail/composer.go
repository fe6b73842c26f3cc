package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	templateEmailAdd      = "email_add.html"
	templateEmailRemove   = "email_remove.html"
	templatePasswordReset = "password_reset.html"
)

// Composer renders outbound messages from the embedded HTML templates.
type Composer struct {
	templates *template.Template
	subjects  Subjects
}

// Subjects holds the subject line per message kind.
type Subjects struct {
	EmailAdd      string
	EmailRemove   string
	PasswordReset string
}

// DefaultSubjects returns the built-in subject lines.
func DefaultSubjects() Subjects {
	return Subjects{
		EmailAdd:      "Confirm new email address",
		EmailRemove:   "Confirm email address removal",
		PasswordReset: "Password reset",
	}
}

// NewComposer parses the embedded templates.
func NewComposer(subjects Subjects) (*Composer, error) {
	tpl, err := template.New("mail").Option("missingkey=error").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("%w: parse templates: %v", port.ErrMail, err)
	}
	defaults := DefaultSubjects()
	if subjects.EmailAdd == "" {
		subjects.EmailAdd = defaults.EmailAdd
	}
	if subjects.EmailRemove == "" {
		subjects.EmailRemove = defaults.EmailRemove
	}
	if subjects.PasswordReset == "" {
		subjects.PasswordReset = defaults.PasswordReset
	}
	return &Composer{templates: tpl, subjects: subjects}, nil
}

// EmailChallenge renders the permit/deny message for an email ownership change.
func (c *Composer) EmailChallenge(data port.EmailChallengeMail) (port.Mail, error) {
	name, subject := templateEmailAdd, c.subjects.EmailAdd
	switch domain.EmailOperation(data.Operation) {
	case domain.EmailOperationAdd:
	case domain.EmailOperationRemove:
		name, subject = templateEmailRemove, c.subjects.EmailRemove
	default:
		return port.Mail{}, fmt.Errorf("%w: unknown email operation %q", port.ErrMail, data.Operation)
	}
	return c.render(name, data.To, subject, data)
}

// PasswordReset renders the reset link message.
func (c *Composer) PasswordReset(data port.PasswordResetMail) (port.Mail, error) {
	return c.render(templatePasswordReset, data.To, c.subjects.PasswordReset, data)
}

func (c *Composer) render(name, to, subject string, data any) (port.Mail, error) {
	var body bytes.Buffer
	if err := c.templates.ExecuteTemplate(&body, name, data); err != nil {
		return port.Mail{}, fmt.Errorf("%w: render %s: %v", port.ErrMail, name, err)
	}
	return port.Mail{
		To:      to,
		Subject: subject,
		Headers: map[string]string{"Content-Type": "text/html; charset=UTF-8"},
		Body:    body.String(),
	}, nil
}

var _ port.MailComposer = (*Composer)(nil)
