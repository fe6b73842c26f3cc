package mail

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
)

func TestComposerEmailChallenge(t *testing.T) {
	composer, err := NewComposer(Subjects{})
	if err != nil {
		t.Fatalf("NewComposer returned error: %v", err)
	}

	m, err := composer.EmailChallenge(port.EmailChallengeMail{
		To:        "ada@example.com",
		Name:      "ada",
		Operation: string(domain.EmailOperationRemove),
		Email:     "old@example.com",
		PermitURL: "https://id.example.com/email/permit?token=p",
		DenyURL:   "https://id.example.com/email/deny?token=d",
		Host:      "10.0.0.1",
		UserAgent: "curl/8",
		Expires:   time.Date(2025, 1, 2, 3, 4, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("EmailChallenge returned error: %v", err)
	}
	if m.To != "ada@example.com" || m.Subject != DefaultSubjects().EmailRemove {
		t.Fatalf("unexpected envelope: %+v", m)
	}
	for _, want := range []string{"remove", "old@example.com", "token=p", "token=d", "2025-01-02 03:04 UTC"} {
		if !strings.Contains(m.Body, want) {
			t.Fatalf("body missing %q: %s", want, m.Body)
		}
	}
}

func TestComposerRejectsUnknownOperation(t *testing.T) {
	composer, err := NewComposer(Subjects{})
	if err != nil {
		t.Fatalf("NewComposer returned error: %v", err)
	}
	_, err = composer.EmailChallenge(port.EmailChallengeMail{Operation: "EMAIL_RENAME"})
	if !errors.Is(err, port.ErrMail) {
		t.Fatalf("expected ErrMail, got %v", err)
	}
}

func TestComposerPasswordReset(t *testing.T) {
	composer, err := NewComposer(Subjects{PasswordReset: "Reset"})
	if err != nil {
		t.Fatalf("NewComposer returned error: %v", err)
	}
	m, err := composer.PasswordReset(port.PasswordResetMail{
		To:       "ada@example.com",
		Name:     "ada",
		ResetURL: "https://id.example.com/reset?token=r",
		Expires:  time.Now(),
	})
	if err != nil {
		t.Fatalf("PasswordReset returned error: %v", err)
	}
	if m.Subject != "Reset" || !strings.Contains(m.Body, "token=r") {
		t.Fatalf("unexpected mail: %+v", m)
	}
}

func TestBuildMessageRejectsHeaderInjection(t *testing.T) {
	_, err := buildMessage("", "noreply@example.com", uuid.New(), port.Mail{
		To:      "ada@example.com",
		Headers: map[string]string{"X-Evil": "a\r\nBcc: victim@example.com"},
	})
	if err == nil {
		t.Fatal("expected header injection to be rejected")
	}
}

func TestBuildMessageEncodesBody(t *testing.T) {
	requestID := uuid.New()
	raw, err := buildMessage("Identity", "noreply@example.com", requestID, port.Mail{
		To:      "ada@example.com",
		Subject: "Grüße",
		Body:    "a=b",
	})
	if err != nil {
		t.Fatalf("buildMessage returned error: %v", err)
	}
	msg := string(raw)
	if !strings.Contains(msg, "X-Request-ID: "+requestID.String()) {
		t.Fatalf("missing request id header: %s", msg)
	}
	if !strings.Contains(msg, "=?utf-8?q?") {
		t.Fatalf("expected encoded subject: %s", msg)
	}
	if !strings.Contains(msg, "a=3Db") {
		t.Fatalf("expected quoted-printable body: %s", msg)
	}
}

func TestLogSenderCaptures(t *testing.T) {
	sender := NewLogSender(zaptest.NewLogger(t))
	if err := sender.Send(context.Background(), uuid.New(), port.Mail{To: "ada@example.com", Subject: "hi"}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if sent := sender.Sent(); len(sent) != 1 || sent[0].Subject != "hi" {
		t.Fatalf("unexpected captured mail: %+v", sent)
	}
}

func TestNewSMTPSenderValidates(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{}, nil); err == nil {
		t.Fatal("expected missing host to fail")
	}
	sender, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com", Encryption: "bogus"}, nil)
	if err != nil {
		t.Fatalf("NewSMTPSender returned error: %v", err)
	}
	if sender.cfg.Encryption != EncStartTLS {
		t.Fatalf("expected STARTTLS fallback, got %s", sender.cfg.Encryption)
	}
}
