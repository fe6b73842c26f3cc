package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/identity-server/internal/core/port"
)

// EncryptionMode selects how the SMTP connection is secured.
type EncryptionMode string

const (
	EncNone     EncryptionMode = "NONE"
	EncStartTLS EncryptionMode = "STARTTLS"
	EncTLS      EncryptionMode = "TLS"
)

// SMTPConfig carries relay settings.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	Encryption EncryptionMode
	Timeout    time.Duration
}

// SMTPSender delivers mail through an SMTP relay. Every failure wraps port.ErrMail.
type SMTPSender struct {
	cfg    SMTPConfig
	logger *zap.Logger
}

// NewSMTPSender validates cfg and returns a sender.
func NewSMTPSender(cfg SMTPConfig, logger *zap.Logger) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("smtp host and port are required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	switch EncryptionMode(strings.ToUpper(string(cfg.Encryption))) {
	case EncNone, EncTLS:
		cfg.Encryption = EncryptionMode(strings.ToUpper(string(cfg.Encryption)))
	default:
		cfg.Encryption = EncStartTLS
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPSender{cfg: cfg, logger: logger}, nil
}

// Send renders the MIME message and hands it to the relay.
func (s *SMTPSender) Send(ctx context.Context, requestID uuid.UUID, m port.Mail) error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("%w: recipient missing", port.ErrMail)
	}
	msg, err := buildMessage(s.cfg.FromName, s.cfg.From, requestID, m)
	if err != nil {
		return fmt.Errorf("%w: build message: %v", port.ErrMail, err)
	}

	if err := s.deliver(ctx, m.To, msg); err != nil {
		s.logger.Error("smtp delivery failed", zap.String("request_id", requestID.String()), zap.Error(err))
		return fmt.Errorf("%w: %v", port.ErrMail, err)
	}

	s.logger.Info("mail sent", zap.String("request_id", requestID.String()), zap.String("subject", m.Subject))
	return nil
}

func (s *SMTPSender) deliver(ctx context.Context, to string, msg []byte) error {
	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < dialer.Timeout {
			dialer.Timeout = remaining
		}
	}

	address := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.Encryption == EncTLS {
		conn, err = tls.DialWithDialer(&dialer, "tcp", address, &tls.Config{ServerName: s.cfg.Host})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	defer client.Close()

	if s.cfg.Encryption == EncStartTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if s.cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := client.Rcpt(strings.TrimSpace(to)); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}
	return client.Quit()
}

func buildMessage(fromName, fromAddr string, requestID uuid.UUID, m port.Mail) ([]byte, error) {
	from := fromAddr
	if strings.TrimSpace(fromName) != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), fromAddr)
	}

	headers := map[string]string{
		"From":                      from,
		"To":                        m.To,
		"Subject":                   mime.QEncoding.Encode("utf-8", m.Subject),
		"MIME-Version":              "1.0",
		"Content-Type":              "text/plain; charset=UTF-8",
		"Content-Transfer-Encoding": "quoted-printable",
		"X-Request-ID":              requestID.String(),
	}
	for k, v := range m.Headers {
		if strings.ContainsAny(k+v, "\r\n") {
			return nil, fmt.Errorf("header %q contains a line break", k)
		}
		headers[k] = v
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, headers[k])
	}
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(m.Body)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ port.MailSender = (*SMTPSender)(nil)
