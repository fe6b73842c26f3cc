package mail

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/logger"
)

// LogSender records mail instead of delivering it. Used in development and tests.
type LogSender struct {
	logger *zap.Logger

	mu   sync.Mutex
	sent []port.Mail
}

// NewLogSender returns a sender that logs the recipient and subject.
func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{logger: log}
}

// Send keeps the message in memory and logs it.
func (s *LogSender) Send(_ context.Context, requestID uuid.UUID, m port.Mail) error {
	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()

	s.logger.Info("mail captured",
		zap.String("request_id", requestID.String()),
		zap.String("to", logger.MaskEmail(m.To)),
		zap.String("subject", m.Subject),
	)
	return nil
}

// Sent returns a copy of every captured message.
func (s *LogSender) Sent() []port.Mail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]port.Mail, len(s.sent))
	copy(out, s.sent)
	return out
}

var _ port.MailSender = (*LogSender)(nil)
