package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
)

// StubPublisher logs audit events instead of sending them to Kafka. Used when no
// brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly audit publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

// PublishAudit logs the event.
func (p *StubPublisher) PublishAudit(_ context.Context, event domain.AuditEvent) error {
	p.logger.Info("audit event",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("actor_id", event.ActorID.String()),
		zap.Time("timestamp", event.Time.UTC()),
		zap.String("message", event.Message),
	)
	return nil
}

var _ port.AuditPublisher = (*StubPublisher)(nil)
