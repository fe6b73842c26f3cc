package port

import (
	"context"

	"github.com/arklim/identity-server/internal/core/domain"
)

// AuditPublisher fans committed audit events out to the message bus.
type AuditPublisher interface {
	PublishAudit(ctx context.Context, event domain.AuditEvent) error
}
