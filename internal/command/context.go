package command

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/infra/ids"
)

// Context is the per-execution state handed to a handler. It must not escape the
// handler call.
type Context struct {
	Queries       port.Queries
	Principal     domain.Principal
	SessionID     string
	RequestID     uuid.UUID
	RemoteAddress string
	UserAgent     string
	Clock         clock.Clock
	Logger        *zap.Logger

	publisher   port.AuditPublisher
	afterCommit []func(ctx context.Context) error
}

// Now returns the execution clock's current time.
func (c *Context) Now() time.Time {
	return c.Clock.Now()
}

// AfterCommit schedules fn to run once the transaction committed. Failures are logged.
func (c *Context) AfterCommit(fn func(ctx context.Context) error) {
	c.afterCommit = append(c.afterCommit, fn)
}

// Audit appends an audit event inside the transaction and publishes it after commit.
func (c *Context) Audit(ctx context.Context, actor uuid.UUID, eventType, message string) error {
	now := c.Now()
	event := domain.AuditEvent{
		ID:      ids.Sortable(now),
		ActorID: actor,
		Time:    now,
		Type:    eventType,
		Message: message,
	}
	if err := c.Queries.Audit().Append(ctx, event); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	if c.publisher != nil {
		c.AfterCommit(func(ctx context.Context) error {
			return c.publisher.PublishAudit(ctx, event)
		})
	}
	return nil
}
