// Package command runs decoded client commands through one storage transaction each.
// The executor knows nothing about individual commands: handlers are registered per
// tag in a Catalog together with the principal kind they require.
package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/core/domain"
)

// Tag identifies a command kind on the wire and in the catalog.
type Tag string

// Command is a decoded client request.
type Command interface {
	Tag() Tag
}

// PrincipalRef identifies the authenticated caller as asserted by the access token.
type PrincipalRef struct {
	ID        uuid.UUID
	Kind      domain.PrincipalKind
	SessionID string
}

// Request is one command execution. A zero RequestID is replaced by a fresh one.
type Request struct {
	Command       Command
	RequestID     uuid.UUID
	CorrelationID string
	Principal     *PrincipalRef
	RemoteAddress string
	UserAgent     string
}

// ErrorBody is the client-visible part of a failure.
type ErrorBody struct {
	Code    domain.ErrorCode `json:"code" cbor:"code"`
	Status  int              `json:"status" cbor:"status"`
	Message string           `json:"message" cbor:"message"`
}

// Response is the result of one command. Exactly one of Body or Error is meaningful.
type Response struct {
	RequestID     uuid.UUID
	CorrelationID string
	Body          any
	Error         *ErrorBody
}

// IsError reports whether the response represents a failure. Error-shaped responses
// never commit.
func (r Response) IsError() bool {
	return r.Error != nil
}

// OK wraps a success payload.
func OK(body any) Response {
	return Response{Body: body}
}

// Reject builds an error-shaped response without raising a Go error.
func Reject(code domain.ErrorCode, message string) Response {
	return Response{Error: &ErrorBody{Code: code, Status: code.DefaultStatus(), Message: message}}
}

// Access is the principal kind a handler requires.
type Access int

const (
	// Anonymous handlers run before authentication.
	Anonymous Access = iota
	// UserOnly handlers require an authenticated user.
	UserOnly
	// AdminOnly handlers require an authenticated admin.
	AdminOnly
)

func (a Access) kind() domain.PrincipalKind {
	switch a {
	case UserOnly:
		return domain.PrincipalUser
	case AdminOnly:
		return domain.PrincipalAdmin
	default:
		return ""
	}
}

// Handler executes one command inside the transaction held by c.
type Handler func(ctx context.Context, c *Context, cmd Command) (Response, error)

// Route binds a handler to its access requirement.
type Route struct {
	Access Access
	Handle Handler
	// Delay is served after the transaction has ended, whatever the outcome.
	Delay  time.Duration
}

// RouteOption customises a registered route.
type RouteOption func(*Route)

// WithDelay holds every response of the route for d once its transaction is over.
func WithDelay(d time.Duration) RouteOption {
	return func(r *Route) {
		r.Delay = d
	}
}

// Catalog maps tags to routes.
type Catalog map[Tag]Route

// Register adds a route. Registering a tag twice panics.
func (c Catalog) Register(tag Tag, access Access, h Handler, opts ...RouteOption) {
	if _, dup := c[tag]; dup {
		panic("command: duplicate registration for " + string(tag))
	}
	route := Route{Access: access, Handle: h}
	for _, opt := range opts {
		opt(&route)
	}
	c[tag] = route
}
