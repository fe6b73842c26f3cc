package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/infra/logger"
	"github.com/arklim/identity-server/internal/repository"
)

const outcomeOK = "OK"

// Observer receives one sample per execution.
type Observer interface {
	ObserveCommand(tag, code string, elapsed time.Duration)
}

// Options carries the executor's optional collaborators.
type Options struct {
	Clock     clock.Clock
	Publisher port.AuditPublisher
	Observer  Observer
	Tracer    trace.Tracer
	Logger    *zap.Logger
}

// Executor runs commands transactionally.
type Executor struct {
	store     port.Transactor
	catalog   Catalog
	clock     clock.Clock
	publisher port.AuditPublisher
	observer  Observer
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewExecutor constructs an Executor over store and catalog.
func NewExecutor(store port.Transactor, catalog Catalog, opts Options) *Executor {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("command")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Executor{
		store:     store,
		catalog:   catalog,
		clock:     opts.Clock,
		publisher: opts.Publisher,
		observer:  opts.Observer,
		tracer:    opts.Tracer,
		logger:    opts.Logger,
	}
}

// Execute runs req in its own transaction. The transaction commits only when the handler
// returns a non-error Response; every other outcome rolls back and yields an error
// Response carrying the request id. A route delay starts once the transaction is over.
func (e *Executor) Execute(ctx context.Context, req Request) Response {
	started := time.Now()
	if req.RequestID == uuid.Nil {
		req.RequestID = uuid.New()
	}

	tag := Tag("")
	if req.Command != nil {
		tag = req.Command.Tag()
	}

	ctx = logger.ContextWithRequestID(ctx, req.RequestID.String())
	log := logger.WithContext(ctx, e.logger).With(zap.String("tag", string(tag)))

	ctx, span := e.tracer.Start(ctx, "command "+string(tag),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("command.tag", string(tag)),
			attribute.String("command.request_id", req.RequestID.String()),
		),
	)
	defer span.End()

	resp := e.execute(ctx, req, log)
	if route, ok := e.catalog[tag]; ok && route.Delay > 0 {
		e.clock.Sleep(route.Delay)
	}
	resp.RequestID = req.RequestID
	resp.CorrelationID = req.CorrelationID

	code := outcomeOK
	if resp.IsError() {
		code = string(resp.Error.Code)
		span.SetStatus(codes.Error, code)
	}
	if e.observer != nil {
		e.observer.ObserveCommand(string(tag), code, time.Since(started))
	}
	log.Debug("command executed", zap.String("outcome", code), zap.Duration("elapsed", time.Since(started)))
	return resp
}

func (e *Executor) execute(ctx context.Context, req Request, log *zap.Logger) Response {
	if req.Command == nil {
		return failure(domain.Fail(domain.ErrProtocol, "missing command"))
	}
	route, ok := e.catalog[req.Command.Tag()]
	if !ok || route.Handle == nil {
		return failure(domain.Failf(domain.ErrProtocol, "unknown command %q", req.Command.Tag()))
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		return e.fail(log, fmt.Errorf("begin transaction: %w", err))
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		// Rollback must run even when ctx was cancelled.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			log.Warn("rollback failed", zap.Error(rbErr))
		}
	}()

	c := &Context{
		Queries:       tx,
		RequestID:     req.RequestID,
		RemoteAddress: req.RemoteAddress,
		UserAgent:     req.UserAgent,
		Clock:         e.clock,
		Logger:        log,
		publisher:     e.publisher,
	}

	if route.Access != Anonymous {
		principal, err := e.authenticate(ctx, tx, req.Principal, route.Access)
		if err != nil {
			return e.fail(log, err)
		}
		c.Principal = principal
		c.SessionID = req.Principal.SessionID
	}

	resp, err := e.invoke(ctx, route.Handle, c, req.Command)
	if err != nil {
		return e.fail(log, err)
	}
	if resp.IsError() {
		return resp
	}

	if err := tx.Commit(ctx); err != nil {
		return e.fail(log, fmt.Errorf("commit transaction: %w", err))
	}
	committed = true

	for _, fn := range c.afterCommit {
		if err := fn(ctx); err != nil {
			log.Warn("post-commit action failed", zap.Error(err))
		}
	}
	return resp
}

// authenticate reloads the caller inside the transaction and rejects banned principals.
func (e *Executor) authenticate(ctx context.Context, q port.Queries, ref *PrincipalRef, access Access) (domain.Principal, error) {
	denied := domain.Fail(domain.ErrAuthentication, "authentication required")
	if ref == nil || ref.ID == uuid.Nil || ref.Kind != access.kind() {
		return domain.Principal{}, denied
	}

	var principal domain.Principal
	switch ref.Kind {
	case domain.PrincipalUser:
		user, err := q.Users().Get(ctx, ref.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Principal{}, denied
		}
		if err != nil {
			return domain.Principal{}, err
		}
		principal.User = user
	case domain.PrincipalAdmin:
		admin, err := q.Admins().Get(ctx, ref.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Principal{}, denied
		}
		if err != nil {
			return domain.Principal{}, err
		}
		principal.Admin = admin
	}

	ban, err := q.Bans().Get(ctx, ref.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return domain.Principal{}, err
	case ban.Active(e.clock.Now()):
		return domain.Principal{}, domain.Fail(domain.ErrBanned, "account is banned")
	}
	return principal, nil
}

func (e *Executor) invoke(ctx context.Context, h Handler, c *Context, cmd Command) (resp Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.Fail(domain.ErrIO, "internal failure").WithCause(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h(ctx, c, cmd)
}

func (e *Executor) fail(log *zap.Logger, err error) Response {
	f := Classify(err)
	fields := []zap.Field{zap.String("code", string(f.Code)), zap.Int("status", f.Status)}
	if f.Cause != nil {
		fields = append(fields, zap.NamedError("cause", f.Cause))
	}
	if f.Status >= 500 {
		log.Error("command failed", fields...)
	} else {
		log.Info("command rejected", fields...)
	}
	return failure(f)
}

func failure(f *domain.Failure) Response {
	return Response{Error: &ErrorBody{Code: f.Code, Status: f.Status, Message: f.Message}}
}
