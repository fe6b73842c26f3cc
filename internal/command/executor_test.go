package command

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/infra/telemetry"
	"github.com/arklim/identity-server/internal/repository"
	"github.com/arklim/identity-server/internal/repository/memory"
)

type testCommand struct {
	tag  Tag
	name string
}

func (c testCommand) Tag() Tag { return c.tag }

type publisherStub struct {
	events []domain.AuditEvent
	err    error
}

func (p *publisherStub) PublishAudit(_ context.Context, event domain.AuditEvent) error {
	p.events = append(p.events, event)
	return p.err
}

var epoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func createUser(ctx context.Context, c *Context, cmd Command) error {
	user := domain.User{Identity: domain.Identity{
		ID:     uuid.New(),
		Name:   cmd.(testCommand).name,
		Emails: []string{cmd.(testCommand).name + "@example.com"},
	}}
	return c.Queries.Users().Create(ctx, user)
}

func testCatalog() Catalog {
	catalog := Catalog{}
	catalog.Register("create", Anonymous, func(ctx context.Context, c *Context, cmd Command) (Response, error) {
		if err := createUser(ctx, c, cmd); err != nil {
			return Response{}, err
		}
		if err := c.Audit(ctx, uuid.Nil, domain.AuditUserCreated, "created"); err != nil {
			return Response{}, err
		}
		return OK("created"), nil
	})
	catalog.Register("create-then-reject", Anonymous, func(ctx context.Context, c *Context, cmd Command) (Response, error) {
		if err := createUser(ctx, c, cmd); err != nil {
			return Response{}, err
		}
		return Reject(domain.ErrHTTPParameterInvalid, "rejected after write"), nil
	})
	catalog.Register("create-then-fail", Anonymous, func(ctx context.Context, c *Context, cmd Command) (Response, error) {
		if err := createUser(ctx, c, cmd); err != nil {
			return Response{}, err
		}
		return Response{}, domain.Fail(domain.ErrSecurityPolicyDenied, "no")
	})
	catalog.Register("create-then-panic", Anonymous, func(ctx context.Context, c *Context, cmd Command) (Response, error) {
		if err := createUser(ctx, c, cmd); err != nil {
			return Response{}, err
		}
		panic("boom")
	})
	catalog.Register("whoami", UserOnly, func(_ context.Context, c *Context, _ Command) (Response, error) {
		return OK(c.Principal.ID()), nil
	})
	return catalog
}

func newTestExecutor(t *testing.T, store port.Transactor, opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewFake(epoch)
	}
	return NewExecutor(store, testCatalog(), opts)
}

func userExists(t *testing.T, store *memory.Store, name string) bool {
	exists := false
	store.View(func(q port.Queries) {
		_, err := q.Users().GetByName(context.Background(), name)
		exists = err == nil
	})
	return exists
}

func TestExecuteCommitsSuccessfulResponse(t *testing.T) {
	store := memory.NewStore()
	publisher := &publisherStub{}
	e := newTestExecutor(t, store, Options{Publisher: publisher})

	resp := e.Execute(context.Background(), Request{Command: testCommand{tag: "create", name: "ada"}})
	if resp.IsError() {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	if resp.RequestID == uuid.Nil {
		t.Fatal("expected a generated request id")
	}
	if !userExists(t, store, "ada") {
		t.Fatal("expected committed user")
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != domain.AuditUserCreated {
		t.Fatalf("expected audit event published after commit, got %v", publisher.events)
	}
}

func TestExecuteErrorShapedResponseDoesNotCommit(t *testing.T) {
	store := memory.NewStore()
	publisher := &publisherStub{}
	e := newTestExecutor(t, store, Options{Publisher: publisher})

	id := uuid.New()
	resp := e.Execute(context.Background(), Request{Command: testCommand{tag: "create-then-reject", name: "ada"}, RequestID: id, CorrelationID: "c-1"})
	if !resp.IsError() || resp.Error.Code != domain.ErrHTTPParameterInvalid {
		t.Fatalf("expected rejection, got %+v", resp)
	}
	if resp.RequestID != id || resp.CorrelationID != "c-1" {
		t.Fatalf("response must carry the request ids, got %s/%s", resp.RequestID, resp.CorrelationID)
	}
	if userExists(t, store, "ada") {
		t.Fatal("error-shaped response must not commit")
	}
}

func TestExecuteRollsBackFailures(t *testing.T) {
	cases := []struct {
		tag  Tag
		code domain.ErrorCode
	}{
		{"create-then-fail", domain.ErrSecurityPolicyDenied},
		{"create-then-panic", domain.ErrIO},
	}
	for _, tc := range cases {
		t.Run(string(tc.tag), func(t *testing.T) {
			store := memory.NewStore()
			e := newTestExecutor(t, store, Options{})

			resp := e.Execute(context.Background(), Request{Command: testCommand{tag: tc.tag, name: "ada"}})
			if !resp.IsError() || resp.Error.Code != tc.code {
				t.Fatalf("expected %s, got %+v", tc.code, resp)
			}
			if userExists(t, store, "ada") {
				t.Fatal("failed command must not commit")
			}
		})
	}
}

func TestExecuteUniqueViolation(t *testing.T) {
	store := memory.NewStore()
	e := newTestExecutor(t, store, Options{})

	if resp := e.Execute(context.Background(), Request{Command: testCommand{tag: "create", name: "ada"}}); resp.IsError() {
		t.Fatalf("first create: %+v", resp.Error)
	}
	resp := e.Execute(context.Background(), Request{Command: testCommand{tag: "create", name: "ada"}})
	if !resp.IsError() || resp.Error.Code != domain.ErrSQLUnique || resp.Error.Status != 409 {
		t.Fatalf("expected unique violation, got %+v", resp)
	}
}

func TestExecuteUnknownTag(t *testing.T) {
	store := memory.NewStore()
	e := newTestExecutor(t, store, Options{})

	resp := e.Execute(context.Background(), Request{Command: testCommand{tag: "nope"}})
	if !resp.IsError() || resp.Error.Code != domain.ErrProtocol {
		t.Fatalf("expected protocol error, got %+v", resp)
	}
	resp = e.Execute(context.Background(), Request{})
	if !resp.IsError() || resp.Error.Code != domain.ErrProtocol {
		t.Fatalf("expected protocol error for a missing command, got %+v", resp)
	}
}

func TestExecuteAuthenticatesPrincipal(t *testing.T) {
	store := memory.NewStore()
	clk := clock.NewFake(epoch)
	e := newTestExecutor(t, store, Options{Clock: clk})
	ctx := context.Background()

	user := domain.User{Identity: domain.Identity{ID: uuid.New(), Name: "ada", Emails: []string{"ada@example.com"}}}
	tx, _ := store.Begin(ctx)
	if err := tx.Users().Create(ctx, user); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	run := func(ref *PrincipalRef) Response {
		return e.Execute(ctx, Request{Command: testCommand{tag: "whoami"}, Principal: ref})
	}

	if resp := run(nil); resp.Error == nil || resp.Error.Code != domain.ErrAuthentication {
		t.Fatalf("expected authentication error without principal, got %+v", resp)
	}
	if resp := run(&PrincipalRef{ID: user.ID, Kind: domain.PrincipalAdmin}); resp.Error == nil || resp.Error.Code != domain.ErrAuthentication {
		t.Fatalf("expected authentication error for wrong kind, got %+v", resp)
	}
	if resp := run(&PrincipalRef{ID: uuid.New(), Kind: domain.PrincipalUser}); resp.Error == nil || resp.Error.Code != domain.ErrAuthentication {
		t.Fatalf("expected authentication error for unknown principal, got %+v", resp)
	}
	resp := run(&PrincipalRef{ID: user.ID, Kind: domain.PrincipalUser})
	if resp.IsError() || resp.Body != user.ID {
		t.Fatalf("expected principal id, got %+v", resp)
	}

	expires := clk.Now().Add(time.Second)
	tx, _ = store.Begin(ctx)
	_ = tx.Bans().Put(ctx, domain.Ban{SubjectID: user.ID, Reason: "spam", Expires: &expires})
	_ = tx.Commit(ctx)

	if resp := run(&PrincipalRef{ID: user.ID, Kind: domain.PrincipalUser}); resp.Error == nil || resp.Error.Code != domain.ErrBanned {
		t.Fatalf("expected banned, got %+v", resp)
	}
	clk.Advance(2 * time.Second)
	if resp := run(&PrincipalRef{ID: user.ID, Kind: domain.PrincipalUser}); resp.IsError() {
		t.Fatalf("expired ban must be inert, got %+v", resp.Error)
	}
}

func TestExecutePostCommitFailureIsLoggedOnly(t *testing.T) {
	store := memory.NewStore()
	core, logs := observer.New(zap.WarnLevel)
	e := newTestExecutor(t, store, Options{Publisher: &publisherStub{err: errors.New("broker down")}, Logger: zap.New(core)})

	resp := e.Execute(context.Background(), Request{Command: testCommand{tag: "create", name: "ada"}})
	if resp.IsError() {
		t.Fatalf("post-commit failure must not fail the command: %+v", resp.Error)
	}
	if logs.FilterMessage("post-commit action failed").Len() != 1 {
		t.Fatalf("expected post-commit warning, got %v", logs.All())
	}
}

func TestExecuteDelaysRouteAfterTransaction(t *testing.T) {
	store := memory.NewStore()
	clk := clock.NewFake(epoch)
	catalog := Catalog{}
	catalog.Register("slow", Anonymous, func(ctx context.Context, c *Context, cmd Command) (Response, error) {
		if cmd.(testCommand).name == "" {
			return Response{}, domain.Fail(domain.ErrAuthentication, "denied")
		}
		return OK(nil), createUser(ctx, c, cmd)
	}, WithDelay(time.Second))
	e := NewExecutor(store, catalog, Options{Clock: clk, Logger: zaptest.NewLogger(t)})

	if resp := e.Execute(context.Background(), Request{Command: testCommand{tag: "slow", name: "ada"}}); resp.IsError() {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	if resp := e.Execute(context.Background(), Request{Command: testCommand{tag: "slow"}}); !resp.IsError() {
		t.Fatal("expected a failure")
	}
	if clk.Slept() != 2*time.Second {
		t.Fatalf("expected the delay on both outcomes, slept %s", clk.Slept())
	}

	if !userExists(t, store, "ada") {
		t.Fatal("expected the delayed success to commit")
	}
}

func TestExecuteRecordsMetrics(t *testing.T) {
	metrics := telemetry.NewMetrics()
	e := newTestExecutor(t, memory.NewStore(), Options{Observer: metrics})

	e.Execute(context.Background(), Request{Command: testCommand{tag: "create", name: "ada"}})
	e.Execute(context.Background(), Request{Command: testCommand{tag: "nope"}})

	count, err := testutil.GatherAndCount(metrics.Registry, "identity_commands_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two command series, got %d", count)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code domain.ErrorCode
	}{
		{"failure passes through", domain.Fail(domain.ErrBanned, "x"), domain.ErrBanned},
		{"pg unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), domain.ErrSQLUnique},
		{"repository unique", repository.ErrUnique, domain.ErrSQLUnique},
		{"pg other", &pgconn.PgError{Code: "40001"}, domain.ErrSQL},
		{"storage", fmt.Errorf("%w: dial", repository.ErrStorage), domain.ErrSQL},
		{"mail", fmt.Errorf("send: %w", port.ErrMail), domain.ErrMailSystemFailure},
		{"cancelled", context.Canceled, domain.ErrIO},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), domain.ErrIO},
		{"unknown", errors.New("boom"), domain.ErrIO},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := Classify(tc.err)
			if f.Code != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, f.Code)
			}
			if f.Status != tc.code.DefaultStatus() {
				t.Fatalf("expected status %d, got %d", tc.code.DefaultStatus(), f.Status)
			}
		})
	}
	if Classify(nil) != nil {
		t.Fatal("nil error must classify to nil")
	}
}
