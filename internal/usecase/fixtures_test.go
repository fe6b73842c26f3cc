package usecase

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/repository/memory"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type plainHasher struct{}

func (plainHasher) Hash(password string) (domain.Credential, error) {
	return domain.Credential{Algorithm: "plain", Hash: password}, nil
}

func (plainHasher) Verify(password string, credential domain.Credential) (bool, error) {
	if credential.Algorithm != "plain" {
		return false, errors.New("unexpected algorithm")
	}
	return credential.Hash == password, nil
}

type acceptAllValidator struct{}

func (acceptAllValidator) ValidateFor(string, ...string) error { return nil }

type limiterStub struct {
	allow bool
	keys  []string
}

func (l *limiterStub) Allow(_ context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, nil
}

type composerStub struct {
	challenges []port.EmailChallengeMail
	resets     []port.PasswordResetMail
	err        error
}

func (c *composerStub) EmailChallenge(data port.EmailChallengeMail) (port.Mail, error) {
	if c.err != nil {
		return port.Mail{}, c.err
	}
	c.challenges = append(c.challenges, data)
	return port.Mail{To: data.To, Subject: "challenge"}, nil
}

func (c *composerStub) PasswordReset(data port.PasswordResetMail) (port.Mail, error) {
	if c.err != nil {
		return port.Mail{}, c.err
	}
	c.resets = append(c.resets, data)
	return port.Mail{To: data.To, Subject: "reset"}, nil
}

type senderStub struct {
	sent []port.Mail
	err  error
}

func (s *senderStub) Send(_ context.Context, _ uuid.UUID, m port.Mail) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

type observerStub struct{ outcomes []string }

func (o *observerStub) ObserveLogin(_, outcome string) { o.outcomes = append(o.outcomes, outcome) }

// inTx runs fn in a transaction, committing when it succeeds.
func inTx(t *testing.T, store *memory.Store, fn func(q port.Queries) error) error {
	t.Helper()
	ctx := context.Background()
	tx, err := store.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			t.Fatalf("rollback: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return nil
}

func seedUser(t *testing.T, store *memory.Store, name, password string, emails ...string) domain.User {
	t.Helper()
	user := domain.User{Identity: domain.Identity{
		ID:        uuid.New(),
		Name:      name,
		RealName:  name,
		Emails:    emails,
		Password:  domain.Credential{Algorithm: "plain", Hash: password},
		CreatedAt: testEpoch,
		UpdatedAt: testEpoch,
	}}
	if err := inTx(t, store, func(q port.Queries) error { return q.Users().Create(context.Background(), user) }); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func tokenFrom(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	token := u.Query().Get("token")
	if token == "" {
		t.Fatalf("link %q carries no token", link)
	}
	return token
}

func newFakeClock() *clock.Fake {
	return clock.NewFake(testEpoch)
}
