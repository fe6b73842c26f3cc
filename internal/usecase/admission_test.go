package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/repository/memory"
)

func newAdmission(t *testing.T, clk clock.Clock, limiter port.RateLimiter, observer LoginObserver) *AdmissionController {
	return NewAdmissionController(limiter, plainHasher{}, clk, AdmissionSettings{HistoryLimit: 2}, observer, zaptest.NewLogger(t))
}

func login(t *testing.T, store *memory.Store, a *AdmissionController, name, password string) (domain.Principal, error) {
	var principal domain.Principal
	err := inTx(t, store, func(q port.Queries) error {
		var err error
		principal, err = a.Login(context.Background(), q, LoginInput{
			Kind:          domain.PrincipalUser,
			Name:          name,
			Password:      password,
			RemoteAddress: "203.0.113.7",
			UserAgent:     "test-agent",
		})
		return err
	})
	return principal, err
}

func TestLoginRecordsCappedHistory(t *testing.T) {
	store := memory.NewStore()
	clk := newFakeClock()
	user := seedUser(t, store, "ada", "correct horse", "ada@example.com")
	a := newAdmission(t, clk, nil, nil)

	for i := 0; i < 3; i++ {
		principal, err := login(t, store, a, "ada", "correct horse")
		if err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
		if principal.ID() != user.ID || principal.Kind() != domain.PrincipalUser {
			t.Fatalf("unexpected principal %+v", principal)
		}
	}

	store.View(func(q port.Queries) {
		records, err := q.LoginRecords().List(context.Background(), user.ID, 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected history capped at 2, got %d", len(records))
		}
		if records[0].Host != "203.0.113.7" || records[0].UserAgent != "test-agent" {
			t.Fatalf("unexpected record %+v", records[0])
		}
		if !records[0].Time.After(records[1].Time) {
			t.Fatal("expected newest record first")
		}
	})
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	store := memory.NewStore()
	seedUser(t, store, "ada", "correct horse", "ada@example.com")
	a := newAdmission(t, newFakeClock(), nil, nil)

	_, unknown := login(t, store, a, "grace", "correct horse")
	_, wrong := login(t, store, a, "ada", "battery staple")

	if !errors.Is(unknown, ErrInvalidCredentials) || !errors.Is(wrong, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v and %v", unknown, wrong)
	}
	if unknown.Error() != wrong.Error() {
		t.Fatalf("failures must read the same: %q vs %q", unknown, wrong)
	}
}

func TestLoginBanSemantics(t *testing.T) {
	cases := []struct {
		name    string
		expires *time.Duration
		banned  bool
	}{
		{"permanent", nil, true},
		{"expires in one second", durationPtr(time.Second), true},
		{"expired one second ago", durationPtr(-time.Second), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewStore()
			clk := newFakeClock()
			user := seedUser(t, store, "ada", "correct horse", "ada@example.com")

			ban := domain.Ban{SubjectID: user.ID, Reason: "spam"}
			if tc.expires != nil {
				at := clk.Now().Add(*tc.expires)
				ban.Expires = &at
			}
			if err := inTx(t, store, func(q port.Queries) error { return q.Bans().Put(context.Background(), ban) }); err != nil {
				t.Fatalf("put ban: %v", err)
			}

			_, err := login(t, store, newAdmission(t, clk, nil, nil), "ada", "correct horse")
			if tc.banned {
				var banErr *BanError
				if !errors.As(err, &banErr) || !errors.Is(err, ErrBanned) {
					t.Fatalf("expected ban error, got %v", err)
				}
				if banErr.Ban.Reason != "spam" {
					t.Fatalf("expected ban reason, got %q", banErr.Ban.Reason)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected login past an expired ban, got %v", err)
			}
		})
	}
}

func TestLoginRateLimitedBeforeLookup(t *testing.T) {
	store := memory.NewStore()
	seedUser(t, store, "ada", "correct horse", "ada@example.com")
	limiter := &limiterStub{allow: false}
	observer := &observerStub{}
	a := newAdmission(t, newFakeClock(), limiter, observer)

	_, err := login(t, store, a, "ada", "correct horse")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "203.0.113.7" {
		t.Fatalf("expected limiter keyed by remote address, got %v", limiter.keys)
	}
	if len(observer.outcomes) != 1 || observer.outcomes[0] != "rate_limited" {
		t.Fatalf("unexpected outcomes %v", observer.outcomes)
	}
}

func durationPtr(d time.Duration) *time.Duration { return &d }
