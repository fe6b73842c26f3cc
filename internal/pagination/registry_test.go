package pagination

import (
	"testing"
	"time"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/infra/clock"
)

type gaugeSpy struct{ last int }

func (g *gaugeSpy) SetPaginators(n int) { g.last = n }

func TestRegistrySeparatesSessions(t *testing.T) {
	gauge := &gaugeSpy{}
	r := NewRegistry(clock.NewFake(time.Unix(0, 0)), time.Minute, gauge)

	a := New(newTable(1).source(), domain.SearchParameters{})
	b := New(newTable(1).source(), domain.SearchParameters{})
	Put(r, "session-a", KindUsers, a)
	Put(r, "session-b", KindUsers, b)

	got, ok := Lookup[testRow](r, "session-a", KindUsers)
	if !ok || got != a {
		t.Fatal("expected session-a paginator")
	}
	if _, ok := Lookup[testRow](r, "session-a", KindAdmins); ok {
		t.Fatal("kinds must not share paginators")
	}
	if gauge.last != 2 {
		t.Fatalf("expected gauge 2, got %d", gauge.last)
	}

	replacement := New(newTable(2).source(), domain.SearchParameters{})
	Put(r, "session-a", KindUsers, replacement)
	if got, _ := Lookup[testRow](r, "session-a", KindUsers); got != replacement {
		t.Fatal("expected the newer search to replace the older one")
	}
	if got, _ := Lookup[testRow](r, "session-b", KindUsers); got != b {
		t.Fatal("replacing one session must not affect another")
	}
	if gauge.last != 2 {
		t.Fatalf("expected gauge 2 after replacement, got %d", gauge.last)
	}
}

func TestRegistryExpiresIdleSessions(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	r := NewRegistry(clk, time.Minute, nil)

	Put(r, "s", KindAudit, New(newTable(1).source(), domain.SearchParameters{}))

	clk.Advance(45 * time.Second)
	if _, ok := Lookup[testRow](r, "s", KindAudit); !ok {
		t.Fatal("expected paginator before idle timeout")
	}
	clk.Advance(45 * time.Second)
	if _, ok := Lookup[testRow](r, "s", KindAudit); !ok {
		t.Fatal("lookup must refresh the idle timer")
	}
	clk.Advance(61 * time.Second)
	if _, ok := Lookup[testRow](r, "s", KindAudit); ok {
		t.Fatal("expected idle paginator to expire")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistryLookupWrongType(t *testing.T) {
	r := NewRegistry(nil, 0, nil)
	Put(r, "s", KindUsers, New(newTable(1).source(), domain.SearchParameters{}))
	if _, ok := Lookup[nullRow](r, "s", KindUsers); ok {
		t.Fatal("lookup with a different row type must miss")
	}
}
