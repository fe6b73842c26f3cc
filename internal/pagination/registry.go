package pagination

import (
	"sync"
	"time"

	"github.com/arklim/identity-server/internal/infra/clock"
)

// Kind names the entity a paging session searches.
type Kind string

const (
	KindUsers  Kind = "users"
	KindAdmins Kind = "admins"
	KindAudit  Kind = "audit"
)

// Gauge receives the number of live paging sessions.
type Gauge interface {
	SetPaginators(n int)
}

type registryKey struct {
	session string
	kind    Kind
}

type registryEntry struct {
	paginator any
	touched   time.Time
}

// Registry holds live paginators keyed by client session and search kind. Entries
// idle for longer than the timeout are dropped on access.
type Registry struct {
	mu      sync.Mutex
	entries map[registryKey]*registryEntry
	clock   clock.Clock
	idle    time.Duration
	gauge   Gauge
}

// NewRegistry constructs a Registry. A non-positive idle timeout keeps entries until replaced.
func NewRegistry(clk clock.Clock, idle time.Duration, gauge Gauge) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	return &Registry{
		entries: make(map[registryKey]*registryEntry),
		clock:   clk,
		idle:    idle,
		gauge:   gauge,
	}
}

// Put stores p for the session, replacing any earlier search of the same kind.
func Put[T Row](r *Registry, session string, kind Kind, p *Paginator[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	r.sweepLocked(now)
	r.entries[registryKey{session, kind}] = &registryEntry{paginator: p, touched: now}
	r.report()
}

// Lookup returns the live paginator for the session, refreshing its idle timer.
func Lookup[T Row](r *Registry, session string, kind Kind) (*Paginator[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	r.sweepLocked(now)
	entry, ok := r.entries[registryKey{session, kind}]
	if !ok {
		return nil, false
	}
	p, ok := entry.paginator.(*Paginator[T])
	if !ok {
		return nil, false
	}
	entry.touched = now
	return p, true
}

// Len returns the number of live paginators.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) sweepLocked(now time.Time) {
	if r.idle <= 0 {
		return
	}
	removed := false
	for key, entry := range r.entries {
		if now.Sub(entry.touched) > r.idle {
			delete(r.entries, key)
			removed = true
		}
	}
	if removed {
		r.report()
	}
}

func (r *Registry) report() {
	if r.gauge != nil {
		r.gauge.SetPaginators(len(r.entries))
	}
}
