// Package memory implements the storage ports in process memory. Transactions are
// serialised: Begin waits until the previous transaction ends, works on a private copy
// of the data and publishes it on Commit.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/repository"
)

type state struct {
	users      map[uuid.UUID]domain.User
	admins     map[uuid.UUID]domain.Admin
	bans       map[uuid.UUID]domain.Ban
	challenges map[uuid.UUID]domain.EmailChallenge
	resets     map[uuid.UUID]domain.PasswordReset
	audit      []domain.AuditEvent
	logins     map[uuid.UUID][]domain.LoginRecord
}

func newState() *state {
	return &state{
		users:      make(map[uuid.UUID]domain.User),
		admins:     make(map[uuid.UUID]domain.Admin),
		bans:       make(map[uuid.UUID]domain.Ban),
		challenges: make(map[uuid.UUID]domain.EmailChallenge),
		resets:     make(map[uuid.UUID]domain.PasswordReset),
		logins:     make(map[uuid.UUID][]domain.LoginRecord),
	}
}

func (s *state) clone() *state {
	out := newState()
	for id, u := range s.users {
		out.users[id] = copyUser(u)
	}
	for id, a := range s.admins {
		out.admins[id] = copyAdmin(a)
	}
	for id, b := range s.bans {
		out.bans[id] = b
	}
	for id, c := range s.challenges {
		out.challenges[id] = c
	}
	for id, r := range s.resets {
		out.resets[id] = r
	}
	out.audit = append([]domain.AuditEvent(nil), s.audit...)
	for id, records := range s.logins {
		out.logins[id] = append([]domain.LoginRecord(nil), records...)
	}
	return out
}

// Store is an in-memory port.Transactor.
type Store struct {
	sem     chan struct{}
	mu      sync.RWMutex
	current *state
	writes  atomic.Int64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		sem:     make(chan struct{}, 1),
		current: newState(),
	}
}

// Begin opens a transaction, waiting for the previous one to finish.
func (s *Store) Begin(ctx context.Context) (port.Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: begin: %w", repository.ErrStorage, ctx.Err())
	}

	s.mu.RLock()
	working := s.current.clone()
	s.mu.RUnlock()

	return &Tx{store: s, data: working}, nil
}

// WriteCalls counts every mutating query issued, committed or not.
func (s *Store) WriteCalls() int64 {
	return s.writes.Load()
}

// View runs fn against the committed data outside any transaction.
func (s *Store) View(fn func(q port.Queries)) {
	s.mu.RLock()
	snapshot := s.current.clone()
	s.mu.RUnlock()
	fn(&Tx{store: s, data: snapshot, done: true})
}

// Tx is a Store transaction.
type Tx struct {
	store *Store
	data  *state
	done  bool
}

// Commit publishes the transaction's data.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", repository.ErrStorage)
	}
	if err := ctx.Err(); err != nil {
		t.release()
		return fmt.Errorf("%w: commit: %w", repository.ErrStorage, err)
	}
	t.store.mu.Lock()
	t.store.current = t.data
	t.store.mu.Unlock()
	t.release()
	return nil
}

// Rollback discards the transaction. It is a no-op once the transaction ended.
func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.release()
	return nil
}

func (t *Tx) release() {
	t.done = true
	<-t.store.sem
}

func (t *Tx) write() {
	t.store.writes.Add(1)
}

func (t *Tx) Users() port.UserQueries                     { return userQueries{t} }
func (t *Tx) Admins() port.AdminQueries                   { return adminQueries{t} }
func (t *Tx) Bans() port.BanQueries                       { return banQueries{t} }
func (t *Tx) EmailChallenges() port.EmailChallengeQueries { return challengeQueries{t} }
func (t *Tx) PasswordResets() port.PasswordResetQueries   { return resetQueries{t} }
func (t *Tx) Audit() port.AuditQueries                    { return auditQueries{t} }
func (t *Tx) LoginRecords() port.LoginRecordQueries       { return loginQueries{t} }

func copyIdentity(i domain.Identity) domain.Identity {
	i.Emails = append([]string(nil), i.Emails...)
	return i
}

func copyUser(u domain.User) domain.User {
	u.Identity = copyIdentity(u.Identity)
	return u
}

func copyAdmin(a domain.Admin) domain.Admin {
	a.Identity = copyIdentity(a.Identity)
	perms := make(domain.PermissionSet, len(a.Permissions))
	for p := range a.Permissions {
		perms[p] = struct{}{}
	}
	a.Permissions = perms
	return a
}

// emailTaken reports whether any principal other than self owns email.
func (s *state) emailTaken(email string, self uuid.UUID) bool {
	for id, u := range s.users {
		if id != self && u.HasEmail(email) {
			return true
		}
	}
	for id, a := range s.admins {
		if id != self && a.HasEmail(email) {
			return true
		}
	}
	return false
}

func (s *state) checkEmails(identity domain.Identity) error {
	seen := make(map[string]struct{}, len(identity.Emails))
	for _, email := range identity.Emails {
		key := domain.NormalizeEmail(email)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: email %q listed twice", repository.ErrUnique, email)
		}
		seen[key] = struct{}{}
		if s.emailTaken(email, identity.ID) {
			return fmt.Errorf("%w: email %q", repository.ErrUnique, email)
		}
	}
	return nil
}
