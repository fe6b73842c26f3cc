package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/repository"
)

type banQueries struct{ tx *Tx }

func (q banQueries) Put(_ context.Context, ban domain.Ban) error {
	q.tx.write()
	if ban.Expires != nil {
		expires := *ban.Expires
		ban.Expires = &expires
	}
	q.tx.data.bans[ban.SubjectID] = ban
	return nil
}

func (q banQueries) Get(_ context.Context, subject uuid.UUID) (*domain.Ban, error) {
	ban, ok := q.tx.data.bans[subject]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &ban, nil
}

func (q banQueries) Delete(_ context.Context, subject uuid.UUID) error {
	q.tx.write()
	if _, ok := q.tx.data.bans[subject]; !ok {
		return repository.ErrNotFound
	}
	delete(q.tx.data.bans, subject)
	return nil
}

type challengeQueries struct{ tx *Tx }

func (q challengeQueries) Create(_ context.Context, challenge domain.EmailChallenge) error {
	q.tx.write()
	for _, c := range q.tx.data.challenges {
		if c.ID == challenge.ID || c.PermitHash == challenge.PermitHash || c.DenyHash == challenge.DenyHash {
			return fmt.Errorf("%w: email challenge", repository.ErrUnique)
		}
	}
	q.tx.data.challenges[challenge.ID] = challenge
	return nil
}

func (q challengeQueries) GetByPermitHash(_ context.Context, hash string) (*domain.EmailChallenge, error) {
	for _, c := range q.tx.data.challenges {
		if c.PermitHash == hash {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (q challengeQueries) GetByDenyHash(_ context.Context, hash string) (*domain.EmailChallenge, error) {
	for _, c := range q.tx.data.challenges {
		if c.DenyHash == hash {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (q challengeQueries) Delete(_ context.Context, id uuid.UUID) error {
	q.tx.write()
	if _, ok := q.tx.data.challenges[id]; !ok {
		return repository.ErrNotFound
	}
	delete(q.tx.data.challenges, id)
	return nil
}

func (q challengeQueries) DeleteMatching(_ context.Context, owner uuid.UUID, op domain.EmailOperation, email string) (int, error) {
	q.tx.write()
	removed := 0
	for id, c := range q.tx.data.challenges {
		if c.OwnerID == owner && c.Operation == op && strings.EqualFold(c.Email, email) {
			delete(q.tx.data.challenges, id)
			removed++
		}
	}
	return removed, nil
}

type resetQueries struct{ tx *Tx }

func (q resetQueries) Create(_ context.Context, reset domain.PasswordReset) error {
	q.tx.write()
	for _, r := range q.tx.data.resets {
		if r.ID == reset.ID || r.TokenHash == reset.TokenHash {
			return fmt.Errorf("%w: password reset", repository.ErrUnique)
		}
	}
	q.tx.data.resets[reset.ID] = reset
	return nil
}

func (q resetQueries) GetByTokenHash(_ context.Context, hash string) (*domain.PasswordReset, error) {
	for _, r := range q.tx.data.resets {
		if r.TokenHash == hash {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (q resetQueries) Delete(_ context.Context, id uuid.UUID) error {
	q.tx.write()
	if _, ok := q.tx.data.resets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(q.tx.data.resets, id)
	return nil
}

func (q resetQueries) DeleteForUser(_ context.Context, userID uuid.UUID) (int, error) {
	q.tx.write()
	removed := 0
	for id, r := range q.tx.data.resets {
		if r.UserID == userID {
			delete(q.tx.data.resets, id)
			removed++
		}
	}
	return removed, nil
}

type auditQueries struct{ tx *Tx }

func (q auditQueries) Append(_ context.Context, event domain.AuditEvent) error {
	q.tx.write()
	q.tx.data.audit = append(q.tx.data.audit, event)
	return nil
}

func (q auditQueries) Search(_ context.Context, params domain.SearchParameters, seek domain.SeekKey) ([]domain.AuditEvent, error) {
	rows := make([]domain.AuditEvent, 0, len(q.tx.data.audit))
	for _, e := range q.tx.data.audit {
		if matchesAudit(e, params) {
			rows = append(rows, e)
		}
	}
	return page(rows, params, seek)
}

func (q auditQueries) Count(_ context.Context, params domain.SearchParameters) (int64, error) {
	var n int64
	for _, e := range q.tx.data.audit {
		if matchesAudit(e, params) {
			n++
		}
	}
	return n, nil
}

func matchesAudit(e domain.AuditEvent, params domain.SearchParameters) bool {
	if !params.TimeCreated.Contains(e.Time) {
		return false
	}
	query := strings.ToLower(strings.TrimSpace(params.Query))
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Type), query) || strings.Contains(strings.ToLower(e.Message), query)
}

type loginQueries struct{ tx *Tx }

func (q loginQueries) Append(_ context.Context, record domain.LoginRecord, keep int) error {
	q.tx.write()
	records := append(q.tx.data.logins[record.SubjectID], record)
	sort.SliceStable(records, func(i, j int) bool { return records[i].Time.After(records[j].Time) })
	if keep > 0 && len(records) > keep {
		records = records[:keep]
	}
	q.tx.data.logins[record.SubjectID] = records
	return nil
}

func (q loginQueries) List(_ context.Context, subject uuid.UUID, limit int) ([]domain.LoginRecord, error) {
	records := q.tx.data.logins[subject]
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return append([]domain.LoginRecord(nil), records...), nil
}
