package postgres

import (
	"context"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/identity-server/internal/core/domain"
)

const (
	bansTable       = "identity.bans"
	challengesTable = "identity.email_challenges"
	resetsTable     = "identity.password_resets"
	auditTable      = "identity.audit_events"
	loginsTable     = "identity.login_records"
)

type banQueries struct{ t *Tx }

func (q banQueries) Put(ctx context.Context, ban domain.Ban) error {
	stmt := q.t.builder.Insert(bansTable).
		Columns("subject_id", "reason", "expires").
		Values(ban.SubjectID, ban.Reason, ban.Expires).
		Suffix("ON CONFLICT (subject_id) DO UPDATE SET reason = EXCLUDED.reason, expires = EXCLUDED.expires")
	_, err := q.t.exec(ctx, "put ban", stmt)
	return err
}

func (q banQueries) Get(ctx context.Context, subject uuid.UUID) (*domain.Ban, error) {
	row, err := q.t.queryRow(ctx, "select ban", q.t.builder.
		Select("subject_id", "reason", "expires").
		From(bansTable).
		Where(squirrel.Eq{"subject_id": subject}))
	if err != nil {
		return nil, err
	}
	var ban domain.Ban
	if err := row.Scan(&ban.SubjectID, &ban.Reason, &ban.Expires); err != nil {
		return nil, storageError("scan ban", err)
	}
	return &ban, nil
}

func (q banQueries) Delete(ctx context.Context, subject uuid.UUID) error {
	return expectAffected(q.t.exec(ctx, "delete ban", q.t.builder.Delete(bansTable).Where(squirrel.Eq{"subject_id": subject})))
}

type challengeQueries struct{ t *Tx }

var challengeColumns = []string{"id", "owner_id", "owner_kind", "email", "operation", "permit_hash", "deny_hash", "time_created", "expires"}

func (q challengeQueries) Create(ctx context.Context, c domain.EmailChallenge) error {
	stmt := q.t.builder.Insert(challengesTable).
		Columns(challengeColumns...).
		Values(c.ID, c.OwnerID, string(c.OwnerKind), c.Email, string(c.Operation), c.PermitHash, c.DenyHash, c.CreatedAt, c.ExpiresAt)
	_, err := q.t.exec(ctx, "insert email challenge", stmt)
	return err
}

func (q challengeQueries) one(ctx context.Context, where squirrel.Sqlizer) (*domain.EmailChallenge, error) {
	row, err := q.t.queryRow(ctx, "select email challenge", q.t.builder.Select(challengeColumns...).From(challengesTable).Where(where))
	if err != nil {
		return nil, err
	}
	var (
		c        domain.EmailChallenge
		kind, op string
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &kind, &c.Email, &op, &c.PermitHash, &c.DenyHash, &c.CreatedAt, &c.ExpiresAt); err != nil {
		return nil, storageError("scan email challenge", err)
	}
	c.OwnerKind = domain.PrincipalKind(kind)
	c.Operation = domain.EmailOperation(op)
	return &c, nil
}

func (q challengeQueries) GetByPermitHash(ctx context.Context, hash string) (*domain.EmailChallenge, error) {
	return q.one(ctx, squirrel.Eq{"permit_hash": hash})
}

func (q challengeQueries) GetByDenyHash(ctx context.Context, hash string) (*domain.EmailChallenge, error) {
	return q.one(ctx, squirrel.Eq{"deny_hash": hash})
}

func (q challengeQueries) Delete(ctx context.Context, id uuid.UUID) error {
	return expectAffected(q.t.exec(ctx, "delete email challenge", q.t.builder.Delete(challengesTable).Where(squirrel.Eq{"id": id})))
}

func (q challengeQueries) DeleteMatching(ctx context.Context, owner uuid.UUID, op domain.EmailOperation, email string) (int, error) {
	n, err := q.t.exec(ctx, "delete matching email challenges", q.t.builder.Delete(challengesTable).Where(squirrel.Eq{
		"owner_id":  owner,
		"operation": string(op),
		"email":     email,
	}))
	return int(n), err
}

type resetQueries struct{ t *Tx }

func (q resetQueries) Create(ctx context.Context, r domain.PasswordReset) error {
	stmt := q.t.builder.Insert(resetsTable).
		Columns("id", "user_id", "token_hash", "time_created", "expires").
		Values(r.ID, r.UserID, r.TokenHash, r.CreatedAt, r.ExpiresAt)
	_, err := q.t.exec(ctx, "insert password reset", stmt)
	return err
}

func (q resetQueries) GetByTokenHash(ctx context.Context, hash string) (*domain.PasswordReset, error) {
	row, err := q.t.queryRow(ctx, "select password reset", q.t.builder.
		Select("id", "user_id", "token_hash", "time_created", "expires").
		From(resetsTable).
		Where(squirrel.Eq{"token_hash": hash}))
	if err != nil {
		return nil, err
	}
	var r domain.PasswordReset
	if err := row.Scan(&r.ID, &r.UserID, &r.TokenHash, &r.CreatedAt, &r.ExpiresAt); err != nil {
		return nil, storageError("scan password reset", err)
	}
	return &r, nil
}

func (q resetQueries) Delete(ctx context.Context, id uuid.UUID) error {
	return expectAffected(q.t.exec(ctx, "delete password reset", q.t.builder.Delete(resetsTable).Where(squirrel.Eq{"id": id})))
}

func (q resetQueries) DeleteForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := q.t.exec(ctx, "delete password resets", q.t.builder.Delete(resetsTable).Where(squirrel.Eq{"user_id": userID}))
	return int(n), err
}

type auditQueries struct{ t *Tx }

func (q auditQueries) Append(ctx context.Context, e domain.AuditEvent) error {
	stmt := q.t.builder.Insert(auditTable).
		Columns("id", "actor_id", "time", "type", "message").
		Values(e.ID, e.ActorID, e.Time, e.Type, e.Message)
	_, err := q.t.exec(ctx, "append audit event", stmt)
	return err
}

func (q auditQueries) Search(ctx context.Context, params domain.SearchParameters, seek domain.SeekKey) ([]domain.AuditEvent, error) {
	base := q.t.builder.Select("a.id", "a.actor_id", "a.time", "a.type", "a.message").From(auditTable + " a").Where(auditFilter(params))
	stmt, err := seekPage(base, params, auditSortColumns, seek)
	if err != nil {
		return nil, err
	}
	rows, err := q.t.query(ctx, "search audit events", stmt)
	if err != nil {
		return nil, err
	}
	return collect(rows, "scan audit events", func(row pgx.CollectableRow) (domain.AuditEvent, error) {
		var e domain.AuditEvent
		err := row.Scan(&e.ID, &e.ActorID, &e.Time, &e.Type, &e.Message)
		return e, err
	})
}

func (q auditQueries) Count(ctx context.Context, params domain.SearchParameters) (int64, error) {
	return q.t.count(ctx, "count audit events", q.t.builder.Select("count(*)").From(auditTable+" a").Where(auditFilter(params)))
}

type loginQueries struct{ t *Tx }

// Append stores record and trims the subject's history to the newest keep entries.
func (q loginQueries) Append(ctx context.Context, r domain.LoginRecord, keep int) error {
	stmt := q.t.builder.Insert(loginsTable).
		Columns("subject_id", "time", "host", "user_agent").
		Values(r.SubjectID, r.Time, r.Host, r.UserAgent)
	if _, err := q.t.exec(ctx, "append login record", stmt); err != nil {
		return err
	}
	if keep <= 0 {
		return nil
	}
	trim := q.t.builder.Delete(loginsTable).
		Where(squirrel.Eq{"subject_id": r.SubjectID}).
		Where(squirrel.Expr(
			"seq NOT IN (SELECT seq FROM identity.login_records WHERE subject_id = ? ORDER BY time DESC, seq DESC LIMIT ?)",
			r.SubjectID, keep,
		))
	_, err := q.t.exec(ctx, "trim login records", trim)
	return err
}

func (q loginQueries) List(ctx context.Context, subject uuid.UUID, limit int) ([]domain.LoginRecord, error) {
	stmt := q.t.builder.Select("subject_id", "time", "host", "user_agent").
		From(loginsTable).
		Where(squirrel.Eq{"subject_id": subject}).
		OrderBy("time DESC", "seq DESC")
	if limit > 0 {
		stmt = stmt.Limit(uint64(limit))
	}
	rows, err := q.t.query(ctx, "list login records", stmt)
	if err != nil {
		return nil, err
	}
	return collect(rows, "scan login records", func(row pgx.CollectableRow) (domain.LoginRecord, error) {
		var (
			r  domain.LoginRecord
			at time.Time
		)
		err := row.Scan(&r.SubjectID, &at, &r.Host, &r.UserAgent)
		r.Time = at.UTC()
		return r, err
	})
}
