// Package postgres implements the storage query facade on PostgreSQL. Statements are
// built with squirrel and run on the transaction opened by Store.Begin.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/repository"
)

//go:embed schema.sql
var schema string

const pgUniqueViolation = "23505"

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgBeginner interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store opens transactions on a pgx pool.
type Store struct {
	pool    *pgxpool.Pool
	db      pgBeginner
	builder squirrel.StatementBuilderType
}

// NewStore runs transactions on pool. Closing the store closes the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return newStore(pool)
}

func newStore(db pgBeginner) *Store {
	s := &Store{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := db.(*pgxpool.Pool); ok {
		s.pool = pool
	}
	return s
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Migrate creates the schema when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return storageError("apply schema", err)
	}
	return nil
}

// Close releases resources associated with the store.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Begin opens a transaction.
func (s *Store) Begin(ctx context.Context) (port.Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, storageError("begin", err)
	}
	return &Tx{tx: tx, builder: s.builder}, nil
}

// Tx binds the query facades to one pgx transaction.
type Tx struct {
	tx      pgx.Tx
	builder squirrel.StatementBuilderType
}

// Commit commits the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return storageError("commit", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return storageError("rollback", err)
	}
	return nil
}

func (t *Tx) Users() port.UserQueries                     { return userQueries{t} }
func (t *Tx) Admins() port.AdminQueries                   { return adminQueries{t} }
func (t *Tx) Bans() port.BanQueries                       { return banQueries{t} }
func (t *Tx) EmailChallenges() port.EmailChallengeQueries { return challengeQueries{t} }
func (t *Tx) PasswordResets() port.PasswordResetQueries   { return resetQueries{t} }
func (t *Tx) Audit() port.AuditQueries                    { return auditQueries{t} }
func (t *Tx) LoginRecords() port.LoginRecordQueries       { return loginQueries{t} }

// exec runs a built statement and returns the affected row count.
func (t *Tx) exec(ctx context.Context, op string, stmt squirrel.Sqlizer) (int64, error) {
	sql, args, err := stmt.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s sql: %w", op, err)
	}
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, storageError(op, err)
	}
	return tag.RowsAffected(), nil
}

func (t *Tx) queryRow(ctx context.Context, op string, stmt squirrel.Sqlizer) (pgx.Row, error) {
	sql, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s sql: %w", op, err)
	}
	return t.tx.QueryRow(ctx, sql, args...), nil
}

func (t *Tx) query(ctx context.Context, op string, stmt squirrel.Sqlizer) (pgx.Rows, error) {
	sql, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s sql: %w", op, err)
	}
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageError(op, err)
	}
	return rows, nil
}

func (t *Tx) count(ctx context.Context, op string, stmt squirrel.Sqlizer) (int64, error) {
	row, err := t.queryRow(ctx, op, stmt)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, storageError(op, err)
	}
	return n, nil
}

// storageError maps pgx failures onto the repository sentinels.
func storageError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w: %s", op, repository.ErrUnique, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w: %w", op, repository.ErrStorage, err)
}

func expectAffected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
