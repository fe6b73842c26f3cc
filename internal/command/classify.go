package command

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
	"github.com/arklim/identity-server/internal/repository"
)

const pgUniqueViolation = "23505"

// Classify converts any error into a taxonomy failure. Failures pass through
// unchanged; everything else keeps the original error as its cause.
func Classify(err error) *domain.Failure {
	if err == nil {
		return nil
	}

	var failure *domain.Failure
	if errors.As(err, &failure) {
		return failure
	}

	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation, errors.Is(err, repository.ErrUnique):
		return domain.Fail(domain.ErrSQLUnique, "a record with the same unique value already exists").WithCause(err)
	case errors.Is(err, port.ErrMail):
		return domain.Fail(domain.ErrMailSystemFailure, "mail could not be delivered").WithCause(err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.Fail(domain.ErrIO, "request was cancelled").WithCause(err)
	case errors.As(err, &pgErr), errors.Is(err, repository.ErrStorage), errors.Is(err, repository.ErrNullOrdering),
		errors.Is(err, repository.ErrNotFound), errors.Is(err, pgx.ErrNoRows), errors.Is(err, pgx.ErrTxClosed):
		return domain.Fail(domain.ErrSQL, "storage failure").WithCause(err)
	default:
		return domain.Fail(domain.ErrIO, "internal failure").WithCause(err)
	}
}
