package pagination

import (
	"context"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
)

// Users searches users ordered by name unless told otherwise.
func Users() Source[domain.User] {
	return Source[domain.User]{
		IDColumn:      domain.ColumnID,
		DefaultColumn: domain.ColumnName,
		Search: func(ctx context.Context, q port.Queries, params domain.SearchParameters, seek domain.SeekKey) ([]domain.User, error) {
			return q.Users().Search(ctx, params, seek)
		},
		Count: func(ctx context.Context, q port.Queries, params domain.SearchParameters) (int64, error) {
			return q.Users().Count(ctx, params)
		},
	}
}

// Admins searches admins ordered by name unless told otherwise.
func Admins() Source[domain.Admin] {
	return Source[domain.Admin]{
		IDColumn:      domain.ColumnID,
		DefaultColumn: domain.ColumnName,
		Search: func(ctx context.Context, q port.Queries, params domain.SearchParameters, seek domain.SeekKey) ([]domain.Admin, error) {
			return q.Admins().Search(ctx, params, seek)
		},
		Count: func(ctx context.Context, q port.Queries, params domain.SearchParameters) (int64, error) {
			return q.Admins().Count(ctx, params)
		},
	}
}

// Audit searches audit events ordered by time unless told otherwise.
func Audit() Source[domain.AuditEvent] {
	return Source[domain.AuditEvent]{
		IDColumn:      domain.ColumnID,
		DefaultColumn: domain.ColumnTime,
		Search: func(ctx context.Context, q port.Queries, params domain.SearchParameters, seek domain.SeekKey) ([]domain.AuditEvent, error) {
			return q.Audit().Search(ctx, params, seek)
		},
		Count: func(ctx context.Context, q port.Queries, params domain.SearchParameters) (int64, error) {
			return q.Audit().Count(ctx, params)
		},
	}
}
