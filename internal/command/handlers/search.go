package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/pagination"
	"github.com/arklim/identity-server/internal/policy"
)

var (
	principalColumns = []domain.Column{domain.ColumnID, domain.ColumnName, domain.ColumnRealName, domain.ColumnTimeCreated, domain.ColumnTimeUpdated}
	auditColumns     = []domain.Column{domain.ColumnID, domain.ColumnTime}
)

func (h *Handlers) registerAudit(catalog command.Catalog) {
	catalog.Register(TagAuditSearchBegin, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, cmd AuditSearchBegin) (any, error) {
		params, err := searchParameters(cmd.SearchRequest, auditColumns)
		if err != nil {
			return nil, err
		}
		if err := authorize(policy.SearchAudit{Actor: c.Principal}); err != nil {
			return nil, err
		}
		return beginSearch(ctx, c, h.deps.Paging, pagination.KindAudit, pagination.Audit(), params, auditEventView)
	}))
	catalog.Register(TagAuditSearchNext, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, _ AuditSearchNext) (any, error) {
		if err := authorize(policy.SearchAudit{Actor: c.Principal}); err != nil {
			return nil, err
		}
		return stepSearch(ctx, c, h.deps.Paging, pagination.KindAudit, true, auditEventView)
	}))
	catalog.Register(TagAuditSearchPrevious, command.AdminOnly, typed(func(ctx context.Context, c *command.Context, _ AuditSearchPrevious) (any, error) {
		if err := authorize(policy.SearchAudit{Actor: c.Principal}); err != nil {
			return nil, err
		}
		return stepSearch(ctx, c, h.deps.Paging, pagination.KindAudit, false, auditEventView)
	}))
}

func principalSearch(req SearchRequest) (domain.SearchParameters, error) {
	return searchParameters(req, principalColumns)
}

// searchParameters validates req against the columns the search may order by. For
// audit searches the creation range filters on the event time.
func searchParameters(req SearchRequest, columns []domain.Column) (domain.SearchParameters, error) {
	if req.Limit < 0 {
		return domain.SearchParameters{}, invalid("limit must not be negative")
	}
	params := domain.SearchParameters{
		Query:       strings.TrimSpace(req.Query),
		Limit:       req.Limit,
		TimeCreated: timeRange(req.CreatedAfter, req.CreatedBefore),
		TimeUpdated: timeRange(req.UpdatedAfter, req.UpdatedBefore),
	}
	if req.Column != "" {
		column := domain.Column(strings.ToLower(strings.TrimSpace(req.Column)))
		if !hasColumn(columns, column) {
			return domain.SearchParameters{}, invalid("cannot order by %q", req.Column)
		}
		params.Ordering = domain.Ordering{Column: column, Ascending: !req.Descending}
	} else if req.Descending {
		params.Ordering = domain.Ordering{Column: columns[0], Ascending: false}
	}
	return params, nil
}

func hasColumn(columns []domain.Column, c domain.Column) bool {
	for _, col := range columns {
		if col == c {
			return true
		}
	}
	return false
}

func timeRange(lower, upper *time.Time) domain.TimeRange {
	var r domain.TimeRange
	if lower != nil {
		r.Lower = lower.UTC()
	}
	if upper != nil {
		r.Upper = upper.UTC()
	}
	return r
}

// sessionKey scopes paginators to the access token session, or to the principal when
// the token carried none.
func sessionKey(c *command.Context) string {
	if c.SessionID != "" {
		return c.SessionID
	}
	return c.Principal.ID().String()
}

// beginSearch fetches the first page and, once the transaction commits, replaces the
// session's paginator of the same kind.
func beginSearch[T pagination.Row, V any](ctx context.Context, c *command.Context, registry *pagination.Registry, kind pagination.Kind, source pagination.Source[T], params domain.SearchParameters, view func(T) V) (PageView[V], error) {
	p := pagination.New(source, params)
	page, err := p.Current(ctx, c.Queries)
	if err != nil {
		return PageView[V]{}, err
	}
	session := sessionKey(c)
	c.AfterCommit(func(context.Context) error {
		pagination.Put(registry, session, kind, p)
		return nil
	})
	return pageView(page, p.NextAvailable(), view), nil
}

// stepSearch fetches the neighbouring page. The paginator only moves once the
// transaction commits.
func stepSearch[T pagination.Row, V any](ctx context.Context, c *command.Context, registry *pagination.Registry, kind pagination.Kind, forward bool, view func(T) V) (PageView[V], error) {
	p, ok := pagination.Lookup[T](registry, sessionKey(c), kind)
	if !ok {
		return PageView[V]{}, ErrNoSearch
	}
	dir := pagination.Back
	if forward {
		dir = pagination.Forward
	}
	page, move, err := p.Stage(ctx, c.Queries, dir)
	if err != nil {
		return PageView[V]{}, err
	}
	c.AfterCommit(func(context.Context) error {
		move.Apply()
		return nil
	})
	return pageView(page, move.NextAvailable(), view), nil
}
