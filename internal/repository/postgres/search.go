package postgres

import (
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/repository"
)

// Text columns compare bytewise so that ordering matches the seek predicate on every
// database collation.
var (
	identitySortColumns = map[domain.Column]string{
		domain.ColumnID:          "p.id",
		domain.ColumnName:        `p.name COLLATE "C"`,
		domain.ColumnRealName:    `p.real_name COLLATE "C"`,
		domain.ColumnTimeCreated: "p.time_created",
		domain.ColumnTimeUpdated: "p.time_updated",
	}
	auditSortColumns = map[domain.Column]string{
		domain.ColumnID:   `a.id COLLATE "C"`,
		domain.ColumnTime: "a.time",
	}
)

// seekPage orders stmt by the requested column then id and resumes strictly after
// seek with a row-value comparison.
func seekPage(stmt squirrel.SelectBuilder, params domain.SearchParameters, sortColumns map[domain.Column]string, seek domain.SeekKey) (squirrel.SelectBuilder, error) {
	params = params.Normalized(domain.ColumnID)
	columns := params.OrderingColumns(domain.ColumnID)

	exprs := make([]string, len(columns))
	for i, column := range columns {
		expr, ok := sortColumns[column]
		if !ok {
			return stmt, fmt.Errorf("%w: cannot order by %s", repository.ErrStorage, column)
		}
		exprs[i] = expr
	}

	direction, cmp := "ASC", ">"
	if !params.Ordering.Ascending {
		direction, cmp = "DESC", "<"
	}
	order := make([]string, len(exprs))
	for i, expr := range exprs {
		order[i] = expr + " " + direction
	}
	stmt = stmt.OrderBy(order...).Limit(uint64(params.Limit))

	if len(seek) == 0 {
		return stmt, nil
	}
	if len(seek) != len(columns) {
		return stmt, fmt.Errorf("%w: seek key has %d values for %d columns", repository.ErrStorage, len(seek), len(columns))
	}
	for i, v := range seek {
		if v == nil {
			return stmt, fmt.Errorf("%w: %s", repository.ErrNullOrdering, columns[i])
		}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(seek)), ", ")
	predicate := fmt.Sprintf("(%s) %s (%s)", strings.Join(exprs, ", "), cmp, placeholders)
	return stmt.Where(squirrel.Expr(predicate, seek...)), nil
}

func identityFilter(params domain.SearchParameters) squirrel.Sqlizer {
	where := squirrel.And{}
	where = append(where, timeFilter("p.time_created", params.TimeCreated)...)
	where = append(where, timeFilter("p.time_updated", params.TimeUpdated)...)
	if q := strings.TrimSpace(params.Query); q != "" {
		pattern := likePattern(q)
		where = append(where, squirrel.Or{
			squirrel.ILike{"p.name": pattern},
			squirrel.ILike{"p.real_name": pattern},
			squirrel.Expr("EXISTS (SELECT 1 FROM identity.emails e WHERE e.owner_id = p.id AND e.email ILIKE ?)", pattern),
		})
	}
	return where
}

func auditFilter(params domain.SearchParameters) squirrel.Sqlizer {
	where := squirrel.And{}
	where = append(where, timeFilter("a.time", params.TimeCreated)...)
	if q := strings.TrimSpace(params.Query); q != "" {
		pattern := likePattern(q)
		where = append(where, squirrel.Or{
			squirrel.ILike{"a.type": pattern},
			squirrel.ILike{"a.message": pattern},
		})
	}
	return where
}

func timeFilter(column string, r domain.TimeRange) []squirrel.Sqlizer {
	var out []squirrel.Sqlizer
	if !r.Lower.IsZero() {
		out = append(out, squirrel.GtOrEq{column: r.Lower})
	}
	if !r.Upper.IsZero() {
		out = append(out, squirrel.LtOrEq{column: r.Upper})
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

func collect[T any](rows pgx.Rows, op string, scan func(pgx.CollectableRow) (T, error)) ([]T, error) {
	out, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, storageError(op, err)
	}
	return out, nil
}
