package memory

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/repository"
)

type sortable interface {
	SortValue(c domain.Column) (any, bool)
}

// page orders rows by the requested column then id, skips everything up to and
// including seek, and returns at most params.Limit rows.
func page[T sortable](rows []T, params domain.SearchParameters, seek domain.SeekKey) ([]T, error) {
	params = params.Normalized(domain.ColumnID)
	columns := params.OrderingColumns(domain.ColumnID)
	if len(seek) != 0 && len(seek) != len(columns) {
		return nil, fmt.Errorf("%w: seek key has %d values for %d columns", repository.ErrStorage, len(seek), len(columns))
	}

	var sortErr error
	cmp := func(row T, other []any) int {
		for i, column := range columns {
			value, ok := row.SortValue(column)
			if !ok || value == nil || other[i] == nil {
				sortErr = fmt.Errorf("%w: %s", repository.ErrNullOrdering, column)
				return 0
			}
			c, err := compare(value, other[i])
			if err != nil {
				sortErr = err
				return 0
			}
			if c != 0 {
				if !params.Ordering.Ascending {
					return -c
				}
				return c
			}
		}
		return 0
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return cmp(rows[i], values(rows[j], columns)) < 0
	})
	if sortErr != nil {
		return nil, sortErr
	}

	out := make([]T, 0, params.Limit)
	for _, row := range rows {
		if len(seek) != 0 && cmp(row, seek) <= 0 {
			continue
		}
		out = append(out, row)
		if len(out) == params.Limit {
			break
		}
	}
	if sortErr != nil {
		return nil, sortErr
	}
	return out, nil
}

func values[T sortable](row T, columns []domain.Column) []any {
	out := make([]any, len(columns))
	for i, column := range columns {
		out[i], _ = row.SortValue(column)
	}
	return out
}

func compare(a, b any) (int, error) {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), nil
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), nil
		}
	case uuid.UUID:
		if bv, ok := b.(uuid.UUID); ok {
			return bytes.Compare(av[:], bv[:]), nil
		}
	case int:
		if bv, ok := b.(int); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, fmt.Errorf("%w: cannot compare %T with %T", repository.ErrStorage, a, b)
}
