package domain

import (
	"strings"
	"time"
)

const (
	// SearchLimitMax is the server-side upper bound for a page size.
	SearchLimitMax = 1000
	// SearchLimitDefault applies when the client does not request a limit.
	SearchLimitDefault = 100
)

// Column names a sortable attribute.
type Column string

const (
	ColumnID          Column = "id"
	ColumnName        Column = "name"
	ColumnRealName    Column = "real_name"
	ColumnTimeCreated Column = "time_created"
	ColumnTimeUpdated Column = "time_updated"
	ColumnTime        Column = "time"
)

// TimeRange is an inclusive range of instants; zero bounds are open.
type TimeRange struct {
	Lower time.Time
	Upper time.Time
}

// Contains reports whether t lies inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.Lower.IsZero() && t.Before(r.Lower) {
		return false
	}
	if !r.Upper.IsZero() && t.After(r.Upper) {
		return false
	}
	return true
}

// Ordering is a sort column plus direction.
type Ordering struct {
	Column    Column
	Ascending bool
}

// SearchParameters describe a principal or audit search.
type SearchParameters struct {
	TimeCreated TimeRange
	TimeUpdated TimeRange
	Query       string
	Ordering    Ordering
	Limit       int
}

// ClampLimit bounds a requested limit to [1, SearchLimitMax].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return SearchLimitDefault
	}
	if limit > SearchLimitMax {
		return SearchLimitMax
	}
	return limit
}

// Normalized returns a copy with the limit clamped, the query trimmed and a default ordering.
func (p SearchParameters) Normalized(defaultColumn Column) SearchParameters {
	p.Limit = ClampLimit(p.Limit)
	p.Query = strings.TrimSpace(p.Query)
	if p.Ordering.Column == "" {
		p.Ordering = Ordering{Column: defaultColumn, Ascending: true}
	}
	return p
}

// OrderingColumns returns the columns a seek key is built from: the requested
// column followed by the row identifier as tie-break.
func (p SearchParameters) OrderingColumns(idColumn Column) []Column {
	if p.Ordering.Column == idColumn {
		return []Column{idColumn}
	}
	return []Column{p.Ordering.Column, idColumn}
}

// Page is one page of an ordered search.
type Page[T any] struct {
	Items       []T
	Index       int
	Count       int
	FirstOffset int
}

// SeekKey holds the ordering-column values of the last row of a page, in
// ordering-column order. Searches resume strictly after it.
type SeekKey []any

// SortValue returns the value of an ordering column for the identity.
func (i Identity) SortValue(c Column) (any, bool) {
	switch c {
	case ColumnID:
		return i.ID, true
	case ColumnName:
		return i.Name, true
	case ColumnRealName:
		return i.RealName, true
	case ColumnTimeCreated:
		return i.CreatedAt, true
	case ColumnTimeUpdated:
		return i.UpdatedAt, true
	default:
		return nil, false
	}
}

// SortValue returns the value of an ordering column for the audit event.
func (e AuditEvent) SortValue(c Column) (any, bool) {
	switch c {
	case ColumnID:
		return e.ID, true
	case ColumnTime:
		return e.Time, true
	default:
		return nil, false
	}
}
