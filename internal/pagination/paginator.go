// Package pagination walks ordered search results forward and backward using seek keys
// instead of offsets. A Paginator belongs to one client paging session; the storage
// transaction is supplied per call because it never outlives a command.
package pagination

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/core/port"
)

// ErrSeekKeyNull reports a row with a null value in an ordering column.
var ErrSeekKeyNull = errors.New("pagination: null value in ordering column")

// Row is a search result that can report its ordering-column values.
type Row interface {
	SortValue(c domain.Column) (any, bool)
}

// Source binds a paginator to one entity's search and count queries.
type Source[T Row] struct {
	IDColumn      domain.Column
	DefaultColumn domain.Column
	Search        func(ctx context.Context, q port.Queries, params domain.SearchParameters, seek domain.SeekKey) ([]T, error)
	Count         func(ctx context.Context, q port.Queries, params domain.SearchParameters) (int64, error)
}

// cursor is replaced on every transition and never mutated once published.
type cursor struct {
	page  int
	count int
	seeks map[int]domain.SeekKey
}

func (c *cursor) withPage(page int) *cursor {
	return &cursor{page: page, count: c.count, seeks: c.seeks}
}

func (c *cursor) withFetch(count int, nextPage int, key domain.SeekKey) *cursor {
	seeks := make(map[int]domain.SeekKey, len(c.seeks)+1)
	for page, k := range c.seeks {
		seeks[page] = k
	}
	if key != nil {
		seeks[nextPage] = key
	} else {
		delete(seeks, nextPage)
	}
	return &cursor{page: c.page, count: count, seeks: seeks}
}

// Paginator holds the paging state of one search.
type Paginator[T Row] struct {
	params  domain.SearchParameters
	columns []domain.Column
	source  Source[T]

	mu    sync.Mutex
	state atomic.Pointer[cursor]
}

// New starts a search at page 1. The limit is clamped and the ordering defaulted.
func New[T Row](source Source[T], params domain.SearchParameters) *Paginator[T] {
	params = params.Normalized(source.DefaultColumn)
	p := &Paginator[T]{
		params:  params,
		columns: params.OrderingColumns(source.IDColumn),
		source:  source,
	}
	p.state.Store(&cursor{page: 1, count: 1, seeks: map[int]domain.SeekKey{}})
	return p
}

// Direction selects the page a staged fetch lands on.
type Direction int

const (
	Stay Direction = iota
	Forward
	Back
)

// Transition is a fetched page move that has not been published yet.
type Transition struct {
	state *atomic.Pointer[cursor]
	from  *cursor
	to    *cursor
}

// Apply publishes the move. It reports false, leaving the paginator as it is, when
// another move was applied since this one was staged.
func (t Transition) Apply() bool {
	if t.state == nil {
		return false
	}
	return t.state.CompareAndSwap(t.from, t.to)
}

// NextAvailable reports whether the staged page has a known successor.
func (t Transition) NextAvailable() bool {
	if t.to == nil {
		return false
	}
	_, ok := t.to.seeks[t.to.page+1]
	return ok
}

// Stage fetches the page a move in dir lands on without changing the paginator.
// Forward needs a seek key proven by an earlier fetch and Back stops at page 1;
// otherwise the current page is fetched again.
func (p *Paginator[T]) Stage(ctx context.Context, q port.Queries, dir Direction) (domain.Page[T], Transition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	from := p.state.Load()
	target := from
	switch dir {
	case Forward:
		if _, ok := from.seeks[from.page+1]; ok {
			target = from.withPage(from.page + 1)
		}
	case Back:
		if from.page > 1 {
			target = from.withPage(from.page - 1)
		}
	}

	page, to, err := p.fetch(ctx, q, target)
	if err != nil {
		return domain.Page[T]{}, Transition{}, err
	}
	return page, Transition{state: &p.state, from: from, to: to}, nil
}

// Current fetches the current page again.
func (p *Paginator[T]) Current(ctx context.Context, q port.Queries) (domain.Page[T], error) {
	return p.move(ctx, q, Stay)
}

// Next moves to the following page when a previous fetch proved it exists, then
// fetches the current page.
func (p *Paginator[T]) Next(ctx context.Context, q port.Queries) (domain.Page[T], error) {
	return p.move(ctx, q, Forward)
}

// Previous moves back one page, stopping at page 1, then fetches the current page.
func (p *Paginator[T]) Previous(ctx context.Context, q port.Queries) (domain.Page[T], error) {
	return p.move(ctx, q, Back)
}

func (p *Paginator[T]) move(ctx context.Context, q port.Queries, dir Direction) (domain.Page[T], error) {
	page, t, err := p.Stage(ctx, q, dir)
	if err != nil {
		return domain.Page[T]{}, err
	}
	t.Apply()
	return page, nil
}

// Index returns the current 1-based page number.
func (p *Paginator[T]) Index() int {
	return p.state.Load().page
}

// Count returns the page count computed by the most recent fetch.
func (p *Paginator[T]) Count() int {
	return p.state.Load().count
}

// FirstOffset returns the offset of the first row of the current page.
func (p *Paginator[T]) FirstOffset() int {
	return (p.state.Load().page - 1) * p.params.Limit
}

// NextAvailable reports whether a seek key for the following page is known.
func (p *Paginator[T]) NextAvailable() bool {
	cur := p.state.Load()
	_, ok := cur.seeks[cur.page+1]
	return ok
}

func (p *Paginator[T]) fetch(ctx context.Context, q port.Queries, cur *cursor) (domain.Page[T], *cursor, error) {
	var seek domain.SeekKey
	if cur.page > 1 {
		seek = cur.seeks[cur.page]
	}

	items, err := p.source.Search(ctx, q, p.params, seek)
	if err != nil {
		return domain.Page[T]{}, nil, fmt.Errorf("search page %d: %w", cur.page, err)
	}
	total, err := p.source.Count(ctx, q, p.params)
	if err != nil {
		return domain.Page[T]{}, nil, fmt.Errorf("count rows: %w", err)
	}

	var next domain.SeekKey
	if len(items) == p.params.Limit && len(items) > 0 {
		next, err = p.seekKey(items[len(items)-1])
		if err != nil {
			return domain.Page[T]{}, nil, err
		}
	}

	updated := cur.withFetch(PageCount(total, p.params.Limit), cur.page+1, next)
	return domain.Page[T]{
		Items:       items,
		Index:       updated.page,
		Count:       updated.count,
		FirstOffset: (updated.page - 1) * p.params.Limit,
	}, updated, nil
}

func (p *Paginator[T]) seekKey(row T) (domain.SeekKey, error) {
	key := make(domain.SeekKey, 0, len(p.columns))
	for _, column := range p.columns {
		value, ok := row.SortValue(column)
		if !ok || value == nil {
			return nil, fmt.Errorf("%w: %s", ErrSeekKeyNull, column)
		}
		key = append(key, value)
	}
	return key, nil
}

// PageCount returns the approximate number of pages for total rows: total/limit rounded
// to the nearest integer, at least 1. The last page may lie beyond the count.
func PageCount(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 1
	}
	pages := int(math.Round(float64(total) / float64(limit)))
	if pages < 1 {
		return 1
	}
	return pages
}
