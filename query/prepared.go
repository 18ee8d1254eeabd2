/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"context"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/storagemodels"
)

// Statement is a backend query handle. Decorations mutate the handle, so Prepared always works
// on a Clone.
type Statement interface {
	Clone() Statement
	Fetch(path string) error
	OrderBy(order storagemodels.Order) error
	// List loads rows into dest, a pointer to a slice of entity pointers. A negative limit means no limit.
	List(ctx context.Context, offset, limit int, dest any) error
	Count(ctx context.Context) (int64, error)
}

// Flusher makes pending writes of the unit of work visible to reads.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlushFunc adapts a function to Flusher.
type FlushFunc func(ctx context.Context) error

func (f FlushFunc) Flush(ctx context.Context) error { return f(ctx) }

var noFlush = FlushFunc(func(context.Context) error { return nil })

// Prepared accumulates fetch and order decorations over a compiled statement. Nothing runs
// until List, Count, SingleOrDefault or Paginate; each of those decorates a fresh copy of the
// base statement, so they can be called repeatedly.
type Prepared[T any] struct {
	base    Statement
	flusher Flusher
	fetches []string
	orders  []storagemodels.Order
}

// NewPrepared wraps a base statement. flusher may be nil.
func NewPrepared[T any](base Statement, flusher Flusher) *Prepared[T] {
	if flusher == nil {
		flusher = noFlush
	}
	return &Prepared[T]{base: base, flusher: flusher}
}

// Fetch asks the backend to load the relation at path together with the rows.
func (p *Prepared[T]) Fetch(path string) *Prepared[T] {
	p.fetches = append(p.fetches, path)
	return p
}

// OrderBy adds an order clause; direction defaults to Asc.
func (p *Prepared[T]) OrderBy(path string, direction ...storagemodels.Direction) *Prepared[T] {
	d := storagemodels.Asc
	if len(direction) > 0 {
		d = direction[0]
	}
	p.orders = append(p.orders, storagemodels.Order{Path: path, Direction: d})
	return p
}

func (p *Prepared[T]) finalize(ctx context.Context) (Statement, error) {
	st := p.base.Clone()
	for _, path := range p.fetches {
		if err := st.Fetch(path); err != nil {
			return nil, err
		}
	}
	for _, o := range p.orders {
		if err := st.OrderBy(o); err != nil {
			return nil, err
		}
	}
	if err := p.flusher.Flush(ctx); err != nil {
		return nil, errors.Wrap(err, "flushing before read")
	}
	return st, nil
}

// List returns every matching row.
func (p *Prepared[T]) List(ctx context.Context) ([]*T, error) {
	st, err := p.finalize(ctx)
	if err != nil {
		return nil, err
	}
	var items []*T
	if err := st.List(ctx, 0, -1, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Count returns the number of matching rows.
func (p *Prepared[T]) Count(ctx context.Context) (int64, error) {
	st, err := p.finalize(ctx)
	if err != nil {
		return 0, err
	}
	return st.Count(ctx)
}

// SingleOrDefault returns the only matching row, or nil when nothing matches.
// More than one match is ErrNotUnique.
func (p *Prepared[T]) SingleOrDefault(ctx context.Context) (*T, error) {
	st, err := p.finalize(ctx)
	if err != nil {
		return nil, err
	}
	var items []*T
	if err := st.List(ctx, 0, 2, &items); err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return items[0], nil
	}
	return nil, errors.ErrNotUnique
}

// Paginate returns one page and the total count. Without params it returns page 1 of 25.
func (p *Prepared[T]) Paginate(ctx context.Context, params ...storagemodels.PaginationParams) (*storagemodels.PaginationResult[*T], error) {
	pp := storagemodels.DefaultPaginationParams()
	if len(params) > 0 {
		pp = params[0]
	}
	pp = pp.Normalize()

	st, err := p.finalize(ctx)
	if err != nil {
		return nil, err
	}
	total, err := st.Count(ctx)
	if err != nil {
		return nil, err
	}
	var items []*T
	if err := st.List(ctx, pp.Offset(), pp.PageSize, &items); err != nil {
		return nil, err
	}
	return &storagemodels.PaginationResult[*T]{
		TotalItems:  total,
		PageSize:    pp.PageSize,
		CurrentPage: pp.CurrentPage,
		Items:       items,
	}, nil
}
