/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

// DefaultPageSize is used when a page size is missing or not positive.
const DefaultPageSize = 25

// Direction of an order-by clause.
type Direction int

const (
	Asc Direction = iota
	Desc
)

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Order is one order-by request: a property path (or backend column name) and a direction.
type Order struct {
	Path      string
	Direction Direction
}

// PaginationParams selects a page. CurrentPage is 1-based.
type PaginationParams struct {
	CurrentPage int `json:"currentPage" mapstructure:"current_page"`
	PageSize    int `json:"pageSize" mapstructure:"page_size"`
}

// DefaultPaginationParams returns page 1 of DefaultPageSize items.
func DefaultPaginationParams() PaginationParams {
	return PaginationParams{CurrentPage: 1, PageSize: DefaultPageSize}
}

// Normalize clamps the page to at least 1 and replaces a non-positive size with the default.
func (p PaginationParams) Normalize() PaginationParams {
	if p.CurrentPage < 1 {
		p.CurrentPage = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	return p
}

// Offset is the number of items before the page, assuming normalized params.
func (p PaginationParams) Offset() int {
	return (p.CurrentPage - 1) * p.PageSize
}

// PaginationResult is one materialized page plus the total it was cut from.
type PaginationResult[T any] struct {
	TotalItems  int64 `json:"totalItems"`
	PageSize    int   `json:"pageSize"`
	CurrentPage int   `json:"currentPage"`
	Items       []T   `json:"items"`
}

// PageCount is ceil(TotalItems / PageSize).
func (r *PaginationResult[T]) PageCount() int {
	if r.PageSize <= 0 {
		return 0
	}
	size := int64(r.PageSize)
	return int((r.TotalItems + size - 1) / size)
}

func (r *PaginationResult[T]) HasPreviousPage() bool { return r.CurrentPage > 1 }

func (r *PaginationResult[T]) HasNextPage() bool { return r.CurrentPage < r.PageCount() }

func (r *PaginationResult[T]) IsFirstPage() bool { return r.CurrentPage <= 1 }

func (r *PaginationResult[T]) IsLastPage() bool { return r.CurrentPage >= r.PageCount() }
