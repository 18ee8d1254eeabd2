/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlstore

import (
	"context"
	"reflect"

	"gorm.io/gorm"

	"github.com/suparena/entitywork/query"
)

// Scope narrows a gorm chain, e.g. func(db *gorm.DB) *gorm.DB { return db.Where("age > ?", 27) }.
type Scope = func(*gorm.DB) *gorm.DB

// Criteria is a native query over T expressed with gorm scopes. Fulfill yields a
// *query.Prepared[T], so ordering, fetching and pagination work as for dynamic queries.
type Criteria[T any] struct {
	scopes []Scope
}

// NewCriteria returns a criteria query over T.
func NewCriteria[T any](scopes ...Scope) *Criteria[T] {
	return &Criteria[T]{scopes: scopes}
}

// Where appends a condition in gorm syntax.
func (c *Criteria[T]) Where(cond any, args ...any) *Criteria[T] {
	c.scopes = append(c.scopes, func(db *gorm.DB) *gorm.DB { return db.Where(cond, args...) })
	return c
}

// Scopes appends scope functions.
func (c *Criteria[T]) Scopes(scopes ...Scope) *Criteria[T] {
	c.scopes = append(c.scopes, scopes...)
	return c
}

func (c *Criteria[T]) EntityType() reflect.Type { return reflect.TypeFor[T]() }

func (c *Criteria[T]) scopeFuncs() []Scope { return c.scopes }

func (c *Criteria[T]) Prepare(st query.Statement, flusher query.Flusher) any {
	return query.NewPrepared[T](st, flusher)
}

type criteria interface {
	query.Targeted
	scopeFuncs() []Scope
	Prepare(st query.Statement, flusher query.Flusher) any
}

// Raw runs SQL against the session of the unit of work after pending writes are flushed.
// Fulfill yields a []R scanned from the result set.
type Raw[R any] struct {
	SQL  string
	Args []any
}

// NewRaw returns a raw query; args bind to the ? placeholders of sql.
func NewRaw[R any](sql string, args ...any) *Raw[R] {
	return &Raw[R]{SQL: sql, Args: args}
}

func (r *Raw[R]) run(_ context.Context, db *gorm.DB) (any, error) {
	var rows []R
	if err := db.Raw(r.SQL, r.Args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

type raw interface {
	run(ctx context.Context, db *gorm.DB) (any, error)
}

var (
	criteriaType = reflect.TypeFor[criteria]()
	rawType      = reflect.TypeFor[raw]()
)
