/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"context"
	"reflect"
	"slices"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/registry"
	"github.com/suparena/entitywork/storagemodels"
)

// Source loads candidate rows, as pointers to entities, for an Evaluated statement.
type Source func(ctx context.Context) ([]any, error)

// Evaluated is a Statement that filters with Match, orders with Sort and windows in memory.
// Fetch is a no-op: rows come with their object graph.
type Evaluated struct {
	info   *registry.TypeInfo
	nodes  []*Node
	source Source
	orders []storagemodels.Order
}

// NewEvaluated builds an in-memory statement over the rows returned by source.
func NewEvaluated(entityType reflect.Type, nodes []*Node, source Source) (*Evaluated, error) {
	info, err := registry.Describe(entityType)
	if err != nil {
		return nil, err
	}
	return &Evaluated{info: info, nodes: nodes, source: source}, nil
}

func (e *Evaluated) Clone() Statement {
	c := *e
	c.orders = slices.Clone(e.orders)
	return &c
}

func (e *Evaluated) Fetch(string) error { return nil }

func (e *Evaluated) OrderBy(o storagemodels.Order) error {
	if _, err := resolvePath(e.info, o.Path); err != nil {
		return err
	}
	e.orders = append(e.orders, o)
	return nil
}

// Rows returns the filtered and ordered rows.
func (e *Evaluated) Rows(ctx context.Context) ([]any, error) {
	candidates, err := e.source(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]any, 0, len(candidates))
	for _, c := range candidates {
		ok, err := Match(c, e.nodes)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, c)
		}
	}
	if len(e.orders) > 0 {
		if err := sortSlice(e.info, reflect.ValueOf(rows), e.orders); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (e *Evaluated) List(ctx context.Context, offset, limit int, dest any) error {
	rows, err := e.Rows(ctx)
	if err != nil {
		return err
	}
	return Fill(dest, Window(rows, offset, limit))
}

func (e *Evaluated) Count(ctx context.Context) (int64, error) {
	rows, err := e.Rows(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// Window cuts rows[offset:offset+limit]; a negative limit keeps the rest.
func Window[S ~[]E, E any](rows S, offset, limit int) S {
	if offset > len(rows) {
		offset = len(rows)
	}
	if offset < 0 {
		offset = 0
	}
	rows = rows[offset:]
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

// Fill appends rows to dest, a pointer to a slice of entity pointers or entity values.
func Fill(dest any, rows []any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.Elem().Kind() != reflect.Slice {
		return errors.NewInternalError("destination must be a pointer to a slice, got %T", dest)
	}
	slice := dv.Elem()
	elemType := slice.Type().Elem()
	for _, row := range rows {
		rv := reflect.ValueOf(row)
		switch {
		case rv.Type().AssignableTo(elemType):
		case rv.Kind() == reflect.Pointer && rv.Elem().Type().AssignableTo(elemType):
			rv = rv.Elem()
		case elemType.Kind() == reflect.Pointer && rv.Type().AssignableTo(elemType.Elem()):
			ptr := reflect.New(elemType.Elem())
			ptr.Elem().Set(rv)
			rv = ptr
		default:
			return errors.NewInternalError("cannot store %T in %s", row, slice.Type())
		}
		slice = reflect.Append(slice, rv)
	}
	dv.Elem().Set(slice)
	return nil
}
