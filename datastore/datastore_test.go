/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"reflect"
	"testing"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/entitywork/datastore/testmodels"
	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/query"
	"github.com/suparena/entitywork/registry"
)

func TestTypeSet(t *testing.T) {
	s := NewTypeSet(reflect.TypeFor[*testmodels.Employee]())
	Register[testmodels.Named](s)

	tests := []struct {
		name string
		typ  reflect.Type
		want bool
	}{
		{name: "registered pointer element", typ: reflect.TypeFor[testmodels.Employee](), want: true},
		{name: "pointer to registered", typ: reflect.TypeFor[*testmodels.Employee](), want: true},
		{name: "interface member", typ: reflect.TypeFor[testmodels.Department](), want: true},
		{name: "unrelated struct", typ: reflect.TypeFor[testmodels.Vacancy](), want: false},
		{name: "query on registered", typ: reflect.TypeFor[*query.Dynamic[testmodels.Employee]](), want: true},
		{name: "query on unrelated", typ: reflect.TypeFor[*query.Dynamic[testmodels.Vacancy]](), want: false},
		{name: "not a struct", typ: reflect.TypeFor[string](), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.TakesCareOf(tt.typ))
		})
	}

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []reflect.Type{reflect.TypeFor[testmodels.Employee]()}, s.Types(), "interfaces are not listed")
}

func TestKey(t *testing.T) {
	id := uint(7)
	u := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	tests := []struct {
		name string
		id   any
		want string
	}{
		{name: "int", id: 7, want: "7"},
		{name: "uint pointer", id: &id, want: "7"},
		{name: "string", id: "7", want: "7"},
		{name: "strfmt uuid", id: strfmt.UUID(u.String()), want: u.String()},
		{name: "uuid", id: u, want: u.String()},
		{name: "nil", id: nil, want: ""},
		{name: "nil pointer", id: (*uint)(nil), want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.id))
		})
	}
}

func TestAssignID(t *testing.T) {
	t.Run("integer sequence", func(t *testing.T) {
		info, err := registry.Of[testmodels.Employee]()
		require.NoError(t, err)
		e := &testmodels.Employee{Name: "Ann"}
		key, err := AssignID(info, reflect.ValueOf(e), func() int64 { return 41 })
		require.NoError(t, err)
		assert.Equal(t, "41", key)
		assert.Equal(t, uint(41), e.ID)
	})

	t.Run("string uuid", func(t *testing.T) {
		info, err := registry.Of[testmodels.Department]()
		require.NoError(t, err)
		d := &testmodels.Department{Name: "R&D"}
		key, err := AssignID(info, reflect.ValueOf(d), nil)
		require.NoError(t, err)
		assert.True(t, strfmt.IsUUID(key), "got %q", key)
		assert.Equal(t, key, string(d.ID))
	})

	t.Run("existing identity kept", func(t *testing.T) {
		info, err := registry.Of[testmodels.Employee]()
		require.NoError(t, err)
		e := &testmodels.Employee{ID: 3, Name: "Ann"}
		key, err := AssignID(info, reflect.ValueOf(e), func() int64 { panic("sequence used") })
		require.NoError(t, err)
		assert.Equal(t, "3", key)
	})
}

func TestCompile(t *testing.T) {
	_, err := Compile(query.New[testmodels.Employee]().Set("Salary", 1))
	require.Error(t, err)
	assert.True(t, errors.IsPropertyNotFound(err))

	_, err = Compile("not a query")
	require.Error(t, err)
	assert.True(t, errors.IsInternal(err))

	assert.True(t, IsCompilable(reflect.TypeFor[*query.Dynamic[testmodels.Employee]]()))
	assert.False(t, IsCompilable(reflect.TypeFor[testmodels.Employee]()))
}

func TestPending(t *testing.T) {
	var p Pending
	a, b := &testmodels.Employee{ID: 1}, &testmodels.Employee{ID: 2}
	p.Push(OpAdd, a)
	p.Push(OpRemove, b)
	assert.Equal(t, 2, p.Len())

	assert.Equal(t, []Op{{Kind: OpAdd, Entity: a}, {Kind: OpRemove, Entity: b}}, p.Drain())
	assert.Zero(t, p.Len())
	assert.Empty(t, p.Drain())
}

func TestPendingApplyKeepsFailedTail(t *testing.T) {
	var p Pending
	a, b, c := &testmodels.Employee{ID: 1}, &testmodels.Employee{ID: 2}, &testmodels.Employee{ID: 3}
	p.Push(OpAdd, a)
	p.Push(OpAdd, b)
	p.Push(OpAdd, c)

	var applied []any
	n, err := p.Apply(func(op Op) error {
		if op.Entity == b {
			return errors.NewAlreadyExistsError("testmodels.Employee", "2")
		}
		applied = append(applied, op.Entity)
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []any{a}, applied)
	assert.Equal(t, []Op{{Kind: OpAdd, Entity: b}, {Kind: OpAdd, Entity: c}}, p.Drain())

	p.Push(OpRemove, a)
	n, err = p.Apply(func(Op) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, p.Len())
}
