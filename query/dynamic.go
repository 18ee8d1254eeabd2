/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/registry"
)

// Targeted is implemented by queries bound to one entity type.
type Targeted interface {
	EntityType() reflect.Type
}

// Compilable is a predicate tree that a provider can compile into a Statement.
type Compilable interface {
	Targeted
	Nodes() []*Node
	Err() error
	// Prepare wraps a compiled statement into the typed *Prepared of the query's entity type.
	Prepare(st Statement, flusher Flusher) any
}

// Dynamic builds a predicate tree over entity type T without a hand-written query type.
// The zero value is ready to use.
//
//	q := query.New[Employee]()
//	q.Get("Age").Gt(27)
//	q.Get("Boss").Get("Name").Eq("X")
//	q.Set("NameInsensitiveLike", "foo")
//
// Errors do not interrupt chaining; the first one is kept and returned by Err and by Fulfill.
type Dynamic[T any] struct {
	slot   errorSlot
	info   *registry.TypeInfo
	nodes  []*Node
	byName map[string]*Node
}

// New returns an empty dynamic query over T.
func New[T any]() *Dynamic[T] {
	q := &Dynamic[T]{}
	q.init()
	return q
}

func (q *Dynamic[T]) init() bool {
	if q.info != nil {
		return true
	}
	if q.slot.err != nil {
		return false
	}
	info, err := registry.Of[T]()
	if err != nil {
		q.slot.fail(err)
		return false
	}
	q.info = info
	q.byName = make(map[string]*Node)
	return true
}

// EntityType is T. It does not touch the receiver.
func (q *Dynamic[T]) EntityType() reflect.Type {
	return reflect.TypeFor[T]()
}

// Err is the first compilation error, if any.
func (q *Dynamic[T]) Err() error { return q.slot.err }

// Nodes are the root nodes in first-access order.
func (q *Dynamic[T]) Nodes() []*Node { return q.nodes }

// Get returns the node for a property of T, creating it on first access.
func (q *Dynamic[T]) Get(name string) *Node {
	if !q.init() {
		return &Node{slot: &q.slot}
	}
	return resolve(&q.slot, q.info, &q.nodes, q.byName, name)
}

// Path walks a dotted property path, e.g. "Boss.Vacancies.StartDate".
func (q *Dynamic[T]) Path(path string) *Node {
	parts := strings.Split(path, ".")
	n := q.Get(parts[0])
	for _, part := range parts[1:] {
		n = n.Get(part)
	}
	return n
}

var convenienceSetter = regexp.MustCompile(`^(\w+?)(InsensitiveLike|Between|Like|Eq|Gt|Ge|Lt|Le|In)$`)

// Set assigns a value by member name. An exact property name means Eq; otherwise the name is
// split into a property and the longest trailing operator keyword (Eq, Like, InsensitiveLike,
// Gt, Ge, Lt, Le, Between, In). Between takes a two-element slice, In a slice of values.
func (q *Dynamic[T]) Set(name string, value any) *Dynamic[T] {
	if !q.init() {
		return q
	}
	if _, ok := q.info.Property(name); ok {
		q.Get(name).Eq(value)
		return q
	}

	m := convenienceSetter.FindStringSubmatch(name)
	if m == nil {
		q.slot.fail(errors.NewPropertyNotFoundError(registry.TypeName(q.info.Type), name))
		return q
	}
	base, keyword := m[1], m[2]
	if _, ok := q.info.Property(base); !ok {
		q.slot.fail(errors.NewPropertyNotFoundError(registry.TypeName(q.info.Type), base))
		return q
	}
	n := q.Get(base)

	switch keyword {
	case "Eq":
		n.Eq(value)
	case "Gt":
		n.Gt(value)
	case "Ge":
		n.Ge(value)
	case "Lt":
		n.Lt(value)
	case "Le":
		n.Le(value)
	case "Like", "InsensitiveLike":
		s, ok := value.(string)
		if !ok {
			q.slot.fail(errors.NewValidationError(name, fmt.Sprintf("expected a string, got %T", value)))
			return q
		}
		if keyword == "Like" {
			n.Like(s)
		} else {
			n.InsensitiveLike(s)
		}
	case "Between":
		bounds, ok := spread(value)
		if !ok || len(bounds) != 2 {
			q.slot.fail(errors.NewValidationError(name, fmt.Sprintf("expected exactly two bounds, got %s", describeBounds(value, bounds, ok))))
			return q
		}
		n.Between(bounds[0], bounds[1])
	case "In":
		values, ok := spread(value)
		if !ok {
			values = []any{value}
		}
		if len(values) == 0 {
			q.slot.fail(errors.NewValidationError(name, "expected at least one value"))
			return q
		}
		n.In(values[0], values[1:]...)
	}
	return q
}

// spread flattens a slice or array into its elements.
func spread(value any) ([]any, bool) {
	if v, ok := value.([]any); ok {
		return v, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func describeBounds(value any, bounds []any, ok bool) string {
	if !ok {
		return fmt.Sprintf("a single %T", value)
	}
	return fmt.Sprint(len(bounds))
}

// Prepare wraps st into a *Prepared[T].
func (q *Dynamic[T]) Prepare(st Statement, flusher Flusher) any {
	return NewPrepared[T](st, flusher)
}

// String renders the tree, e.g. `Age.Gt(27) AND Boss{Name.Eq(X)}`.
func (q *Dynamic[T]) String() string {
	var sb strings.Builder
	sb.WriteString(registry.TypeName(q.EntityType()))
	sb.WriteString(" WHERE ")
	if len(q.nodes) == 0 {
		sb.WriteString("true")
		return sb.String()
	}
	writeNodes(&sb, q.nodes)
	return sb.String()
}
