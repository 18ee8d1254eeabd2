/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/registry"
)

// errorSlot keeps the first compilation error of a query.
type errorSlot struct {
	err error
}

func (s *errorSlot) fail(err error) {
	if s.err == nil {
		s.err = err
	}
}

// Node is a property of the query's entity, or of a related entity when reached through a join.
// Operators called on a node are ANDed. A node whose property could not be resolved is detached:
// its operators do nothing and the error is reported by the owning query.
type Node struct {
	slot  *errorSlot
	owner *registry.TypeInfo
	prop  *registry.Property

	predicates []Predicate
	joins      []*Node
	byName     map[string]*Node
}

// Name is the property name, empty for a detached node.
func (n *Node) Name() string {
	if n.prop == nil {
		return ""
	}
	return n.prop.Name
}

// Property is the resolved property descriptor.
func (n *Node) Property() *registry.Property { return n.prop }

// Owner is the type the property was resolved against.
func (n *Node) Owner() *registry.TypeInfo { return n.owner }

// Predicates in the order they were added.
func (n *Node) Predicates() []Predicate { return n.predicates }

// Joins are child nodes on the related entity, in first-access order.
func (n *Node) Joins() []*Node { return n.joins }

// Get resolves name against the related entity type of a relation or collection property.
// Repeated calls with the same name return the same node.
func (n *Node) Get(name string) *Node {
	if n.prop == nil {
		return n
	}
	if n.prop.Target == nil {
		n.slot.fail(errors.NewPropertyNotFoundError(registry.TypeName(n.prop.Type), name))
		return &Node{slot: n.slot}
	}
	related, err := registry.Describe(n.prop.Target)
	if err != nil {
		n.slot.fail(err)
		return &Node{slot: n.slot}
	}
	if n.byName == nil {
		n.byName = make(map[string]*Node)
	}
	return resolve(n.slot, related, &n.joins, n.byName, name)
}

func resolve(slot *errorSlot, owner *registry.TypeInfo, nodes *[]*Node, byName map[string]*Node, name string) *Node {
	if existing, ok := byName[name]; ok {
		return existing
	}
	prop, ok := owner.Property(name)
	if !ok {
		slot.fail(errors.NewPropertyNotFoundError(registry.TypeName(owner.Type), name))
		return &Node{slot: slot}
	}
	n := &Node{slot: slot, owner: owner, prop: prop}
	byName[name] = n
	*nodes = append(*nodes, n)
	return n
}

func (n *Node) add(p Predicate) *Node {
	if n.prop == nil {
		return n
	}
	n.predicates = append(n.predicates, p)
	return n
}

func (n *Node) compare(op Operator, values ...any) *Node {
	if n.prop != nil && n.prop.Kind != registry.Scalar {
		n.slot.fail(errors.NewValidationError(n.prop.Name, fmt.Sprintf("%s applies to scalar properties, %s is a %s", op, n.prop.Name, n.prop.Kind)))
		return n
	}
	return n.add(Predicate{Op: op, Values: values})
}

func (n *Node) Eq(value any) *Node { return n.compare(Eq, value) }

// Like matches a substring; mode defaults to Anywhere.
func (n *Node) Like(value string, mode ...MatchMode) *Node {
	return n.like(Like, value, mode)
}

// InsensitiveLike is Like ignoring case.
func (n *Node) InsensitiveLike(value string, mode ...MatchMode) *Node {
	return n.like(InsensitiveLike, value, mode)
}

func (n *Node) like(op Operator, value string, mode []MatchMode) *Node {
	m := Anywhere
	if len(mode) > 0 {
		m = mode[0]
	}
	if n.prop != nil && n.prop.Kind != registry.Scalar {
		return n.compare(op, value)
	}
	return n.add(Predicate{Op: op, Values: []any{value}, Mode: m})
}

func (n *Node) Gt(value any) *Node { return n.compare(Gt, value) }

func (n *Node) Ge(value any) *Node { return n.compare(Ge, value) }

func (n *Node) Lt(value any) *Node { return n.compare(Lt, value) }

func (n *Node) Le(value any) *Node { return n.compare(Le, value) }

// Between is an inclusive range.
func (n *Node) Between(lo, hi any) *Node { return n.compare(Between, lo, hi) }

// In matches any of the supplied values, first and rest alike.
func (n *Node) In(first any, rest ...any) *Node {
	return n.compare(In, append([]any{first}, rest...)...)
}

// IsNull applies to nullable scalars and relations.
func (n *Node) IsNull() *Node { return n.add(Predicate{Op: IsNull}) }

func (n *Node) IsNotNull() *Node { return n.add(Predicate{Op: IsNotNull}) }

// IsEmpty applies to collection-valued properties only.
func (n *Node) IsEmpty() *Node { return n.emptiness(IsEmpty) }

func (n *Node) IsNotEmpty() *Node { return n.emptiness(IsNotEmpty) }

func (n *Node) emptiness(op Operator) *Node {
	if n.prop != nil && !n.prop.IsCollection() {
		n.slot.fail(errors.NewValidationError(n.prop.Name, fmt.Sprintf("%s applies to collections, %s is not one", op, n.prop.Name)))
		return n
	}
	return n.add(Predicate{Op: op})
}

func (n *Node) write(sb *strings.Builder) {
	first := true
	sep := func() {
		if !first {
			sb.WriteString(" AND ")
		}
		first = false
	}
	for _, p := range n.predicates {
		sep()
		sb.WriteString(n.prop.Name)
		sb.WriteByte('.')
		sb.WriteString(p.String())
	}
	if len(n.joins) > 0 {
		sep()
		sb.WriteString(n.prop.Name)
		sb.WriteByte('{')
		writeNodes(sb, n.joins)
		sb.WriteByte('}')
	}
}

func writeNodes(sb *strings.Builder, nodes []*Node) {
	written := 0
	for _, n := range nodes {
		if len(n.predicates) == 0 && len(n.joins) == 0 {
			continue
		}
		if written > 0 {
			sb.WriteString(" AND ")
		}
		n.write(sb)
		written++
	}
}

// Walk visits nodes depth-first, parents before their joins. path holds the ancestors of n.
func Walk(nodes []*Node, fn func(path []*Node, n *Node) error) error {
	return walk(nil, nodes, fn)
}

func walk(path []*Node, nodes []*Node, fn func(path []*Node, n *Node) error) error {
	for _, n := range nodes {
		if err := fn(path, n); err != nil {
			return err
		}
		if err := walk(append(path[:len(path):len(path)], n), n.joins, fn); err != nil {
			return err
		}
	}
	return nil
}

// TargetOf returns the entity type of a query type implementing Targeted, as used by providers
// deciding whether they take care of a query type. EntityType must not dereference its receiver.
func TargetOf(t reflect.Type) (target reflect.Type, ok bool) {
	if t == nil || !t.Implements(targetedType) {
		return nil, false
	}
	defer func() {
		if recover() != nil {
			target, ok = nil, false
		}
	}()
	return reflect.Zero(t).Interface().(Targeted).EntityType(), true
}

var targetedType = reflect.TypeFor[Targeted]()
