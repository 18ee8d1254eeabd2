/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/query"
	"github.com/suparena/entitywork/registry"
)

// TypeSet is the set of entity types a provider takes care of. Concrete types match exactly;
// interface types match every entity implementing them.
type TypeSet struct {
	mu         sync.RWMutex
	concrete   map[reflect.Type]bool
	interfaces []reflect.Type
}

func NewTypeSet(types ...reflect.Type) *TypeSet {
	s := &TypeSet{concrete: make(map[reflect.Type]bool)}
	for _, t := range types {
		s.Add(t)
	}
	return s
}

// Register adds T to s.
func Register[T any](s *TypeSet) {
	s.Add(reflect.TypeFor[T]())
}

// Add registers t. Pointer types register their element.
func (s *TypeSet) Add(t reflect.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Kind() == reflect.Interface {
		s.interfaces = append(s.interfaces, t)
		return
	}
	s.concrete[registry.Indirect(t)] = true
}

// Owns reports whether the entity type t belongs to the set.
func (s *TypeSet) Owns(t reflect.Type) bool {
	t = registry.Indirect(t)
	if t == nil || t.Kind() != reflect.Struct {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.concrete[t] {
		return true
	}
	for _, iface := range s.interfaces {
		if t.Implements(iface) || reflect.PointerTo(t).Implements(iface) {
			return true
		}
	}
	return false
}

// TakesCareOf accepts entity types of the set and query types targeting them.
func (s *TypeSet) TakesCareOf(t reflect.Type) bool {
	if target, ok := query.TargetOf(t); ok {
		return s.Owns(target)
	}
	return s.Owns(t)
}

// Types returns the concrete types of the set; interface registrations are not listed.
func (s *TypeSet) Types() []reflect.Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]reflect.Type, 0, len(s.concrete))
	for t := range s.concrete {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].String() < types[j].String() })
	return types
}

// Len is the number of registered concrete and interface types.
func (s *TypeSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.concrete) + len(s.interfaces)
}

// Compile checks that q is a query tree without recorded errors.
func Compile(q any) (query.Compilable, error) {
	c, ok := q.(query.Compilable)
	if !ok {
		return nil, errors.NewInternalError("unsupported query type %T", q)
	}
	if err := c.Err(); err != nil {
		return nil, errors.Wrapf(err, "compiling query on %s", registry.TypeName(c.EntityType()))
	}
	return c, nil
}

var compilableType = reflect.TypeFor[query.Compilable]()

// IsCompilable reports whether t is a predicate-tree query type such as *query.Dynamic[T].
func IsCompilable(t reflect.Type) bool {
	return t != nil && t.Implements(compilableType)
}

// NewQuery instantiates a query type for QueryCreator implementations.
func NewQuery(t reflect.Type) (any, error) {
	if t.Kind() != reflect.Pointer {
		return nil, errors.NewInternalError("query type %s must be a pointer", t)
	}
	q := reflect.New(t.Elem()).Interface()
	if _, ok := q.(query.Compilable); !ok {
		return nil, errors.NewInternalError("unsupported query type %s", t)
	}
	return q, nil
}

// Key is the canonical string form of an identifier, so 7, uint(7) and "7" address the same row.
func Key(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case strfmt.UUID:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	rv := reflect.ValueOf(id)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		return Key(rv.Elem().Interface())
	}
	return fmt.Sprint(id)
}

var uuidType = reflect.TypeFor[uuid.UUID]()

// AssignID fills a zero identity field of the entity pointed to by v. Strings and UUIDs get a
// random UUID; integers take the next value of seq. It returns the identity key.
func AssignID(info *registry.TypeInfo, v reflect.Value, seq func() int64) (string, error) {
	if info.ID == nil {
		return "", errors.NewValidationError(info.Name, "entity has no identity field")
	}
	field, ok := info.IDValue(v)
	if !ok {
		return "", errors.NewValidationError(info.ID.Name, "identity field is unreachable")
	}
	if !field.IsZero() {
		return Key(field.Interface()), nil
	}
	if !field.CanSet() {
		return "", errors.NewValidationError(info.ID.Name, "identity field cannot be assigned")
	}
	switch {
	case field.Type() == uuidType:
		field.Set(reflect.ValueOf(uuid.New()))
	case field.Kind() == reflect.String:
		field.SetString(uuid.NewString())
	case field.CanInt():
		field.SetInt(seq())
	case field.CanUint():
		field.SetUint(uint64(seq()))
	default:
		return "", errors.NewValidationError(info.ID.Name, "cannot generate a value of type "+field.Type().String())
	}
	return Key(field.Interface()), nil
}

// OpKind is the kind of a queued write.
type OpKind int

const (
	OpAdd OpKind = iota
	OpRemove
)

func (k OpKind) String() string {
	if k == OpRemove {
		return "remove"
	}
	return "add"
}

// Op is one queued write.
type Op struct {
	Kind   OpKind
	Entity any
}

// Pending queues writes until a provider flushes them.
type Pending struct {
	mu  sync.Mutex
	ops []Op
}

func (p *Pending) Push(kind OpKind, entity any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, Op{Kind: kind, Entity: entity})
}

// Drain removes and returns the queued writes in order.
func (p *Pending) Drain() []Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	ops := p.ops
	p.ops = nil
	return ops
}

// Apply hands queued writes to fn in order. When fn fails, the failing
// write and everything behind it stay queued so a later flush, including
// the one at commit, reports the failure again.
func (p *Pending) Apply(fn func(Op) error) (int, error) {
	p.mu.Lock()
	ops := p.ops
	p.ops = nil
	p.mu.Unlock()
	for i, op := range ops {
		if err := fn(op); err != nil {
			p.mu.Lock()
			p.ops = append(ops[i:len(ops):len(ops)], p.ops...)
			p.mu.Unlock()
			return i, err
		}
	}
	return len(ops), nil
}

func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ops)
}
