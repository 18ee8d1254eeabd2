/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package registry

import (
	"database/sql/driver"
	"encoding"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/suparena/entitywork/errors"
)

// PropertyKind classifies a property for query compilation.
type PropertyKind int

const (
	// Scalar is a plain value: numbers, strings, times, ids, scalar slices.
	Scalar PropertyKind = iota
	// Relation is a single related entity (struct or pointer to struct).
	Relation
	// Collection is a slice of related entities.
	Collection
)

func (k PropertyKind) String() string {
	switch k {
	case Relation:
		return "relation"
	case Collection:
		return "collection"
	default:
		return "scalar"
	}
}

// Property describes one exported field of an entity type.
type Property struct {
	Name  string
	Type  reflect.Type
	Kind  PropertyKind
	Index []int

	// Target is the related entity type for relations and collections, pointer stripped.
	Target reflect.Type
}

// IsCollection reports whether the property holds many values, related or not.
func (p *Property) IsCollection() bool {
	if p.Kind == Collection {
		return true
	}
	switch p.Type.Kind() {
	case reflect.Slice:
		return p.Type.Elem().Kind() != reflect.Uint8
	case reflect.Map:
		return true
	case reflect.Array:
		return !isScalarValue(p.Type)
	}
	return false
}

// Value returns the field value on v, which must be a struct value of the owning type.
// The second result is false when an embedded pointer on the path is nil.
func (p *Property) Value(v reflect.Value) (reflect.Value, bool) {
	for i, idx := range p.Index {
		if i > 0 {
			if v.Kind() == reflect.Pointer {
				if v.IsNil() {
					return reflect.Value{}, false
				}
				v = v.Elem()
			}
		}
		v = v.Field(idx)
	}
	return v, true
}

// TypeInfo is the property set of an entity type.
type TypeInfo struct {
	Type       reflect.Type
	Name       string
	Properties []*Property
	ID         *Property

	byName map[string]*Property
}

// Property looks up a property by its Go field name.
func (ti *TypeInfo) Property(name string) (*Property, bool) {
	p, ok := ti.byName[name]
	return p, ok
}

// IDValue returns the identity field of the entity pointed to by v.
func (ti *TypeInfo) IDValue(v reflect.Value) (reflect.Value, bool) {
	if ti.ID == nil {
		return reflect.Value{}, false
	}
	v = reflect.Indirect(v)
	if !v.IsValid() {
		return reflect.Value{}, false
	}
	return ti.ID.Value(v)
}

var (
	typeInfos sync.Map // reflect.Type -> *TypeInfo

	textMarshaler = reflect.TypeFor[encoding.TextMarshaler]()
	valuer        = reflect.TypeFor[driver.Valuer]()
)

// Describe returns the cached property set of t. Pointer types are dereferenced.
func Describe(t reflect.Type) (*TypeInfo, error) {
	t = Indirect(t)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, errors.NewValidationError("type", fmt.Sprintf("%v is not a struct type", t))
	}
	if ti, ok := typeInfos.Load(t); ok {
		return ti.(*TypeInfo), nil
	}
	ti := describe(t)
	actual, _ := typeInfos.LoadOrStore(t, ti)
	return actual.(*TypeInfo), nil
}

// Of is Describe for a type parameter.
func Of[T any]() (*TypeInfo, error) {
	return Describe(reflect.TypeFor[T]())
}

// Indirect strips pointer levels from t.
func Indirect(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// TypeName is the short name used in errors and logs, e.g. "model.Employee".
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return Indirect(t).String()
}

func describe(t reflect.Type) *TypeInfo {
	ti := &TypeInfo{
		Type:   t,
		Name:   t.Name(),
		byName: make(map[string]*Property),
	}

	var named *Property
	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous || !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("entity")
		if tag == "-" {
			continue
		}
		p := &Property{
			Name:  f.Name,
			Type:  f.Type,
			Index: f.Index,
		}
		classify(p)
		ti.Properties = append(ti.Properties, p)
		ti.byName[p.Name] = p

		if hasOption(tag, "id") {
			ti.ID = p
		}
		if named == nil && (strings.EqualFold(f.Name, "id")) {
			named = p
		}
	}
	if ti.ID == nil {
		ti.ID = named
	}
	return ti
}

func classify(p *Property) {
	t := p.Type
	switch {
	case isScalarValue(t):
		p.Kind = Scalar
	case Indirect(t).Kind() == reflect.Struct:
		p.Kind = Relation
		p.Target = Indirect(t)
	case t.Kind() == reflect.Slice || t.Kind() == reflect.Array:
		elem := Indirect(t.Elem())
		if elem.Kind() == reflect.Struct && !isScalarValue(t.Elem()) {
			p.Kind = Collection
			p.Target = elem
		}
	}
}

// isScalarValue reports whether t is stored as a single value even when it is a struct,
// e.g. time.Time, strfmt.DateTime or sql.NullString.
func isScalarValue(t reflect.Type) bool {
	base := Indirect(t)
	if base.Kind() != reflect.Struct && base.Kind() != reflect.Array {
		return base.Kind() != reflect.Slice || base.Elem().Kind() == reflect.Uint8
	}
	ptr := reflect.PointerTo(base)
	if base.Implements(textMarshaler) || ptr.Implements(textMarshaler) {
		return true
	}
	if base.Implements(valuer) || ptr.Implements(valuer) {
		return true
	}
	// Fixed-size byte arrays such as uuid.UUID.
	return base.Kind() == reflect.Array && base.Elem().Kind() == reflect.Uint8
}

func hasOption(tag, option string) bool {
	for _, part := range strings.Split(tag, ",") {
		if strings.TrimSpace(part) == option {
			return true
		}
	}
	return false
}
