/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/registry"
	"github.com/suparena/entitywork/storagemodels"
)

// Match evaluates a predicate tree against one entity (a struct or pointer to struct).
// A join on a relation requires the related entity to exist; a join on a collection
// requires one element that satisfies every predicate of the join.
func Match(entity any, nodes []*Node) (bool, error) {
	v := reflect.Indirect(reflect.ValueOf(entity))
	if !v.IsValid() {
		return false, nil
	}
	return matchNodes(v, nodes)
}

func matchNodes(v reflect.Value, nodes []*Node) (bool, error) {
	for _, n := range nodes {
		ok, err := matchNode(v, n)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchNode(v reflect.Value, n *Node) (bool, error) {
	if n.prop == nil {
		return false, errors.NewInternalError("detached node reached evaluation")
	}
	fv, ok := n.prop.Value(v)
	if !ok {
		fv = reflect.Value{}
	}
	for _, p := range n.predicates {
		ok, err := evaluate(fv, p)
		if err != nil || !ok {
			return false, err
		}
	}
	if len(n.joins) == 0 {
		return true, nil
	}

	switch n.prop.Kind {
	case registry.Relation:
		target := reflect.Indirect(fv)
		if !target.IsValid() {
			return false, nil
		}
		return matchNodes(target, n.joins)
	case registry.Collection:
		if !fv.IsValid() {
			return false, nil
		}
		for i := 0; i < fv.Len(); i++ {
			elem := reflect.Indirect(fv.Index(i))
			if !elem.IsValid() {
				continue
			}
			ok, err := matchNodes(elem, n.joins)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, errors.NewInternalError("join on scalar property %s", n.prop.Name)
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func evaluate(fv reflect.Value, p Predicate) (bool, error) {
	switch p.Op {
	case IsNull:
		return isNil(fv), nil
	case IsNotNull:
		return !isNil(fv), nil
	case IsEmpty:
		return isNil(fv) || reflect.Indirect(fv).Len() == 0, nil
	case IsNotEmpty:
		return !isNil(fv) && reflect.Indirect(fv).Len() > 0, nil
	}

	if isNil(fv) {
		return false, nil
	}
	value := normalize(reflect.Indirect(fv).Interface())

	switch p.Op {
	case Like, InsensitiveLike:
		s, ok := value.(string)
		if !ok {
			return false, errors.NewValidationError(p.Op.String(), fmt.Sprintf("cannot match %T against a pattern", value))
		}
		return p.Mode.Match(s, fmt.Sprint(p.Values[0]), p.Op == InsensitiveLike), nil
	case In:
		for _, candidate := range p.Values {
			if c, ok := compare(value, normalize(candidate)); ok && c == 0 {
				return true, nil
			}
		}
		return false, nil
	case Between:
		lo, okLo := compare(value, normalize(p.Values[0]))
		hi, okHi := compare(value, normalize(p.Values[1]))
		if !okLo || !okHi {
			return false, incomparable(value, p)
		}
		return lo >= 0 && hi <= 0, nil
	}

	c, ok := compare(value, normalize(p.Values[0]))
	if !ok {
		if p.Op == Eq {
			return false, nil
		}
		return false, incomparable(value, p)
	}
	switch p.Op {
	case Eq:
		return c == 0, nil
	case Gt:
		return c > 0, nil
	case Ge:
		return c >= 0, nil
	case Lt:
		return c < 0, nil
	case Le:
		return c <= 0, nil
	}
	return false, errors.NewInternalError("unhandled operator %s", p.Op)
}

func incomparable(value any, p Predicate) error {
	return errors.NewValidationError(p.Op.String(), fmt.Sprintf("cannot order %T against %T", value, p.Values[0]))
}

// normalize maps values to int64, uint64, float64, string, bool or time.Time where possible.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case time.Time:
		return x
	case strfmt.DateTime:
		return time.Time(x)
	case strfmt.Date:
		return time.Time(x)
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	if rv.Type() != reflect.TypeOf(v) && rv.CanInterface() {
		return normalize(rv.Interface())
	}
	return v
}

// compare orders two normalized values. ok is false when they are not comparable.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), true
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	case int64, uint64, float64:
		return compareNumbers(a, b)
	}
	if a == nil || b == nil {
		return 0, false
	}
	if reflect.DeepEqual(a, b) {
		return 0, true
	}
	return 0, false
}

func compareNumbers(a, b any) (int, bool) {
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return cmpOrdered(x, y), true
		case uint64:
			if x < 0 {
				return -1, true
			}
			return cmpOrdered(uint64(x), y), true
		}
	case uint64:
		switch y := b.(type) {
		case uint64:
			return cmpOrdered(x, y), true
		case int64:
			if y < 0 {
				return 1, true
			}
			return cmpOrdered(x, uint64(y)), true
		}
	}
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if !okA || !okB {
		return 0, false
	}
	return cmpOrdered(fa, fb), true
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func cmpOrdered[N int64 | uint64 | float64](a, b N) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Sort orders items by the given property paths. Missing values (nil relations or pointers)
// sort first in ascending order. Paths through collections are rejected.
func Sort[T any](items []*T, orders []storagemodels.Order) error {
	if len(orders) == 0 {
		return nil
	}
	info, err := registry.Of[T]()
	if err != nil {
		return err
	}
	return sortSlice(info, reflect.ValueOf(items), orders)
}

// sortSlice sorts a slice of entities (structs or pointers to structs) in place.
func sortSlice(info *registry.TypeInfo, items reflect.Value, orders []storagemodels.Order) error {
	paths := make([][]*registry.Property, len(orders))
	for i, o := range orders {
		var err error
		if paths[i], err = resolvePath(info, o.Path); err != nil {
			return err
		}
	}

	var sortErr error
	sort.SliceStable(items.Interface(), func(i, j int) bool {
		for k, o := range orders {
			a := valueAt(items.Index(i), paths[k])
			b := valueAt(items.Index(j), paths[k])
			c, ok := compareNullable(a, b)
			if !ok {
				if sortErr == nil {
					sortErr = errors.NewValidationError(o.Path, fmt.Sprintf("values of type %T are not ordered", a))
				}
				return false
			}
			if c == 0 {
				continue
			}
			if o.Direction == storagemodels.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return sortErr
}

// ResolvePath resolves a dotted path of scalar or single-relation properties on t.
func ResolvePath(t reflect.Type, path string) ([]*registry.Property, error) {
	info, err := registry.Describe(t)
	if err != nil {
		return nil, err
	}
	return resolvePath(info, path)
}

func resolvePath(info *registry.TypeInfo, path string) ([]*registry.Property, error) {
	var props []*registry.Property
	current := info
	parts := strings.Split(path, ".")
	for i, part := range parts {
		p, ok := current.Property(part)
		if !ok {
			return nil, errors.NewPropertyNotFoundError(registry.TypeName(current.Type), part)
		}
		props = append(props, p)
		if i == len(parts)-1 {
			break
		}
		if p.Kind != registry.Relation {
			return nil, errors.NewValidationError(path, fmt.Sprintf("%s is a %s and cannot be traversed", p.Name, p.Kind))
		}
		next, err := registry.Describe(p.Target)
		if err != nil {
			return nil, err
		}
		current = next
	}
	if last := props[len(props)-1]; last.Kind != registry.Scalar {
		return nil, errors.NewValidationError(path, fmt.Sprintf("%s is a %s and cannot be ordered", last.Name, last.Kind))
	}
	return props, nil
}

func valueAt(v reflect.Value, path []*registry.Property) any {
	for _, p := range path {
		v = reflect.Indirect(v)
		if !v.IsValid() {
			return nil
		}
		fv, ok := p.Value(v)
		if !ok {
			return nil
		}
		v = fv
	}
	if isNil(v) {
		return nil
	}
	return normalize(reflect.Indirect(v).Interface())
}

func compareNullable(a, b any) (int, bool) {
	switch {
	case a == nil && b == nil:
		return 0, true
	case a == nil:
		return -1, true
	case b == nil:
		return 1, true
	}
	return compare(a, b)
}
