/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ddb

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/query"
	"github.com/suparena/entitywork/registry"
)

// maxInOperands is the DynamoDB limit on the right-hand side of IN.
const maxInOperands = 100

// filter is a Scan FilterExpression with its placeholder maps. Attribute names are always
// aliased, so reserved words such as Name or Size need no special care.
type filter struct {
	exprs  []string
	names  map[string]string
	values map[string]types.AttributeValue
	byName map[string]string
	next   int
}

func newFilter() *filter {
	return &filter{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
		byName: make(map[string]string),
	}
}

// compileFilter restricts a scan to one entity type and to the predicates of nodes.
func compileFilter(entityType string, nodes []*query.Node) (*filter, error) {
	f := newFilter()
	v, err := f.value(entityType)
	if err != nil {
		return nil, err
	}
	f.exprs = append(f.exprs, f.name(EntityTypeAttribute)+" = "+v)
	if err := f.nodes(nil, nodes); err != nil {
		return nil, err
	}
	return f, nil
}

// Expression joins every condition with AND.
func (f *filter) Expression() string {
	return strings.Join(f.exprs, " AND ")
}

func (f *filter) name(attr string) string {
	if ph, ok := f.byName[attr]; ok {
		return ph
	}
	ph := fmt.Sprintf("#n%d", len(f.byName))
	f.byName[attr] = ph
	f.names[ph] = attr
	return ph
}

func (f *filter) value(v any) (string, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return "", errors.Wrapf(err, "marshaling filter value %v", v)
	}
	ph := fmt.Sprintf(":v%d", f.next)
	f.next++
	f.values[ph] = av
	return ph, nil
}

func (f *filter) path(attrs []string) string {
	parts := make([]string, len(attrs))
	for i, attr := range attrs {
		parts[i] = f.name(attr)
	}
	return strings.Join(parts, ".")
}

// attributeName is the attribute a property marshals to: its dynamodbav tag name, or the field name.
func attributeName(n *query.Node) (string, bool) {
	field := n.Owner().Type.FieldByIndex(n.Property().Index)
	tag := field.Tag.Get("dynamodbav")
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return field.Name, true
}

func (f *filter) nodes(prefix []string, nodes []*query.Node) error {
	for _, n := range nodes {
		if n.Property() == nil {
			return errors.NewInternalError("detached node reached compilation")
		}
		attr, ok := attributeName(n)
		if !ok {
			return errors.NewValidationError(n.Name(), "property is not stored in DynamoDB")
		}
		attrs := append(prefix[:len(prefix):len(prefix)], attr)

		for _, p := range n.Predicates() {
			if !expressible(p) {
				continue
			}
			expr, err := f.predicate(f.path(attrs), p)
			if err != nil {
				return err
			}
			f.exprs = append(f.exprs, expr)
		}
		if len(n.Joins()) == 0 {
			continue
		}
		if n.Property().Kind != registry.Relation {
			continue
		}
		// the related entity is an embedded document; requiring it mirrors inner-join semantics
		f.exprs = append(f.exprs, fmt.Sprintf("attribute_type(%s, %s)", f.path(attrs), f.literal("mapType", &types.AttributeValueMemberS{Value: "M"})))
		if err := f.nodes(attrs, n.Joins()); err != nil {
			return err
		}
	}
	return nil
}

// expressible reports whether a predicate has a FilterExpression form. The rest are
// left to query.Match, which re-checks every scanned row.
func expressible(p query.Predicate) bool {
	switch p.Op {
	case query.InsensitiveLike:
		return false
	case query.In:
		return len(p.Values) <= maxInOperands
	case query.Like:
		return p.Mode != query.End
	}
	return true
}

// literal registers a constant operand once.
func (f *filter) literal(key string, av types.AttributeValue) string {
	ph := ":" + key
	f.values[ph] = av
	return ph
}

func (f *filter) nullType() string {
	return f.literal("nullType", &types.AttributeValueMemberS{Value: "NULL"})
}

func (f *filter) predicate(path string, p query.Predicate) (string, error) {
	switch p.Op {
	case query.IsNull:
		return fmt.Sprintf("(attribute_not_exists(%s) OR attribute_type(%s, %s))", path, path, f.nullType()), nil
	case query.IsNotNull:
		return fmt.Sprintf("(attribute_exists(%s) AND NOT attribute_type(%s, %s))", path, path, f.nullType()), nil
	case query.IsEmpty:
		zero := f.literal("zero", &types.AttributeValueMemberN{Value: "0"})
		return fmt.Sprintf("(attribute_not_exists(%s) OR attribute_type(%s, %s) OR size(%s) = %s)", path, path, f.nullType(), path, zero), nil
	case query.IsNotEmpty:
		zero := f.literal("zero", &types.AttributeValueMemberN{Value: "0"})
		return fmt.Sprintf("size(%s) > %s", path, zero), nil
	case query.In:
		operands := make([]string, len(p.Values))
		for i, v := range p.Values {
			ph, err := f.value(v)
			if err != nil {
				return "", err
			}
			operands[i] = ph
		}
		return fmt.Sprintf("%s IN (%s)", path, strings.Join(operands, ", ")), nil
	case query.Between:
		lo, err := f.value(p.Values[0])
		if err != nil {
			return "", err
		}
		hi, err := f.value(p.Values[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", path, lo, hi), nil
	}

	v, err := f.value(p.Values[0])
	if err != nil {
		return "", err
	}
	switch p.Op {
	case query.Eq:
		return path + " = " + v, nil
	case query.Gt:
		return path + " > " + v, nil
	case query.Ge:
		return path + " >= " + v, nil
	case query.Lt:
		return path + " < " + v, nil
	case query.Le:
		return path + " <= " + v, nil
	case query.Like:
		switch p.Mode {
		case query.Start:
			return fmt.Sprintf("begins_with(%s, %s)", path, v), nil
		case query.Exact:
			return path + " = " + v, nil
		default:
			return fmt.Sprintf("contains(%s, %s)", path, v), nil
		}
	}
	return "", errors.NewInternalError("unhandled operator %s", p.Op)
}
