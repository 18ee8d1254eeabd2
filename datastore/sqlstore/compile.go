/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/suparena/entitywork/errors"
	"github.com/suparena/entitywork/query"
	"github.com/suparena/entitywork/registry"
	"github.com/suparena/entitywork/storagemodels"
)

// compiler turns a predicate tree into gorm conditions. Joins become correlated
// `outer IN (SELECT inner FROM related AS tN WHERE ...)` subqueries, so a parent row is
// returned once no matter how many related rows match.
type compiler struct {
	db      *gorm.DB
	aliases int
}

func (c *compiler) alias() string {
	c.aliases++
	return "t" + strconv.Itoa(c.aliases)
}

// from starts a dry-run subquery over the table of sch under alias.
func (c *compiler) from(sch *schema.Schema, alias string) *gorm.DB {
	return c.db.Session(&gorm.Session{NewDB: true}).Table(c.db.Statement.Quote(sch.Table) + " AS " + alias)
}

func (c *compiler) where(sch *schema.Schema, table string, nodes []*query.Node) ([]clause.Expression, error) {
	var exprs []clause.Expression
	for _, n := range nodes {
		if n.Property() == nil {
			return nil, errors.NewInternalError("detached node reached compilation")
		}
		switch n.Property().Kind {
		case registry.Scalar:
			field := sch.LookUpField(n.Name())
			if field == nil || field.DBName == "" {
				return nil, errors.NewPropertyNotFoundError(sch.Name, n.Name())
			}
			col := clause.Column{Table: table, Name: field.DBName}
			for _, p := range n.Predicates() {
				expr, err := scalar(col, p)
				if err != nil {
					return nil, err
				}
				exprs = append(exprs, expr)
			}
		default:
			joined, err := c.relation(sch, table, n)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, joined...)
		}
	}
	return exprs, nil
}

// keys returns the column on the owning side and the column on the related side of rel.
func keys(rel *schema.Relationship) (outer, inner string, err error) {
	if rel.Type == schema.Many2Many || rel.Polymorphic != nil || len(rel.References) != 1 {
		return "", "", errors.NewValidationError(rel.Name, fmt.Sprintf("%s relationships with %d keys cannot be queried", rel.Type, len(rel.References)))
	}
	ref := rel.References[0]
	if ref.OwnPrimaryKey {
		return ref.PrimaryKey.DBName, ref.ForeignKey.DBName, nil
	}
	return ref.ForeignKey.DBName, ref.PrimaryKey.DBName, nil
}

func (c *compiler) relation(sch *schema.Schema, table string, n *query.Node) ([]clause.Expression, error) {
	rel, ok := sch.Relationships.Relations[n.Name()]
	if !ok {
		return nil, errors.NewValidationError(n.Name(), sch.Name+"."+n.Name()+" is not mapped as a relationship")
	}
	outer, inner, err := keys(rel)
	if err != nil {
		return nil, err
	}
	outerCol := clause.Column{Table: table, Name: outer}

	var exprs []clause.Expression
	for _, p := range n.Predicates() {
		alias := c.alias()
		sub := c.from(rel.FieldSchema, alias).Select("?", clause.Column{Table: alias, Name: inner})
		// only a belongs-to keeps the reference on the owning row; the others ask the related table
		owned := rel.Type == schema.BelongsTo
		switch {
		case p.Op == query.IsNull && owned:
			exprs = append(exprs, clause.Expr{SQL: "? IS NULL", Vars: []any{outerCol}})
		case p.Op == query.IsNotNull && owned:
			exprs = append(exprs, clause.Expr{SQL: "? IS NOT NULL", Vars: []any{outerCol}})
		case p.Op == query.IsEmpty || p.Op == query.IsNull:
			exprs = append(exprs, clause.Expr{SQL: "? NOT IN (?)", Vars: []any{outerCol, sub.Where(clause.Expr{SQL: "? IS NOT NULL", Vars: []any{clause.Column{Table: alias, Name: inner}}})}})
		case p.Op == query.IsNotEmpty || p.Op == query.IsNotNull:
			exprs = append(exprs, clause.Expr{SQL: "? IN (?)", Vars: []any{outerCol, sub}})
		default:
			return nil, errors.NewValidationError(n.Name(), fmt.Sprintf("%s cannot be applied to the %s relationship", p.Op, rel.Type))
		}
	}

	if len(n.Joins()) == 0 {
		return exprs, nil
	}
	alias := c.alias()
	conds, err := c.where(rel.FieldSchema, alias, n.Joins())
	if err != nil {
		return nil, err
	}
	sub := c.from(rel.FieldSchema, alias).Select("?", clause.Column{Table: alias, Name: inner})
	if len(conds) > 0 {
		sub = sub.Where(clause.And(conds...))
	}
	return append(exprs, clause.Expr{SQL: "? IN (?)", Vars: []any{outerCol, sub}}), nil
}

func scalar(col clause.Column, p query.Predicate) (clause.Expression, error) {
	switch p.Op {
	case query.Eq:
		return clause.Eq{Column: col, Value: p.Values[0]}, nil
	case query.Gt:
		return clause.Gt{Column: col, Value: p.Values[0]}, nil
	case query.Ge:
		return clause.Gte{Column: col, Value: p.Values[0]}, nil
	case query.Lt:
		return clause.Lt{Column: col, Value: p.Values[0]}, nil
	case query.Le:
		return clause.Lte{Column: col, Value: p.Values[0]}, nil
	case query.Between:
		return clause.Expr{SQL: "? BETWEEN ? AND ?", Vars: []any{col, p.Values[0], p.Values[1]}}, nil
	case query.In:
		return clause.IN{Column: col, Values: p.Values}, nil
	case query.Like:
		return clause.Like{Column: col, Value: p.Mode.Wildcard(fmt.Sprint(p.Values[0]))}, nil
	case query.InsensitiveLike:
		return clause.Expr{SQL: "LOWER(?) LIKE LOWER(?)", Vars: []any{col, p.Mode.Wildcard(fmt.Sprint(p.Values[0]))}}, nil
	case query.IsNull:
		return clause.Expr{SQL: "? IS NULL", Vars: []any{col}}, nil
	case query.IsNotNull:
		return clause.Expr{SQL: "? IS NOT NULL", Vars: []any{col}}, nil
	case query.IsEmpty:
		// serialized scalar collections
		return clause.Expr{SQL: "(? IS NULL OR ? IN ('', '[]', 'null'))", Vars: []any{col, col}}, nil
	case query.IsNotEmpty:
		return clause.Expr{SQL: "(? IS NOT NULL AND ? NOT IN ('', '[]', 'null'))", Vars: []any{col, col}}, nil
	}
	return nil, errors.NewInternalError("unhandled operator %s", p.Op)
}

// order renders a dotted path as an ORDER BY operand. Paths through single relations become
// scalar subqueries correlated with the owning row.
func (c *compiler) order(sch *schema.Schema, table string, path []string) (any, error) {
	if len(path) == 1 {
		field := sch.LookUpField(path[0])
		if field == nil || field.DBName == "" {
			return nil, errors.NewPropertyNotFoundError(sch.Name, path[0])
		}
		return clause.Column{Table: table, Name: field.DBName}, nil
	}
	rel, ok := sch.Relationships.Relations[path[0]]
	if !ok || (rel.Type != schema.BelongsTo && rel.Type != schema.HasOne) {
		return nil, errors.NewValidationError(strings.Join(path, "."), path[0]+" is not a single relationship")
	}
	outer, inner, err := keys(rel)
	if err != nil {
		return nil, err
	}
	alias := c.alias()
	operand, err := c.order(rel.FieldSchema, alias, path[1:])
	if err != nil {
		return nil, err
	}
	if _, ok := operand.(clause.Column); !ok {
		operand = clause.Expr{SQL: "(?)", Vars: []any{operand}}
	}
	return c.from(rel.FieldSchema, alias).
		Select("?", operand).
		Where(clause.Eq{Column: clause.Column{Table: alias, Name: inner}, Value: clause.Column{Table: table, Name: outer}}), nil
}

// orderBy folds orders into one clause so column and subquery operands keep their sequence.
func (c *compiler) orderBy(sch *schema.Schema, orders []storagemodels.Order) (clause.Expression, error) {
	var (
		sql  strings.Builder
		vars []any
	)
	for i, o := range orders {
		operand, err := c.order(sch, sch.Table, strings.Split(o.Path, "."))
		if err != nil {
			return nil, err
		}
		if i > 0 {
			sql.WriteString(", ")
		}
		if _, ok := operand.(clause.Column); ok {
			sql.WriteString("?")
		} else {
			sql.WriteString("(?)")
		}
		if o.Direction == storagemodels.Desc {
			sql.WriteString(" DESC")
		}
		vars = append(vars, operand)
	}
	return clause.OrderBy{Expression: clause.Expr{SQL: sql.String(), Vars: vars}}, nil
}

// preload checks that path names relationships all the way down.
func preload(sch *schema.Schema, path string) error {
	current := sch
	for _, part := range strings.Split(path, ".") {
		rel, ok := current.Relationships.Relations[part]
		if !ok {
			return errors.NewPropertyNotFoundError(current.Name, part)
		}
		current = rel.FieldSchema
	}
	return nil
}
