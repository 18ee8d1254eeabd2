/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package query

import (
	"fmt"
	"strings"
)

// Operator is a comparison applied to one property.
type Operator int

const (
	Eq Operator = iota
	Like
	InsensitiveLike
	Gt
	Ge
	Lt
	Le
	Between
	In
	IsNull
	IsNotNull
	IsEmpty
	IsNotEmpty
)

var operatorNames = [...]string{
	Eq:              "Eq",
	Like:            "Like",
	InsensitiveLike: "InsensitiveLike",
	Gt:              "Gt",
	Ge:              "Ge",
	Lt:              "Lt",
	Le:              "Le",
	Between:         "Between",
	In:              "In",
	IsNull:          "IsNull",
	IsNotNull:       "IsNotNull",
	IsEmpty:         "IsEmpty",
	IsNotEmpty:      "IsNotEmpty",
}

func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return fmt.Sprintf("Operator(%d)", int(o))
}

// Unary operators take no operand.
func (o Operator) Unary() bool {
	return o >= IsNull
}

// MatchMode positions a Like pattern inside the value.
type MatchMode int

const (
	// Anywhere matches the pattern at any position. It is the default.
	Anywhere MatchMode = iota
	Start
	End
	Exact
)

func (m MatchMode) String() string {
	switch m {
	case Start:
		return "start"
	case End:
		return "end"
	case Exact:
		return "exact"
	default:
		return "anywhere"
	}
}

// Match reports whether value matches pattern in this mode. Pattern characters are literal.
func (m MatchMode) Match(value, pattern string, insensitive bool) bool {
	if insensitive {
		value = strings.ToLower(value)
		pattern = strings.ToLower(pattern)
	}
	switch m {
	case Start:
		return strings.HasPrefix(value, pattern)
	case End:
		return strings.HasSuffix(value, pattern)
	case Exact:
		return value == pattern
	default:
		return strings.Contains(value, pattern)
	}
}

// Wildcard renders pattern as a SQL LIKE operand, escaping LIKE metacharacters with a backslash.
func (m MatchMode) Wildcard(pattern string) string {
	escaped := likeEscaper.Replace(pattern)
	switch m {
	case Start:
		return escaped + "%"
	case End:
		return "%" + escaped
	case Exact:
		return escaped
	default:
		return "%" + escaped + "%"
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Predicate is one operator with its operands.
type Predicate struct {
	Op     Operator
	Values []any
	Mode   MatchMode
}

func (p Predicate) String() string {
	switch p.Op {
	case Like, InsensitiveLike:
		return fmt.Sprintf("%s(%q, %s)", p.Op, p.Values[0], p.Mode)
	case Between:
		return fmt.Sprintf("%s(%v, %v)", p.Op, p.Values[0], p.Values[1])
	case In:
		parts := make([]string, len(p.Values))
		for i, v := range p.Values {
			parts[i] = fmt.Sprint(v)
		}
		return fmt.Sprintf("%s(%s)", p.Op, strings.Join(parts, ", "))
	}
	if p.Op.Unary() {
		return p.Op.String() + "()"
	}
	return fmt.Sprintf("%s(%v)", p.Op, p.Values[0])
}
