// Package filter evaluates tag predicates against OSM elements.
//
// A predicate is a recursive expression tree over tag tests, built either
// from a DSL string ("highway=primary|secondary & lanes>=2") or from
// structured YAML config. Trees are compiled once at config load and shared
// read-only by all workers.
package filter

import (
	"strconv"
	"strings"
)

// Expr is a compiled filter predicate.
type Expr interface {
	// Matches evaluates the predicate against an element's tags.
	Matches(tags map[string]string) bool
}

// True matches every element (the empty filter).
type True struct{}

func (True) Matches(map[string]string) bool { return true }

// Exists tests tag presence: `name`, or absence when negated: `!name`.
type Exists struct {
	Key     string
	Negated bool
}

func (e Exists) Matches(tags map[string]string) bool {
	_, ok := tags[e.Key]
	if e.Negated {
		return !ok
	}
	return ok
}

// TagMatch tests a tag against one or more candidate values.
type TagMatch struct {
	Key    string
	Values []Value
}

func (m TagMatch) Matches(tags map[string]string) bool {
	actual, ok := tags[m.Key]
	if !ok {
		return false
	}
	for _, v := range m.Values {
		if v.Match(actual) {
			return true
		}
	}
	return false
}

// Value is one candidate in a tag match: an exact string, a glob pattern,
// or the bare wildcard (any value).
type Value struct {
	Pattern string
	Any     bool
	Glob    bool
}

// NewValue classifies a raw candidate string into exact, glob or any.
func NewValue(s string) Value {
	if s == "*" {
		return Value{Any: true}
	}
	if HasWildcard(s) {
		return Value{Pattern: s, Glob: true}
	}
	return Value{Pattern: Unescape(s)}
}

// Match tests the candidate against an actual tag value.
func (v Value) Match(actual string) bool {
	switch {
	case v.Any:
		return true
	case v.Glob:
		return Glob(v.Pattern, actual)
	default:
		return v.Pattern == actual
	}
}

// CompareOp is a numeric comparison operator.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	default:
		return "?"
	}
}

// NumCompare tests a tag value numerically: `lanes>=2`, `maxspeed<50`.
// Tag values with a unit suffix ("50 mph") compare on the leading number.
type NumCompare struct {
	Key   string
	Op    CompareOp
	Value float64
}

func (c NumCompare) Matches(tags map[string]string) bool {
	actual, ok := tags[c.Key]
	if !ok {
		return false
	}
	n, ok := parseNumeric(actual)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return n == c.Value
	case OpNe:
		return n != c.Value
	case OpLt:
		return n < c.Value
	case OpLe:
		return n <= c.Value
	case OpGt:
		return n > c.Value
	case OpGe:
		return n >= c.Value
	default:
		return false
	}
}

// And matches when all children match; short-circuits at the first miss.
type And struct {
	Children []Expr
}

func (a And) Matches(tags map[string]string) bool {
	for _, c := range a.Children {
		if !c.Matches(tags) {
			return false
		}
	}
	return true
}

// Or matches when any child matches; short-circuits at the first hit.
type Or struct {
	Children []Expr
}

func (o Or) Matches(tags map[string]string) bool {
	for _, c := range o.Children {
		if c.Matches(tags) {
			return true
		}
	}
	return false
}

// Not inverts its child.
type Not struct {
	Child Expr
}

func (n Not) Matches(tags map[string]string) bool {
	return !n.Child.Matches(tags)
}

// NewAnd builds a conjunction, flattening nested Ands and dropping True.
func NewAnd(children ...Expr) Expr {
	flat := make([]Expr, 0, len(children))
	for _, c := range children {
		switch v := c.(type) {
		case And:
			flat = append(flat, v.Children...)
		case True:
			// skip
		default:
			flat = append(flat, c)
		}
	}
	switch len(flat) {
	case 0:
		return True{}
	case 1:
		return flat[0]
	default:
		return And{Children: flat}
	}
}

// NewOr builds a disjunction, flattening nested Ors.
func NewOr(children ...Expr) Expr {
	flat := make([]Expr, 0, len(children))
	for _, c := range children {
		if v, ok := c.(Or); ok {
			flat = append(flat, v.Children...)
			continue
		}
		flat = append(flat, c)
	}
	switch len(flat) {
	case 0:
		return True{}
	case 1:
		return flat[0]
	default:
		return Or{Children: flat}
	}
}

// parseNumeric parses a tag value as a number, tolerating a trailing unit
// suffix ("50 mph" parses as 50).
func parseNumeric(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n, true
	}

	end := 0
	for end < len(s) {
		c := s[end]
		if c >= '0' && c <= '9' || c == '.' || (end == 0 && c == '-') {
			end++
			continue
		}
		break
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
