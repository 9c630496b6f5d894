package gateway

import (
	"fmt"
	"strings"
)

// Op is a filter operator understood by every backend.
type Op string

const (
	OpEq    Op = "eq"
	OpIn    Op = "in"
	OpILike Op = "ilike"
	OpOr    Op = "or"
)

// Condition is a single predicate. For OpOr, Any holds the alternatives and
// Column/Value are unused.
type Condition struct {
	Column string
	Op     Op
	Value  any
	Values []string
	Any    []Condition
}

// Eq matches rows whose column equals value.
func Eq(column string, value any) Condition {
	return Condition{Column: column, Op: OpEq, Value: value}
}

// In matches rows whose column is one of values. An empty set matches nothing.
func In(column string, values []string) Condition {
	return Condition{Column: column, Op: OpIn, Values: values}
}

// ILike is a case-insensitive pattern match using % as the wildcard.
func ILike(column, pattern string) Condition {
	return Condition{Column: column, Op: OpILike, Value: pattern}
}

// Or matches rows satisfying any of conds.
func Or(conds ...Condition) Condition {
	return Condition{Op: OpOr, Any: conds}
}

// Contains builds the %term% pattern for ILike, escaping wildcards in term.
func Contains(term string) string {
	r := strings.NewReplacer(`%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

// Filter is a conjunction of conditions.
type Filter []Condition

// Where builds a Filter from conds.
func Where(conds ...Condition) Filter {
	return Filter(conds)
}

// EmptyIn reports whether the filter contains an IN over an empty set, which
// can be answered without a round trip.
func (f Filter) EmptyIn() bool {
	for _, c := range f {
		if c.Op == OpIn && len(c.Values) == 0 {
			return true
		}
	}
	return false
}

func (c Condition) String() string {
	switch c.Op {
	case OpOr:
		parts := make([]string, len(c.Any))
		for i, a := range c.Any {
			parts[i] = a.String()
		}
		return "or(" + strings.Join(parts, ",") + ")"
	case OpIn:
		return fmt.Sprintf("%s.in.(%s)", c.Column, strings.Join(c.Values, ","))
	default:
		return fmt.Sprintf("%s.%s.%v", c.Column, c.Op, c.Value)
	}
}

// Query describes a select: the filter, an optional projection, ordering and
// a row limit (0 means unlimited).
type Query struct {
	Filter  Filter
	Columns []string
	OrderBy string
	Desc    bool
	Limit   int
}

// Select starts a Query over conds.
func Select(conds ...Condition) Query {
	return Query{Filter: Where(conds...)}
}

// Project restricts the returned columns.
func (q Query) Project(columns ...string) Query {
	q.Columns = columns
	return q
}

// Order sets the sort column and direction.
func (q Query) Order(column string, desc bool) Query {
	q.OrderBy = column
	q.Desc = desc
	return q
}

// Take caps the number of rows.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}
