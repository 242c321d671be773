package filters

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joe-ervin05/litebrowse/tools"
)

// Selection is one parsed filter argument.
type Selection struct {
	Column string
	Op     string
	Value  string
}

// Set is an ordered list of selections.
type Set []Selection

// Compiled is the SQL form of a Set.
type Compiled struct {
	Where  []string       // Fragments to be joined with "and"
	Params map[string]any // Named parameters, p0, p1, ...
}

// Parse turns query pairs into selections. A key containing "__" is split
// at its last "__" into column and operator; a bare key means exact.
func Parse(pairs tools.Args) Set {
	set := make(Set, 0, len(pairs))
	for _, p := range pairs {
		column, op := p.Key, "exact"
		if i := strings.LastIndex(p.Key, "__"); i >= 0 {
			column, op = p.Key[:i], p.Key[i+2:]
		}
		set = append(set, Selection{Column: column, Op: op, Value: p.Value})
	}
	return set
}

// Compile builds the WHERE fragments. Placeholders are numbered by position
// in the set, so selections with an unknown operator still consume a number
// but emit nothing.
func (s Set) Compile() Compiled {
	c := Compiled{Params: make(map[string]any)}
	for i, sel := range s {
		op, ok := Lookup(sel.Op)
		if !ok {
			continue
		}
		param := fmt.Sprintf("p%d", i)
		c.Where = append(c.Where, op.sql(tools.EscapeName(sel.Column), param))
		if op.NoArg {
			continue
		}
		c.Params[param] = bindValue(op, sel.Value)
	}
	return c
}

func bindValue(op Operator, value string) any {
	converted := value
	if op.Format != "" {
		converted = fmt.Sprintf(op.Format, value)
	}
	if op.Numeric && isDigits(converted) {
		if n, err := strconv.ParseInt(converted, 10, 64); err == nil {
			return n
		}
	}
	return converted
}

// Human describes the set in English, with extra (a search clause) first.
// Clauses are comma separated with a final " and ".
func (s Set) Human(extra string) string {
	var bits []string
	if extra != "" {
		bits = append(bits, extra)
	}
	for _, sel := range s {
		if op, ok := Lookup(sel.Op); ok {
			bits = append(bits, op.human(sel.Column, sel.Value))
		}
	}
	return joinAnd(bits)
}

func joinAnd(bits []string) string {
	switch len(bits) {
	case 0:
		return ""
	case 1:
		return bits[0]
	}
	return strings.Join(bits[:len(bits)-1], ", ") + " and " + bits[len(bits)-1]
}

// Exact returns the values of the exact selections on column.
func (s Set) Exact(column string) []string {
	var out []string
	for _, sel := range s {
		if sel.Column == column && sel.Op == "exact" {
			out = append(out, sel.Value)
		}
	}
	return out
}
