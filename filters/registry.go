// Package filters compiles "column__op=value" query arguments into
// parameterized WHERE fragments.
package filters

import "strings"

// Operator describes one filter lookup.
type Operator struct {
	Key           string
	Display       string
	SQLTemplate   string // {c} is the escaped column, {p} the placeholder name
	HumanTemplate string // {c} is the column, {v} the value
	Format        string // %s style wrap applied to the value before binding
	Numeric       bool   // Bind all-digit values as integers
	NoArg         bool   // Takes no value and binds nothing

	// quoteNonDigits wraps non-numeric values in double quotes when rendering
	// the human description.
	quoteNonDigits bool
}

var operators = [...]Operator{
	{Key: "exact", Display: "=", SQLTemplate: "{c} = :{p}", HumanTemplate: "{c} = {v}", quoteNonDigits: true},
	{Key: "not", Display: "!=", SQLTemplate: "{c} != :{p}", HumanTemplate: "{c} != {v}", quoteNonDigits: true},
	{Key: "contains", Display: "contains", SQLTemplate: "{c} like :{p}", HumanTemplate: `{c} contains "{v}"`, Format: "%%%s%%"},
	{Key: "endswith", Display: "ends with", SQLTemplate: "{c} like :{p}", HumanTemplate: `{c} ends with "{v}"`, Format: "%%%s"},
	{Key: "startswith", Display: "starts with", SQLTemplate: "{c} like :{p}", HumanTemplate: `{c} starts with "{v}"`, Format: "%s%%"},
	{Key: "gt", Display: ">", SQLTemplate: "{c} > :{p}", HumanTemplate: "{c} > {v}", Numeric: true},
	{Key: "gte", Display: "≥", SQLTemplate: "{c} >= :{p}", HumanTemplate: "{c} ≥ {v}", Numeric: true},
	{Key: "lt", Display: "<", SQLTemplate: "{c} < :{p}", HumanTemplate: "{c} < {v}", Numeric: true},
	{Key: "lte", Display: "≤", SQLTemplate: "{c} <= :{p}", HumanTemplate: "{c} ≤ {v}", Numeric: true},
	{Key: "glob", Display: "glob", SQLTemplate: "{c} glob :{p}", HumanTemplate: `{c} glob "{v}"`},
	{Key: "like", Display: "like", SQLTemplate: "{c} like :{p}", HumanTemplate: `{c} like "{v}"`},
	{Key: "isnull", Display: "is null", SQLTemplate: "{c} is null", HumanTemplate: "{c} is null", NoArg: true},
	{Key: "notnull", Display: "is not null", SQLTemplate: "{c} is not null", HumanTemplate: "{c} is not null", NoArg: true},
	{Key: "isblank", Display: "is blank", SQLTemplate: "({c} is null or {c} = '')", HumanTemplate: "{c} is blank", NoArg: true},
	{Key: "notblank", Display: "is not blank", SQLTemplate: "({c} is not null and {c} != '')", HumanTemplate: "{c} is not blank", NoArg: true},
}

// Lookup returns the operator for key.
func Lookup(key string) (Operator, bool) {
	for _, op := range operators {
		if op.Key == key {
			return op, true
		}
	}
	return Operator{}, false
}

// Operators returns every operator in display order.
func Operators() []Operator {
	return operators[:]
}

// sql renders the WHERE fragment for an escaped column and placeholder.
func (o Operator) sql(column, param string) string {
	return strings.NewReplacer("{c}", column, "{p}", param).Replace(o.SQLTemplate)
}

// human renders the description of one selection.
func (o Operator) human(column, value string) string {
	if o.quoteNonDigits && !isDigits(value) {
		value = `"` + value + `"`
	}
	return strings.NewReplacer("{c}", column, "{v}", value).Replace(o.HumanTemplate)
}

// isDigits reports whether s is a non-empty run of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
