package filters

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/joe-ervin05/litebrowse/tools"
)

var filterColumnRe = regexp.MustCompile(`^_filter_column_(\d+)$`)

// Redirect is one change to apply to a query string: either a pair to add
// or a key to remove.
type Redirect struct {
	Key    string
	Value  string
	Remove bool
}

// RedirectParams rewrites the legacy form-style arguments
// _filter_column[_N], _filter_op[_N] and _filter_value[_N] into canonical
// "column__op=value" pairs. An empty result means no redirect is needed.
func RedirectParams(special map[string]string) []Redirect {
	var out []Redirect

	if column := special["_filter_column"]; column != "" {
		out = append(out, canonical(column, special["_filter_op"], special["_filter_value"]))
	}
	for _, key := range []string{"_filter_column", "_filter_op", "_filter_value"} {
		if _, ok := special[key]; ok {
			out = append(out, Redirect{Key: key, Remove: true})
		}
	}

	var numbers []string
	for key := range special {
		if m := filterColumnRe.FindStringSubmatch(key); m != nil {
			numbers = append(numbers, m[1])
		}
	}
	sort.Slice(numbers, func(i, j int) bool {
		a, _ := strconv.Atoi(numbers[i])
		b, _ := strconv.Atoi(numbers[j])
		return a < b
	})
	for _, n := range numbers {
		if column := special["_filter_column_"+n]; column != "" {
			out = append(out, canonical(column, special["_filter_op_"+n], special["_filter_value_"+n]))
		}
		out = append(out,
			Redirect{Key: "_filter_column_" + n, Remove: true},
			Redirect{Key: "_filter_op_" + n, Remove: true},
			Redirect{Key: "_filter_value_" + n, Remove: true},
		)
	}
	return out
}

// canonical builds column__op=value. An op of the form "op__value" carries
// its own value; a blank op means exact.
func canonical(column, op, value string) Redirect {
	if o, v, ok := strings.Cut(op, "__"); ok {
		op, value = o, v
	}
	if op == "" {
		op = "exact"
	}
	return Redirect{Key: column + "__" + op, Value: value}
}

// ApplyRedirect removes the keys marked for removal and appends the rest.
func ApplyRedirect(args tools.Args, redirects []Redirect) tools.Args {
	drop := make(map[string]bool)
	for _, r := range redirects {
		if r.Remove {
			drop[r.Key] = true
		}
	}
	out := make(tools.Args, 0, len(args)+len(redirects))
	for _, a := range args {
		if !drop[a.Key] {
			out = append(out, a)
		}
	}
	for _, r := range redirects {
		if !r.Remove {
			out = append(out, tools.Arg{Key: r.Key, Value: r.Value})
		}
	}
	return out
}
