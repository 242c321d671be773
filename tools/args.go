package tools

import (
	"net/url"
	"strings"
)

// Arg is one key/value pair of a query string.
type Arg struct {
	Key   string
	Value string
}

// Args is a query string that keeps the order and duplicates of its pairs,
// including blank values such as "?content__exact=".
type Args []Arg

// ParseArgs parses a raw query string. Pairs that fail to unescape are
// kept with their raw text.
func ParseArgs(raw string) Args {
	var args Args
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == '&' || r == ';' }) {
		key, value, _ := strings.Cut(part, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		if key == "" {
			continue
		}
		args = append(args, Arg{Key: key, Value: value})
	}
	return args
}

// Get returns the first value for key.
func (a Args) Get(key string) (string, bool) {
	for _, arg := range a {
		if arg.Key == key {
			return arg.Value, true
		}
	}
	return "", false
}

// GetAll returns every value for key, in order.
func (a Args) GetAll(key string) []string {
	var out []string
	for _, arg := range a {
		if arg.Key == key {
			out = append(out, arg.Value)
		}
	}
	return out
}

// Has reports whether key=value is present.
func (a Args) Has(key, value string) bool {
	for _, arg := range a {
		if arg.Key == key && arg.Value == value {
			return true
		}
	}
	return false
}

// With returns a copy where every pair for key is replaced by key=value at the end.
func (a Args) With(key, value string) Args {
	out := make(Args, 0, len(a)+1)
	for _, arg := range a {
		if arg.Key != key {
			out = append(out, arg)
		}
	}
	return append(out, Arg{Key: key, Value: value})
}

// Append returns a copy with key=value added at the end.
func (a Args) Append(key, value string) Args {
	out := make(Args, 0, len(a)+1)
	out = append(out, a...)
	return append(out, Arg{Key: key, Value: value})
}

// Without returns a copy with the pair key=value removed.
func (a Args) Without(key, value string) Args {
	out := make(Args, 0, len(a))
	for _, arg := range a {
		if arg.Key == key && arg.Value == value {
			continue
		}
		out = append(out, arg)
	}
	return out
}

// WithoutKey returns a copy with every pair for key removed.
func (a Args) WithoutKey(key string) Args {
	out := make(Args, 0, len(a))
	for _, arg := range a {
		if arg.Key != key {
			out = append(out, arg)
		}
	}
	return out
}

// Encode renders the pairs back into a query string, in order.
func (a Args) Encode() string {
	var b strings.Builder
	for i, arg := range a {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(arg.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(arg.Value))
	}
	return b.String()
}

// URL joins path and the encoded pairs.
func (a Args) URL(path string) string {
	if len(a) == 0 {
		return path
	}
	return path + "?" + a.Encode()
}
