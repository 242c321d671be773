// Package paginate builds and reads the opaque _next tokens that drive
// keyset, rowid and offset pagination.
package paginate

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/joe-ervin05/litebrowse/tools"
)

// Kind selects how a page continues from the previous one.
type Kind int

const (
	// Keyset continues after the last primary key tuple.
	Keyset Kind = iota
	// Rowid continues after the last rowid.
	Rowid
	// Offset skips a number of rows.
	Offset
)

func (k Kind) String() string {
	switch k {
	case Rowid:
		return "rowid"
	case Offset:
		return "offset"
	}
	return "keyset"
}

// KindFor picks the pagination kind for a request. Views, sorted and
// grouped requests have no stable key to continue from.
func KindFor(isView, sorted, grouped, usesRowid bool) Kind {
	switch {
	case isView || sorted || grouped:
		return Offset
	case usesRowid:
		return Rowid
	}
	return Keyset
}

// Token marks where the next page starts.
type Token struct {
	Kind   Kind
	Keys   []sandbox.Cell // Keyset: one value per primary key. Rowid: one value.
	Offset int
}

// ErrInvalidNext is returned for tokens that cannot be decoded.
var ErrInvalidNext = tools.InvalidQueryErr("Invalid _next")

// Encode renders the token as a URL-safe string. Keyset values carry their
// storage class so that they bind back exactly as they were read:
// i:4, r:1.5, t:abc, b:<base64url> and n: for null.
func (t Token) Encode() string {
	switch t.Kind {
	case Offset:
		return strconv.Itoa(t.Offset)
	case Rowid:
		if len(t.Keys) == 0 {
			return ""
		}
		return t.Keys[0].String()
	}
	parts := make([]string, len(t.Keys))
	for i, k := range t.Keys {
		parts[i] = encodeKey(k)
	}
	return strings.Join(parts, ",")
}

func encodeKey(c sandbox.Cell) string {
	switch c.Kind {
	case sandbox.KindInteger:
		return "i:" + strconv.FormatInt(c.Int, 10)
	case sandbox.KindReal:
		return "r:" + strconv.FormatFloat(c.Real, 'g', -1, 64)
	case sandbox.KindBlob:
		return "b:" + base64.RawURLEncoding.EncodeToString(c.Blob)
	case sandbox.KindNull:
		return "n:"
	}
	return "t:" + url.QueryEscape(c.Text)
}

// decodeKey inverts encodeKey. A part without a type prefix is text.
func decodeKey(s string) (sandbox.Cell, error) {
	tag, v, typed := strings.Cut(s, ":")
	if !typed || len(tag) != 1 {
		text, err := url.QueryUnescape(s)
		if err != nil {
			return sandbox.Cell{}, ErrInvalidNext
		}
		return sandbox.TextCell(text), nil
	}
	switch tag {
	case "i":
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return sandbox.Cell{}, ErrInvalidNext
		}
		return sandbox.IntCell(n), nil
	case "r":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return sandbox.Cell{}, ErrInvalidNext
		}
		return sandbox.RealCell(f), nil
	case "b":
		b, err := base64.RawURLEncoding.DecodeString(v)
		if err != nil {
			return sandbox.Cell{}, ErrInvalidNext
		}
		return sandbox.BlobCell(b), nil
	case "n":
		return sandbox.Null, nil
	case "t":
		text, err := url.QueryUnescape(v)
		if err != nil {
			return sandbox.Cell{}, ErrInvalidNext
		}
		return sandbox.TextCell(text), nil
	}
	return sandbox.Cell{}, ErrInvalidNext
}

// Decode parses a token produced by Encode. For keyset tokens nkeys is the
// number of primary key columns.
func Decode(s string, kind Kind, nkeys int) (Token, error) {
	t := Token{Kind: kind}
	switch kind {
	case Offset:
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return Token{}, ErrInvalidNext
		}
		t.Offset = n
		return t, nil
	case Rowid:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Token{}, ErrInvalidNext
		}
		t.Keys = []sandbox.Cell{sandbox.IntCell(n)}
		return t, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) != nkeys {
		return Token{}, ErrInvalidNext
	}
	t.Keys = make([]sandbox.Cell, len(parts))
	for i, p := range parts {
		k, err := decodeKey(p)
		if err != nil {
			return Token{}, err
		}
		t.Keys[i] = k
	}
	return t, nil
}

// NextToken returns the token for the page after one that fetched rowCount
// rows with a limit of pageSize+1, or nil when there is no further page.
// keys returns the key values of a row of the page; offset is the offset the
// page itself started at.
func NextToken(rowCount, pageSize int, kind Kind, offset int, keys func(row int) []sandbox.Cell) *Token {
	if pageSize <= 0 || rowCount <= pageSize {
		return nil
	}
	if kind == Offset {
		return &Token{Kind: Offset, Offset: offset + pageSize}
	}
	return &Token{Kind: kind, Keys: keys(pageSize - 1)}
}

// Clause is the SQL that continues a listing from a token.
type Clause struct {
	Where  string // Empty when there is nothing to add
	Params map[string]any
	Offset int
}

// Apply renders token against the key columns. Placeholders are numbered from
// start so they do not collide with filter parameters.
func Apply(token *Token, pks []string, start int) (Clause, error) {
	c := Clause{Params: make(map[string]any)}
	if token == nil {
		return c, nil
	}

	switch token.Kind {
	case Offset:
		c.Offset = token.Offset
		return c, nil

	case Rowid:
		if len(token.Keys) != 1 || token.Keys[0].Kind != sandbox.KindInteger {
			return Clause{}, ErrInvalidNext
		}
		name := param(start)
		c.Where = "rowid > :" + name
		c.Params[name] = token.Keys[0].Int
		return c, nil
	}

	if len(token.Keys) != len(pks) || len(pks) == 0 {
		return Clause{}, ErrInvalidNext
	}

	// (a > :p0) or (a = :p0 and b > :p1) or ...
	// Nulls sort first, so "after null" is "not null" and "equal to null"
	// is "is null".
	ors := make([]string, len(pks))
	for i := range pks {
		ands := make([]string, 0, i+1)
		for j := 0; j < i; j++ {
			ands = append(ands, keyTerm(pks[j], start+j, token.Keys[j], "="))
		}
		ands = append(ands, keyTerm(pks[i], start+i, token.Keys[i], ">"))
		ors[i] = "(" + strings.Join(ands, " and ") + ")"
	}
	for i, k := range token.Keys {
		if !k.IsNull() {
			c.Params[param(start+i)] = k.Value()
		}
	}
	c.Where = "(" + strings.Join(ors, " or ") + ")"
	return c, nil
}

func keyTerm(column string, n int, key sandbox.Cell, op string) string {
	escaped := tools.EscapeName(column)
	if key.IsNull() {
		if op == "=" {
			return escaped + " is null"
		}
		return escaped + " is not null"
	}
	return fmt.Sprintf("%s %s :%s", escaped, op, param(n))
}

func param(i int) string {
	return "p" + strconv.Itoa(i)
}
