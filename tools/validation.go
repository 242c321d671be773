package tools

import (
	"fmt"
	"strings"
)

// Constants for identifier validation.
const (
	MaxIdentifierLength = 128
)

// sqliteKeywords is the subset of SQLite keywords that cannot appear bare as
// table or column names.
var sqliteKeywords = map[string]bool{}

func init() {
	for _, kw := range strings.Fields(`abort action add after all alter always analyze and as asc attach
	autoincrement before begin between by cascade case cast check collate column commit conflict
	constraint create cross current current_date current_time current_timestamp database default
	deferrable deferred delete desc detach distinct do drop each else end escape except exclude
	exclusive exists explain fail filter first following for foreign from full generated glob group
	groups having if ignore immediate in index indexed initially inner insert instead intersect into
	is isnull join key last left like limit match materialized natural no not nothing notnull null
	nulls of offset on or order others outer over partition plan pragma preceding primary query raise
	range recursive references regexp reindex release rename replace restrict returning right rollback
	row rows savepoint select set table temp temporary then ties to transaction trigger unbounded union
	unique update using vacuum values view virtual when where window with without`) {
		sqliteKeywords[kw] = true
	}
}

// IsBareIdentifier reports whether name can be written into SQL unquoted:
// a letter or underscore followed by ASCII letters, digits or underscores,
// and not a keyword.
func IsBareIdentifier(name string) bool {
	if name == "" || len(name) > MaxIdentifierLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return !sqliteKeywords[strings.ToLower(name)]
}

// EscapeName returns name in a form that is always read by SQLite as a
// single identifier. Plain names are returned unchanged, others are wrapped
// in brackets, or in double quotes when they contain a closing bracket.
func EscapeName(name string) string {
	if IsBareIdentifier(name) {
		return name
	}
	if !strings.Contains(name, "]") {
		return "[" + name + "]"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ValidateIdentifier checks a table or column name taken from a request
// before it is looked up in the schema.
func ValidateIdentifier(name string) error {
	if name == "" {
		return ErrEmptyIdentifier
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidIdentifier, name)
	}
	return nil
}
