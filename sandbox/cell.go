package sandbox

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Kind is the storage class of a result cell.
type Kind uint8

const (
	KindNull Kind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	}
	return "null"
}

// Cell is one value of a result row.
type Cell struct {
	Kind Kind
	Int  int64
	Real float64
	Text string
	Blob []byte
}

// Null is the null cell.
var Null = Cell{}

// IntCell, RealCell, TextCell and BlobCell build cells of each kind.
func IntCell(v int64) Cell { return Cell{Kind: KindInteger, Int: v} }
func RealCell(v float64) Cell { return Cell{Kind: KindReal, Real: v} }
func TextCell(v string) Cell { return Cell{Kind: KindText, Text: v} }
func BlobCell(v []byte) Cell { return Cell{Kind: KindBlob, Blob: v} }

// CellOf converts a value scanned from the driver.
func CellOf(v any) Cell {
	switch x := v.(type) {
	case nil:
		return Null
	case int64:
		return IntCell(x)
	case int:
		return IntCell(int64(x))
	case float64:
		return RealCell(x)
	case bool:
		if x {
			return IntCell(1)
		}
		return IntCell(0)
	case string:
		return TextCell(x)
	case []byte:
		b := make([]byte, len(x))
		copy(b, x)
		return BlobCell(b)
	case time.Time:
		// the driver parses date typed columns; hand back the stored text form
		return TextCell(x.Format(sqlite3.SQLiteTimestampFormats[0]))
	}
	return TextCell(fmt.Sprint(v))
}

// IsNull reports whether the cell is null.
func (c Cell) IsNull() bool { return c.Kind == KindNull }

// Value returns the cell as a plain Go value suitable as a query argument.
func (c Cell) Value() any {
	switch c.Kind {
	case KindInteger:
		return c.Int
	case KindReal:
		return c.Real
	case KindText:
		return c.Text
	case KindBlob:
		return c.Blob
	}
	return nil
}

// String renders the cell the way it appears in a query string.
// Null renders as the empty string.
func (c Cell) String() string {
	switch c.Kind {
	case KindInteger:
		return strconv.FormatInt(c.Int, 10)
	case KindReal:
		return formatReal(c.Real)
	case KindText:
		return c.Text
	case KindBlob:
		return string(c.Blob)
	}
	return ""
}

func formatReal(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) || strings.ContainsAny(s, ".eE") {
		return s
	}
	return s + ".0"
}

type encodedBlob struct {
	Base64  bool   `json:"$base64"`
	Encoded string `json:"encoded"`
}

// MarshalJSON encodes blobs as {"$base64": true, "encoded": "..."} and
// non-finite reals as null.
func (c Cell) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case KindInteger:
		return strconv.AppendInt(nil, c.Int, 10), nil
	case KindReal:
		if math.IsInf(c.Real, 0) || math.IsNaN(c.Real) {
			return []byte("null"), nil
		}
		return json.Marshal(c.Real)
	case KindText:
		return json.Marshal(c.Text)
	case KindBlob:
		return json.Marshal(encodedBlob{Base64: true, Encoded: base64.StdEncoding.EncodeToString(c.Blob)})
	}
	return []byte("null"), nil
}
