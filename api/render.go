package api

import (
	"bytes"
	"encoding/json"

	"github.com/joe-ervin05/litebrowse/query"
	"github.com/joe-ervin05/litebrowse/sandbox"
	"github.com/joe-ervin05/litebrowse/tools"
)

// shape renders res according to _shape:
//   - arrays: the result with rows as lists (default)
//   - objects: the result with rows as objects
//   - array: only the rows, as objects
//   - object: only the rows, keyed by primary key path
//
// _json=col decodes JSON text in col.
func shape(res query.Response, args tools.Args) (any, error) {
	name, _ := args.Get("_shape")
	if name == "" {
		name = "arrays"
	}
	jsonCols := make(map[string]bool)
	for _, c := range args.GetAll("_json") {
		jsonCols[c] = true
	}
	set := res.RowSet()

	switch name {
	case "arrays":
		if len(jsonCols) == 0 {
			return res, nil
		}
		rows := make([][]any, len(set.Rows))
		for i, row := range set.Rows {
			rows[i] = values(set.Columns, row, jsonCols)
		}
		return withRows(res, rows)

	case "objects":
		return withRows(res, objects(set, jsonCols))

	case "array":
		return objects(set, jsonCols), nil

	case "object":
		if len(set.PrimaryKeys) == 0 {
			return nil, tools.InvalidQueryErr("_shape=object is only available on tables")
		}
		out := make(map[string]rowObject, len(set.Rows))
		for _, row := range set.Rows {
			key := query.RowPath(set.Columns, row, set.PrimaryKeys)
			out[key] = rowObject{columns: set.Columns, values: values(set.Columns, row, jsonCols)}
		}
		return out, nil
	}
	return nil, tools.InvalidQueryErr("Invalid _shape: " + name)
}

// withRows re-encodes res with its "rows" field replaced.
func withRows(res query.Response, rows any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if fields["rows"], err = json.Marshal(rows); err != nil {
		return nil, err
	}
	return fields, nil
}

func objects(set query.RowSet, jsonCols map[string]bool) []rowObject {
	out := make([]rowObject, len(set.Rows))
	for i, row := range set.Rows {
		out[i] = rowObject{columns: set.Columns, values: values(set.Columns, row, jsonCols)}
	}
	return out
}

func values(columns []string, row []sandbox.Cell, jsonCols map[string]bool) []any {
	out := make([]any, len(row))
	for i, cell := range row {
		out[i] = cell
		if jsonCols[columns[i]] && cell.Kind == sandbox.KindText && json.Valid([]byte(cell.Text)) {
			out[i] = json.RawMessage(cell.Text)
		}
	}
	return out
}

// rowObject is a row encoded as an object with keys in column order.
type rowObject struct {
	columns []string
	values  []any
}

func (o rowObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range o.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		v, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
