package engine

import (
	"encoding/json"
	"sort"
)

// Row is one result record keyed by column name.
type Row = map[string]any

// Result is the closed set of shapes a query can return.
type Result interface {
	isResult()
}

// ObjectRows is a result already shaped as records.
type ObjectRows []Row

// ArrayRows is a columnar header plus positional values.
type ArrayRows struct {
	Columns []string
	Values  [][]any
}

// OpaqueJSON is a result only available as a JSON document. It may be an
// array of objects or an object with "columns" and "rows".
type OpaqueJSON []byte

func (ObjectRows) isResult() {}
func (ArrayRows) isResult()  {}
func (OpaqueJSON) isResult() {}

// Rows converts any result into records. Unknown shapes and conversion
// failures produce an empty slice.
func Rows(r Result) []Row {
	switch v := r.(type) {
	case ObjectRows:
		return objectRows(v)
	case ArrayRows:
		return arrayRows(v)
	case OpaqueJSON:
		return opaqueRows(v)
	default:
		return []Row{}
	}
}

// Columns returns the column names of r in result order. Records carry no
// order, so for them the union of keys is returned sorted.
func Columns(r Result) []string {
	switch v := r.(type) {
	case ArrayRows:
		return append([]string(nil), v.Columns...)
	case OpaqueJSON:
		var table struct {
			Columns []string `json:"columns"`
		}
		if err := json.Unmarshal(v, &table); err == nil && len(table.Columns) > 0 {
			return table.Columns
		}
	}
	return KeysOf(Rows(r))
}

// KeysOf returns the union of keys across rows, sorted.
func KeysOf(rows []Row) []string {
	seen := map[string]bool{}
	var cols []string
	for _, row := range rows {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				cols = append(cols, col)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func objectRows(v ObjectRows) []Row {
	out := make([]Row, 0, len(v))
	for _, r := range v {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func arrayRows(v ArrayRows) []Row {
	out := make([]Row, 0, len(v.Values))
	for _, values := range v.Values {
		row := make(Row, len(v.Columns))
		for i, col := range v.Columns {
			if i < len(values) {
				row[col] = values[i]
			} else {
				row[col] = nil
			}
		}
		out = append(out, row)
	}
	return out
}

func opaqueRows(v OpaqueJSON) []Row {
	if len(v) == 0 {
		return []Row{}
	}

	var records []Row
	if err := json.Unmarshal(v, &records); err == nil {
		return objectRows(records)
	}

	var table struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	if err := json.Unmarshal(v, &table); err == nil && len(table.Columns) > 0 {
		return arrayRows(ArrayRows{Columns: table.Columns, Values: table.Rows})
	}
	return []Row{}
}
