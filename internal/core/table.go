package core

import (
	"fmt"
	"strings"
)

// NewTable builds a Table from a header row and raw data rows. Header cells
// are trimmed; blank or repeated headers are ignored (first occurrence wins).
// Rows whose cells are all blank are dropped. Short rows simply lack the
// trailing keys.
func NewTable(header []any, records [][]any) Table {
	cols := make([]string, 0, len(header))
	index := make([]int, 0, len(header))
	seen := make(map[string]struct{}, len(header))
	for i, h := range header {
		name := strings.TrimSpace(cellString(h))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		cols = append(cols, name)
		index = append(index, i)
	}

	t := Table{Columns: cols, Rows: make([]Row, 0, len(records))}
	for _, rec := range records {
		if blankRecord(rec) {
			continue
		}
		row := make(Row, len(cols))
		for j, name := range cols {
			if idx := index[j]; idx < len(rec) {
				row[name] = rec[idx]
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Cells adapts one string record to NewTable's input.
func Cells(rec []string) []any {
	row := make([]any, len(rec))
	for i, v := range rec {
		row[i] = v
	}
	return row
}

// StringRecords adapts string matrices (CSV, XLSX) to NewTable's input.
func StringRecords(in [][]string) [][]any {
	out := make([][]any, len(in))
	for i, rec := range in {
		out[i] = Cells(rec)
	}
	return out
}

func blankRecord(rec []any) bool {
	for _, v := range rec {
		if strings.TrimSpace(cellString(v)) != "" {
			return false
		}
	}
	return true
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
