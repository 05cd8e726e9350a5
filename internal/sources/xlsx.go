package sources

import (
	"context"
	"fmt"
	"strconv"

	"savingsrate/internal/core"

	"github.com/xuri/excelize/v2"
)

// XLSX reads one worksheet of an Excel workbook. Cells are read raw so
// date cells arrive as serial numbers instead of locale-formatted text.
type XLSX struct {
	path  string
	sheet string
}

func NewXLSX(path, sheet string) *XLSX {
	return &XLSX{path: path, sheet: sheet}
}

func (x *XLSX) Table(ctx context.Context) (core.Table, error) {
	if err := ctx.Err(); err != nil {
		return core.Table{}, err
	}
	f, err := excelize.OpenFile(x.path)
	if err != nil {
		return core.Table{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := x.sheet
	if sheet == "" {
		sheet = f.GetSheetName(f.GetActiveSheetIndex())
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return core.Table{}, fmt.Errorf("xlsx %s: worksheet %q not found", x.path, sheet)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return core.Table{}, fmt.Errorf("read xlsx %s#%s: %w", x.path, sheet, err)
	}
	if len(rows) == 0 {
		return core.Table{}, nil
	}

	records := make([][]any, 0, len(rows)-1)
	for _, r := range rows[1:] {
		rec := make([]any, len(r))
		for i, v := range r {
			rec[i] = rawCell(v)
		}
		records = append(records, rec)
	}
	return core.NewTable(core.Cells(rows[0]), records), nil
}

// rawCell turns plain decimal numbers into float64 and leaves the rest as
// text.
func rawCell(s string) any {
	if !plainNumber(s) {
		return s
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return f
}

func plainNumber(s string) bool {
	if s == "" {
		return false
	}
	if s[0] == '-' {
		s = s[1:]
	}
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}
