package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"savingsrate/internal/core"
)

// CSV reads a comma-separated sheet whose first record is the header.
type CSV struct {
	path  string
	Comma rune
}

func NewCSV(path string) *CSV {
	return &CSV{path: path, Comma: ','}
}

func (c *CSV) Table(ctx context.Context) (core.Table, error) {
	if err := ctx.Err(); err != nil {
		return core.Table{}, err
	}
	f, err := os.Open(c.path)
	if err != nil {
		return core.Table{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	t, err := ReadCSV(f, c.Comma)
	if err != nil {
		return core.Table{}, fmt.Errorf("read csv %s: %w", c.path, err)
	}
	return t, nil
}

// ReadCSV parses CSV text into a table. Ragged rows are accepted.
func ReadCSV(r io.Reader, comma rune) (core.Table, error) {
	cr := csv.NewReader(r)
	if comma != 0 {
		cr.Comma = comma
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return core.Table{}, err
	}
	if len(records) == 0 {
		return core.Table{}, nil
	}
	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return core.NewTable(core.Cells(header), core.StringRecords(records[1:])), nil
}
