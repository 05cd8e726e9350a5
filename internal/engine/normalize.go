package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"savingsrate/internal/core"

	"github.com/shopspring/decimal"
)

type column struct {
	role string
	name string
}

// requiredColumns lists the columns a sheet of the given stream must carry.
// Notes and percent-FI notes are optional even when mapped: a profile may
// keep notes in only one of its two sheets.
func requiredColumns(m core.FieldMapping, stream core.Stream) []column {
	var cols []column
	switch stream {
	case core.StreamIncome:
		cols = append(cols,
			column{"pay_date", m.PayDate},
			column{"gross_income", m.GrossIncome},
			column{"employer_match", m.EmployerMatch},
		)
		for _, name := range cleanNames(m.TaxesAndFees) {
			cols = append(cols, column{"taxes_and_fees", name})
		}
	case core.StreamSavings:
		cols = append(cols, column{"savings_date", m.SavingsDate})
		for _, name := range cleanNames(m.SavingsAccounts) {
			cols = append(cols, column{"savings_accounts", name})
		}
		if strings.TrimSpace(m.TotalBalance) != "" {
			cols = append(cols, column{"total_balances", m.TotalBalance})
		}
	}
	return cols
}

// ValidateColumns checks that every mapped column of the stream exists in
// the sheet header. The first missing one is returned as a *core.ConfigError.
func ValidateColumns(columns []string, m core.FieldMapping, stream core.Stream) error {
	present := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		present[strings.TrimSpace(c)] = struct{}{}
	}
	for _, col := range requiredColumns(m, stream) {
		name := strings.TrimSpace(col.name)
		if name == "" {
			return &core.ConfigError{Stream: stream, Role: col.role}
		}
		if _, ok := present[name]; !ok {
			return &core.ConfigError{Stream: stream, Role: col.role, Column: name}
		}
	}
	return nil
}

// NormalizeRow turns one raw row into a transaction. A missing or
// unparseable date, or non-numeric text in a mapped amount column, yields a
// *core.RowError and the row is meant to be skipped.
func NormalizeRow(row core.Row, m core.FieldMapping, stream core.Stream) (core.Transaction, error) {
	dateCol := m.PayDate
	if stream == core.StreamSavings {
		dateCol = m.SavingsDate
	}
	date, err := core.ParseDate(row[strings.TrimSpace(dateCol)])
	if err != nil {
		return core.Transaction{}, &core.RowError{Stream: stream, Column: dateCol, Err: err}
	}

	tx := core.Transaction{
		Date:    date,
		Stream:  stream,
		Gross:   decimal.Zero,
		Match:   decimal.Zero,
		Taxes:   decimal.Zero,
		Savings: decimal.Zero,
	}

	switch stream {
	case core.StreamIncome:
		if tx.Gross, err = amount(row, m.GrossIncome, stream); err != nil {
			return core.Transaction{}, err
		}
		if tx.Match, err = amount(row, m.EmployerMatch, stream); err != nil {
			return core.Transaction{}, err
		}
		if tx.Taxes, err = sum(row, m.TaxesAndFees, stream); err != nil {
			return core.Transaction{}, err
		}
	case core.StreamSavings:
		if tx.Savings, err = sum(row, m.SavingsAccounts, stream); err != nil {
			return core.Transaction{}, err
		}
		if name := strings.TrimSpace(m.TotalBalance); name != "" && !core.IsBlank(row[name]) {
			if tx.TotalBalance, err = amount(row, name, stream); err != nil {
				return core.Transaction{}, err
			}
			tx.HasTotalBalance = true
		}
		tx.PercentFINote = text(row, m.PercentFINotes)
	default:
		return core.Transaction{}, fmt.Errorf("unknown stream %q", stream)
	}

	tx.Note = text(row, m.Notes)
	return tx, nil
}

// NormalizeTable normalizes every row of a sheet, collecting dropped rows
// instead of failing. Header problems are returned as *core.ConfigError.
func NormalizeTable(t core.Table, m core.FieldMapping, stream core.Stream) ([]core.Transaction, []core.SkippedRow, error) {
	if err := ValidateColumns(t.Columns, m, stream); err != nil {
		return nil, nil, err
	}
	txs := make([]core.Transaction, 0, len(t.Rows))
	var skipped []core.SkippedRow
	for i, row := range t.Rows {
		tx, err := NormalizeRow(row, m, stream)
		if err != nil {
			var rowErr *core.RowError
			if !errors.As(err, &rowErr) {
				return nil, nil, err
			}
			rowErr.Row = i
			skipped = append(skipped, core.SkippedRow{Stream: stream, Row: i, Reason: rowErr.Reason()})
			continue
		}
		txs = append(txs, tx)
	}
	return txs, skipped, nil
}

func amount(row core.Row, col string, stream core.Stream) (decimal.Decimal, error) {
	col = strings.TrimSpace(col)
	d, err := core.ParseAmount(row[col])
	if err != nil {
		return decimal.Zero, &core.RowError{Stream: stream, Column: col, Err: err}
	}
	return d, nil
}

func sum(row core.Row, cols []string, stream core.Stream) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, col := range cleanNames(cols) {
		d, err := amount(row, col, stream)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(d)
	}
	return total, nil
}

func text(row core.Row, col string) string {
	col = strings.TrimSpace(col)
	if col == "" {
		return ""
	}
	switch v := row[col].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case time.Time:
		return v.Format("2006-01-02")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
