package core

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyDate     = errors.New("empty date")
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrMissingColumn = errors.New("missing column")
)

// RowError describes a row that was dropped during normalization. It never
// aborts a run.
type RowError struct {
	Stream Stream
	Row    int // zero-based data row index
	Column string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("%s row %d: %v", e.Stream, e.Row, e.Err)
	}
	return fmt.Sprintf("%s row %d, column %q: %v", e.Stream, e.Row, e.Column, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Reason describes the problem without the stream and row position.
func (e *RowError) Reason() string {
	if e.Column == "" {
		return fmt.Sprint(e.Err)
	}
	return fmt.Sprintf("column %q: %v", e.Column, e.Err)
}

// ConfigError reports a mapped column that does not exist in a sheet at all.
// It is fatal for the owning profile only.
type ConfigError struct {
	Profile string
	Stream  Stream
	Role    string // e.g. "gross_income"
	Column  string
}

func (e *ConfigError) Error() string {
	what := fmt.Sprintf("%s sheet: column %q for %s not found", e.Stream, e.Column, e.Role)
	if e.Column == "" {
		what = fmt.Sprintf("%s sheet: no column mapped for %s", e.Stream, e.Role)
	}
	if e.Profile == "" {
		return what
	}
	return fmt.Sprintf("profile %s: %s", e.Profile, what)
}

func (e *ConfigError) Unwrap() error { return ErrMissingColumn }

// SkippedRow is the diagnostic kept for every dropped row.
type SkippedRow struct {
	Stream Stream `json:"stream"`
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}
