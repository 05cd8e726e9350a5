// Package sources loads the income and savings sheets of a profile into
// core.Table values. A profile refers to its sheets through a locator string:
//
//	csv:/path/to/income.csv      or simply /path/to/income.csv
//	xlsx:/path/to/book.xlsx#Pay  or /path/to/book.xlsx (first sheet)
//	sheets:<spreadsheetID>!<A1 range>
package sources

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"savingsrate/internal/core"
	"savingsrate/internal/sources/google"
)

// RowSource yields one sheet as a table.
type RowSource interface {
	Table(ctx context.Context) (core.Table, error)
}

// Opener resolves a locator into a RowSource.
type Opener func(ctx context.Context, locator string) (RowSource, error)

const (
	KindCSV    = "csv"
	KindXLSX   = "xlsx"
	KindSheets = "sheets"
)

var ErrUnknownLocator = errors.New("unknown source locator")

// Locator is a parsed source reference.
type Locator struct {
	Kind  string
	Path  string // file path, or spreadsheet ID for sheets
	Sheet string // worksheet name (xlsx) or A1 range (sheets)
}

func (l Locator) String() string {
	switch l.Kind {
	case KindSheets:
		return fmt.Sprintf("sheets:%s!%s", l.Path, l.Sheet)
	case KindXLSX:
		if l.Sheet != "" {
			return fmt.Sprintf("xlsx:%s#%s", l.Path, l.Sheet)
		}
	}
	return l.Kind + ":" + l.Path
}

// ParseLocator splits a locator string into its parts.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, fmt.Errorf("%w: empty", ErrUnknownLocator)
	}

	kind, rest, hasKind := strings.Cut(s, ":")
	// A Windows drive letter is not a scheme.
	if hasKind && len(kind) == 1 {
		hasKind = false
	}
	if !hasKind {
		switch strings.ToLower(filepath.Ext(pathPart(s))) {
		case ".csv":
			kind, rest = KindCSV, s
		case ".xlsx", ".xlsm":
			kind, rest = KindXLSX, s
		default:
			return Locator{}, fmt.Errorf("%w: %q", ErrUnknownLocator, s)
		}
	}

	switch strings.ToLower(kind) {
	case KindCSV:
		if rest == "" {
			return Locator{}, fmt.Errorf("%w: csv locator without path", ErrUnknownLocator)
		}
		return Locator{Kind: KindCSV, Path: rest}, nil
	case KindXLSX:
		path, sheet, _ := strings.Cut(rest, "#")
		if path == "" {
			return Locator{}, fmt.Errorf("%w: xlsx locator without path", ErrUnknownLocator)
		}
		return Locator{Kind: KindXLSX, Path: path, Sheet: sheet}, nil
	case KindSheets:
		id, rng, ok := strings.Cut(rest, "!")
		if !ok || id == "" || rng == "" {
			return Locator{}, fmt.Errorf("%w: sheets locator must be sheets:<id>!<range>", ErrUnknownLocator)
		}
		return Locator{Kind: KindSheets, Path: id, Sheet: rng}, nil
	}
	return Locator{}, fmt.Errorf("%w: %q", ErrUnknownLocator, s)
}

func pathPart(s string) string {
	p, _, _ := strings.Cut(s, "#")
	return p
}

// Open is the default Opener.
func Open(ctx context.Context, locator string) (RowSource, error) {
	loc, err := ParseLocator(locator)
	if err != nil {
		return nil, err
	}
	switch loc.Kind {
	case KindCSV:
		return NewCSV(loc.Path), nil
	case KindXLSX:
		return NewXLSX(loc.Path, loc.Sheet), nil
	case KindSheets:
		src, err := google.NewFromEnv(ctx, loc.Path, loc.Sheet)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", loc, err)
		}
		return src, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLocator, locator)
}
