package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Excel serial dates count days from 1899-12-30 (the 1900 leap-year bug is
// folded into the epoch).
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const maxExcelSerial = 2958465 // 9999-12-31

// minSerialString is the smallest digit-only text read as a serial (1927-05-18).
// Shorter numbers such as "2024" are not dates.
const minSerialString = 10000

// ParseDate converts a date cell into a calendar date at midnight UTC.
//
// Accepted inputs are time.Time values, Excel serial numbers (as numbers or
// digit-only strings) and the human formats understood by dateparse:
// "2024-01-15", "01/15/2024", "Jan 15 2024", "15 January 2024",
// "2024-01-15T10:00:00Z" and so on.
//
// Ambiguous all-numeric dates are read month first: "03/04/2024" is March 4th.
// Day and month swap only when the first field cannot be a month, so
// "15/01/2024" is January 15th.
// A leading four-digit year always means year-month-day.
func ParseDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, ErrEmptyDate
	case time.Time:
		if x.IsZero() {
			return time.Time{}, ErrEmptyDate
		}
		return dateOnly(x), nil
	case int:
		return fromSerial(float64(x))
	case int64:
		return fromSerial(float64(x))
	case float64:
		return fromSerial(x)
	case string:
		return parseDateString(x)
	}
	return time.Time{}, fmt.Errorf("%w: unsupported cell type %T", ErrInvalidDate, v)
}

func parseDateString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmptyDate
	}
	if isDigits(s) && len(s) <= 5 {
		n, err := strconv.Atoi(s)
		if err != nil || n < minSerialString {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		return fromSerial(float64(n))
	}
	t, err := dateparse.ParseIn(s, time.UTC,
		dateparse.PreferMonthFirst(true),
		dateparse.RetryAmbiguousDateWithSwap(true))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return dateOnly(t), nil
}

func fromSerial(f float64) (time.Time, error) {
	if math.IsNaN(f) || f < 1 || f > maxExcelSerial {
		return time.Time{}, fmt.Errorf("%w: serial %v out of range", ErrInvalidDate, f)
	}
	return excelEpoch.AddDate(0, 0, int(f)), nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
