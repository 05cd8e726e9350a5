package core

import (
	"fmt"
	"strings"
	"time"
)

const monthKeyLayout = "2006-01"

// MonthKey is the (year, month) grouping unit of all aggregation.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthOf returns the month key of t in t's own location.
func MonthOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

// NewMonthKey builds a month key from a year and a 1-12 month.
func NewMonthKey(year, month int) MonthKey {
	return MonthKey{Year: year, Month: time.Month(month)}
}

// ParseMonthKey accepts "2006-01" and "2006-01-02".
func ParseMonthKey(s string) (MonthKey, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{monthKeyLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return MonthOf(t), nil
		}
	}
	return MonthKey{}, fmt.Errorf("invalid month key %q", s)
}

// Time returns midnight UTC on the first day of the month.
func (k MonthKey) Time() time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Compare orders month keys chronologically.
func (k MonthKey) Compare(o MonthKey) int {
	switch {
	case k.Year < o.Year:
		return -1
	case k.Year > o.Year:
		return 1
	case k.Month < o.Month:
		return -1
	case k.Month > o.Month:
		return 1
	}
	return 0
}

func (k MonthKey) Before(o MonthKey) bool { return k.Compare(o) < 0 }

func (k MonthKey) After(o MonthKey) bool { return k.Compare(o) > 0 }

// Next returns the following month.
func (k MonthKey) Next() MonthKey {
	return MonthOf(k.Time().AddDate(0, 1, 0))
}

func (k MonthKey) IsZero() bool { return k.Year == 0 && k.Month == 0 }

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

func (k MonthKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MonthKey) UnmarshalText(b []byte) error {
	parsed, err := ParseMonthKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
