package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	want := func(y, m, d int) time.Time {
		return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	}
	tests := []struct {
		name string
		in   any
		want time.Time
	}{
		{"iso", "2024-01-15", want(2024, 1, 15)},
		{"us slash", "01/15/2024", want(2024, 1, 15)},
		{"ambiguous is month first", "03/04/2024", want(2024, 3, 4)},
		{"day first when month is impossible", "15/01/2024", want(2024, 1, 15)},
		{"month name", "Jan 15, 2024", want(2024, 1, 15)},
		{"day month name", "15 January 2024", want(2024, 1, 15)},
		{"rfc3339 keeps written day", "2024-01-31T23:30:00-05:00", want(2024, 1, 31)},
		{"excel serial number", 45306.0, want(2024, 1, 15)},
		{"excel serial string", "45306", want(2024, 1, 15)},
		{"time value", time.Date(2023, 12, 1, 15, 4, 5, 0, time.UTC), want(2023, 12, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if err != nil {
				t.Fatalf("ParseDate(%#v) error: %v", tt.in, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDate(%#v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDateErrors(t *testing.T) {
	for _, in := range []any{"", "   ", nil, time.Time{}} {
		if _, err := ParseDate(in); !errors.Is(err, ErrEmptyDate) {
			t.Errorf("ParseDate(%#v) err=%v, want ErrEmptyDate", in, err)
		}
	}
	for _, in := range []any{"not a date", -3.0, true, "2024", "7", "9999"} {
		if _, err := ParseDate(in); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseDate(%#v) err=%v, want ErrInvalidDate", in, err)
		}
	}
}
