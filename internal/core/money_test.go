package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"", "0"},
		{"  ", "0"},
		{"-", "0"},
		{"N/A", "0"},
		{nil, "0"},
		{"12.34", "12.34"},
		{"1,200.50", "1200.5"},
		{"$5,000", "5000"},
		{"€ 99.90", "99.9"},
		{"(45.00)", "-45"},
		{"$ (45.00)", "-45"},
		{"$(1,200.00)", "-1200"},
		{"(€ 1.5)", "-1.5"},
		{"-12", "-12"},
		{4833.34, "4833.34"},
		{120, "120"},
		{int64(7), "7"},
		{decimal.RequireFromString("1.5"), "1.5"},
	}
	for _, c := range cases {
		got, err := ParseAmount(c.in)
		if err != nil {
			t.Fatalf("ParseAmount(%#v) unexpected error: %v", c.in, err)
		}
		if !got.Equal(decimal.RequireFromString(c.want)) {
			t.Fatalf("ParseAmount(%#v) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestParseAmountInvalid(t *testing.T) {
	for _, in := range []any{"abc", "12.3.4", "$", "()", true} {
		if _, err := ParseAmount(in); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("ParseAmount(%#v) err=%v, want ErrInvalidAmount", in, err)
		}
	}
}

func TestIsBlank(t *testing.T) {
	if !IsBlank(nil) || !IsBlank(" ") || !IsBlank("n/a") {
		t.Fatal("expected blank")
	}
	if IsBlank("0") || IsBlank(0.0) {
		t.Fatal("zero is a value, not blank")
	}
}
