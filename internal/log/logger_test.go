package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"savingsrate/internal/core"
)

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Format: "json", Output: &buf, Component: ComponentEngine})
	l.Info("series computed", FieldProfileID, "1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if rec[FieldComponent] != ComponentEngine || rec[FieldProfileID] != "1" {
		t.Fatalf("unexpected record: %v", rec)
	}

	buf.Reset()
	l.WithComponent(ComponentHTTP).Warn("slow")
	if !strings.Contains(buf.String(), `"component":"http"`) {
		t.Fatalf("component not switched: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "bogus": slog.LevelInfo}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogFields(t *testing.T) {
	s := core.ProfileSeries{
		Records: []core.RateRecord{{Month: core.NewMonthKey(2024, 1)}, {Month: core.NewMonthKey(2024, 2)}},
		Skipped: []core.SkippedRow{{Stream: core.StreamIncome}},
	}
	f := NewFields().WithProfile("1", "Me").WithSeries(s).WithError(errors.New("boom")).WithOperation(OpCompare)
	if f[FieldMonths] != 2 || f[FieldSkipped] != 1 || f[FieldFirstMonth] != "2024-01" || f[FieldLastMonth] != "2024-02" {
		t.Fatalf("unexpected fields: %v", f)
	}
	if f[FieldError] != "boom" || len(f.ToSlice()) != 2*len(f) {
		t.Fatalf("unexpected fields: %v", f)
	}
}
