// Package google reads a profile sheet from a Google spreadsheet through the
// Sheets v4 API using service-account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"savingsrate/internal/core"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Source reads one A1 range; its first row is the header.
type Source struct {
	svc           *gsheet.Service
	spreadsheetID string
	readRange     string
}

// New builds a source over an existing Sheets client option set.
func New(ctx context.Context, spreadsheetID, readRange string, opts ...goption.ClientOption) (*Source, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	readRange = strings.TrimSpace(readRange)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if readRange == "" {
		return nil, errors.New("missing sheet range")
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Source{svc: svc, spreadsheetID: spreadsheetID, readRange: readRange}, nil
}

// NewFromEnv authenticates with a service account taken from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS, in that order.
func NewFromEnv(ctx context.Context, spreadsheetID, readRange string) (*Source, error) {
	creds, err := credentialsFromEnv(ctx)
	if err != nil {
		return nil, err
	}
	return New(ctx, spreadsheetID, readRange,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
}

func credentialsFromEnv(ctx context.Context) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
}

// Table fetches the range with unformatted values, so amounts arrive as
// numbers and dates as serial numbers.
func (s *Source) Table(ctx context.Context) (core.Table, error) {
	if s.svc == nil {
		return core.Table{}, errors.New("sheets service not initialized")
	}
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("SERIAL_NUMBER").
		Context(ctx).Do()
	if err != nil {
		return core.Table{}, fmt.Errorf("read range %s: %w", s.readRange, err)
	}
	return tableFromValues(resp.Values), nil
}

func (s *Source) String() string {
	return fmt.Sprintf("sheets:%s!%s", s.spreadsheetID, s.readRange)
}

func tableFromValues(values [][]any) core.Table {
	if len(values) == 0 {
		return core.Table{}
	}
	return core.NewTable(values[0], values[1:])
}
