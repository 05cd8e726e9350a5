package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StreamIncome  Stream = "income"
	StreamSavings Stream = "savings"
)

type (
	// Stream tags which spreadsheet a row came from.
	Stream string

	// FieldMapping resolves the semantic roles of a profile's spreadsheet
	// columns. It is read-only for the duration of a run.
	FieldMapping struct {
		PayDate         string
		SavingsDate     string
		GrossIncome     string
		EmployerMatch   string
		TaxesAndFees    []string
		SavingsAccounts []string
		Notes           string // optional
		TotalBalance    string // optional
		PercentFINotes  string // optional
		Goal            *float64
		FITarget        *float64
	}

	// ProfileSettings is a fully resolved user profile as handed over by the
	// settings store.
	ProfileSettings struct {
		ID            string
		Name          string
		Self          bool
		War           bool
		ShowAverage   bool
		IncomeSource  string
		SavingsSource string
		Mapping       FieldMapping

		ReferenceURL    string
		ReferenceAPIKey string
	}

	// Row is one spreadsheet row keyed by column header. Values are strings,
	// numbers, decimals or time.Time depending on the row source.
	Row map[string]any

	// Table is the output of a row source: the header plus the data rows in
	// sheet order.
	Table struct {
		Columns []string
		Rows    []Row
	}

	// Transaction is a single normalized row.
	Transaction struct {
		Date    time.Time
		Stream  Stream
		Gross   decimal.Decimal
		Match   decimal.Decimal
		Taxes   decimal.Decimal
		Savings decimal.Decimal

		Note          string
		PercentFINote string

		TotalBalance    decimal.Decimal
		HasTotalBalance bool
	}

	// MonthlyBucket aggregates every transaction of one profile that falls in
	// the same calendar month.
	MonthlyBucket struct {
		Month   MonthKey
		Gross   decimal.Decimal
		Match   decimal.Decimal
		Taxes   decimal.Decimal
		Savings decimal.Decimal

		Notes          string
		PercentFINotes string

		TotalBalance    decimal.Decimal
		HasTotalBalance bool

		IncomeRows  int
		SavingsRows int
	}

	RateRecord struct {
		Month           MonthKey `json:"month"`
		SavingsRate     Rate     `json:"savings_rate"`
		EffectiveIncome float64  `json:"effective_income"`
		Savings         float64  `json:"savings"`
		Goal            *float64 `json:"goal,omitempty"`
		PercentFI       *float64 `json:"percent_fi,omitempty"`
		Notes           string   `json:"notes"`
		PercentFINotes  string   `json:"percent_fi_notes,omitempty"`
	}

	// ProfileSeries is the month-ordered output for one profile.
	ProfileSeries struct {
		ProfileID   string       `json:"profile_id"`
		Name        string       `json:"name"`
		Self        bool         `json:"self"`
		Visible     bool         `json:"visible"`
		ShowAverage bool         `json:"show_average"`
		Average     Rate         `json:"average"`
		Records     []RateRecord `json:"records"`
		Skipped     []SkippedRow `json:"skipped,omitempty"`
	}

	// ProfileFailure reports a profile whose pipeline could not run.
	ProfileFailure struct {
		ProfileID string `json:"profile_id"`
		Name      string `json:"name"`
		Message   string `json:"error"`
		Err       error  `json:"-"`
	}

	// ReferencePoint is one month of an external reference series.
	ReferencePoint struct {
		Month MonthKey
		Value float64
	}

	OverlayPoint struct {
		Month         MonthKey `json:"month"`
		Value         float64  `json:"value"`
		ReferenceOnly bool     `json:"reference_only"`
	}

	// Overlay is the reference series aligned against the self series.
	Overlay struct {
		Label  string         `json:"label,omitempty"`
		Points []OverlayPoint `json:"points"`
	}

	// ComparisonResult is the terminal output of a run. Profiles holds every
	// computed series, self first, in settings order.
	ComparisonResult struct {
		Profiles  []ProfileSeries  `json:"profiles"`
		Reference Overlay          `json:"reference"`
		Failures  []ProfileFailure `json:"failures,omitempty"`
	}
)

// Self returns the self profile's series when it was computed.
func (r ComparisonResult) Self() (ProfileSeries, bool) {
	for _, p := range r.Profiles {
		if p.Self {
			return p, true
		}
	}
	return ProfileSeries{}, false
}

// Series looks up a profile's series by ID.
func (r ComparisonResult) Series(id string) (ProfileSeries, bool) {
	for _, p := range r.Profiles {
		if p.ProfileID == id {
			return p, true
		}
	}
	return ProfileSeries{}, false
}

// ByID returns every computed series keyed by profile ID.
func (r ComparisonResult) ByID() map[string]ProfileSeries {
	out := make(map[string]ProfileSeries, len(r.Profiles))
	for _, p := range r.Profiles {
		out[p.ProfileID] = p
	}
	return out
}

// Visible returns the series meant for joint presentation.
func (r ComparisonResult) Visible() []ProfileSeries {
	var out []ProfileSeries
	for _, p := range r.Profiles {
		if p.Visible {
			out = append(out, p)
		}
	}
	return out
}

// Months returns the month keys of the series in order.
func (s ProfileSeries) Months() []MonthKey {
	out := make([]MonthKey, len(s.Records))
	for i, rec := range s.Records {
		out[i] = rec.Month
	}
	return out
}

// Range returns the first and last month of the series.
func (s ProfileSeries) Range() (first, last MonthKey, ok bool) {
	if len(s.Records) == 0 {
		return MonthKey{}, MonthKey{}, false
	}
	return s.Records[0].Month, s.Records[len(s.Records)-1].Month, true
}
