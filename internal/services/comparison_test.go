package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"savingsrate/internal/core"
	"savingsrate/internal/reference"
	"savingsrate/internal/sources"
	"savingsrate/internal/sources/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettings struct {
	profiles []core.ProfileSettings
	err      error
}

func (f *fakeSettings) Profiles(context.Context) ([]core.ProfileSettings, error) {
	return f.profiles, f.err
}

type fakeReference struct {
	mu     sync.Mutex
	points []core.ReferencePoint
	err    error
	reqs   []reference.Request
}

func (f *fakeReference) Fetch(_ context.Context, req reference.Request) ([]core.ReferencePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.points, f.err
}

// sheetSet serves memory sources by locator.
type sheetSet map[string]sources.RowSource

func (s sheetSet) open(_ context.Context, locator string) (sources.RowSource, error) {
	src, ok := s[locator]
	if !ok {
		return nil, fmt.Errorf("no such sheet %q", locator)
	}
	return src, nil
}

var incomeCols = []string{"Date", "Gross Pay", "Employer Match", "Taxes"}
var savingsCols = []string{"Date", "Brokerage"}

func mapping() core.FieldMapping {
	return core.FieldMapping{
		PayDate:         "Date",
		SavingsDate:     "Date",
		GrossIncome:     "Gross Pay",
		EmployerMatch:   "Employer Match",
		TaxesAndFees:    []string{"Taxes"},
		SavingsAccounts: []string{"Brokerage"},
	}
}

func profile(id string, self, war bool) core.ProfileSettings {
	return core.ProfileSettings{
		ID: id, Name: "P" + id, Self: self, War: war,
		IncomeSource: id + "-income", SavingsSource: id + "-savings",
		Mapping: mapping(),
	}
}

func twoMonths(id string) sheetSet {
	return sheetSet{
		id + "-income": memory.New(incomeCols,
			core.Row{"Date": "2024-01-15", "Gross Pay": "5000", "Employer Match": "0", "Taxes": "1000"},
			core.Row{"Date": "2024-02-15", "Gross Pay": "5000", "Employer Match": "0", "Taxes": "1000"},
		),
		id + "-savings": memory.New(savingsCols,
			core.Row{"Date": "2024-01-31", "Brokerage": "1000"},
			core.Row{"Date": "2024-02-29", "Brokerage": "2000"},
		),
	}
}

func merge(sets ...sheetSet) sheetSet {
	out := sheetSet{}
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

func TestCompare_SelfAndEnemies(t *testing.T) {
	settings := &fakeSettings{profiles: []core.ProfileSettings{
		profile("me", true, true),
		profile("rival", false, true),
		profile("lurker", false, false),
	}}
	sheets := merge(twoMonths("me"), twoMonths("rival"), twoMonths("lurker"))
	svc := NewComparisonService(settings, sheets.open, DefaultComparisonConfig())

	res, err := svc.Compare(context.Background())
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	require.Len(t, res.Profiles, 3)

	self, ok := res.Self()
	require.True(t, ok)
	assert.Equal(t, "me", self.ProfileID)
	require.Len(t, self.Records, 2)
	jan, _ := self.Records[0].SavingsRate.Value()
	feb, _ := self.Records[1].SavingsRate.Value()
	assert.InDelta(t, 25.0, jan, 1e-9)
	assert.InDelta(t, 50.0, feb, 1e-9)

	visible := map[string]bool{}
	for _, p := range res.Visible() {
		visible[p.ProfileID] = true
	}
	assert.Equal(t, map[string]bool{"me": true, "rival": true}, visible)

	lurker, ok := res.Series("lurker")
	require.True(t, ok, "hidden enemies are still computed")
	assert.Len(t, lurker.Records, 2)

	// no reference fetcher configured
	assert.NotNil(t, res.Reference.Points)
	assert.Empty(t, res.Reference.Points)
}

func TestCompare_SourceFailureIsolated(t *testing.T) {
	settings := &fakeSettings{profiles: []core.ProfileSettings{
		profile("me", true, true),
		profile("broken", false, true),
	}}
	sheets := merge(twoMonths("me"), sheetSet{
		"broken-income":  memory.Failing(errors.New("permission denied")),
		"broken-savings": memory.New(savingsCols),
	})
	svc := NewComparisonService(settings, sheets.open, DefaultComparisonConfig())

	res, err := svc.Compare(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Profiles, 1)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "broken", res.Failures[0].ProfileID)
	assert.Contains(t, res.Failures[0].Message, "permission denied")
	assert.Contains(t, res.Failures[0].Message, "income source")
}

func TestCompare_MissingColumnIsolated(t *testing.T) {
	bad := profile("bad", false, true)
	bad.Mapping.GrossIncome = "Salary"

	settings := &fakeSettings{profiles: []core.ProfileSettings{profile("me", true, true), bad}}
	sheets := merge(twoMonths("me"), twoMonths("bad"))
	svc := NewComparisonService(settings, sheets.open, DefaultComparisonConfig())

	res, err := svc.Compare(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	var cfgErr *core.ConfigError
	require.True(t, errors.As(res.Failures[0].Err, &cfgErr))
	assert.Equal(t, "Salary", cfgErr.Column)
	assert.Equal(t, "bad", cfgErr.Profile)
}

func TestCompare_SelfWarOffHidesEnemies(t *testing.T) {
	tests := []struct {
		name        string
		selfSources bool
	}{
		{name: "self computed", selfSources: true},
		{name: "self failed to load", selfSources: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := &fakeSettings{profiles: []core.ProfileSettings{
				profile("me", true, false),
				profile("rival", false, true),
			}}
			sheets := twoMonths("rival")
			if tt.selfSources {
				sheets = merge(sheets, twoMonths("me"))
			}
			svc := NewComparisonService(settings, sheets.open, DefaultComparisonConfig())

			res, err := svc.Compare(context.Background())
			require.NoError(t, err)
			rival, ok := res.Series("rival")
			require.True(t, ok)
			assert.False(t, rival.Visible)
		})
	}
}

func TestCompare_ReferenceOverlay(t *testing.T) {
	ref := &fakeReference{points: []core.ReferencePoint{
		{Month: core.NewMonthKey(2023, 12), Value: 4.1},
		{Month: core.NewMonthKey(2024, 2), Value: 3.6},
		{Month: core.NewMonthKey(2024, 1), Value: 3.8},
	}}
	me := profile("me", true, true)
	me.ReferenceURL = "https://fred.example/obs"

	cfg := DefaultComparisonConfig()
	cfg.ReferenceAPIKey = "k"
	svc := NewComparisonService(&fakeSettings{profiles: []core.ProfileSettings{me}}, twoMonths("me").open, cfg,
		WithReference(ref))

	res, err := svc.Compare(context.Background())
	require.NoError(t, err)

	require.Len(t, ref.reqs, 1)
	assert.Equal(t, reference.Request{
		URL: "https://fred.example/obs", APIKey: "k",
		Start: core.NewMonthKey(2024, 1), End: core.NewMonthKey(2024, 2),
	}, ref.reqs[0])

	assert.Equal(t, "US average savings", res.Reference.Label)
	require.Len(t, res.Reference.Points, 3)
	assert.Equal(t, core.NewMonthKey(2023, 12), res.Reference.Points[0].Month)
	assert.True(t, res.Reference.Points[0].ReferenceOnly)
	assert.False(t, res.Reference.Points[1].ReferenceOnly)
	assert.False(t, res.Reference.Points[2].ReferenceOnly)
}

func TestCompare_ReferenceFailureDegrades(t *testing.T) {
	ref := &fakeReference{err: errors.New("timeout")}
	cfg := DefaultComparisonConfig()
	cfg.ReferenceURL = "https://fred.example/obs"
	svc := NewComparisonService(&fakeSettings{profiles: []core.ProfileSettings{profile("me", true, true)}},
		twoMonths("me").open, cfg, WithReference(ref))

	res, err := svc.Compare(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Profiles, 1)
	assert.NotNil(t, res.Reference.Points)
	assert.Empty(t, res.Reference.Points)
}

func TestCompare_NoReferenceURLSkipsFetch(t *testing.T) {
	ref := &fakeReference{}
	svc := NewComparisonService(&fakeSettings{profiles: []core.ProfileSettings{profile("me", true, true)}},
		twoMonths("me").open, DefaultComparisonConfig(), WithReference(ref))

	_, err := svc.Compare(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ref.reqs)
}

func TestCompare_SettingsErrors(t *testing.T) {
	_, err := NewComparisonService(&fakeSettings{err: errors.New("db locked")}, nil, ComparisonConfig{}).
		Compare(context.Background())
	assert.ErrorContains(t, err, "db locked")

	_, err = NewComparisonService(&fakeSettings{}, nil, ComparisonConfig{}).Compare(context.Background())
	assert.ErrorIs(t, err, ErrNoProfiles)
}

func TestCompare_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewComparisonService(&fakeSettings{profiles: []core.ProfileSettings{profile("me", true, true)}},
		twoMonths("me").open, DefaultComparisonConfig())

	_, err := svc.Compare(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type slowSource struct {
	inFlight, peak *atomic.Int32
	table          core.Table
}

func (s slowSource) Table(context.Context) (core.Table, error) {
	n := s.inFlight.Add(1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	s.inFlight.Add(-1)
	return s.table, nil
}

func TestCompare_ConcurrencyBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	var profiles []core.ProfileSettings
	sheets := sheetSet{}
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("p%d", i)
		profiles = append(profiles, profile(id, i == 0, true))
		sheets[id+"-income"] = slowSource{&inFlight, &peak, core.Table{Columns: incomeCols}}
		sheets[id+"-savings"] = slowSource{&inFlight, &peak, core.Table{Columns: savingsCols}}
	}

	cfg := DefaultComparisonConfig()
	cfg.Concurrency = 2
	res, err := NewComparisonService(&fakeSettings{profiles: profiles}, sheets.open, cfg).Compare(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Profiles, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestNewComparisonService_Defaults(t *testing.T) {
	svc := NewComparisonService(&fakeSettings{}, nil, ComparisonConfig{})
	assert.Equal(t, 4, svc.config.Concurrency)
	assert.Equal(t, 4*time.Second, svc.config.ReferenceTimeout)
	assert.Equal(t, "US average savings", svc.config.ReferenceLabel)
	assert.NotNil(t, svc.open)
}
