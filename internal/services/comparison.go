package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"savingsrate/internal/core"
	"savingsrate/internal/engine"
	"savingsrate/internal/log"
	"savingsrate/internal/reference"
	"savingsrate/internal/sources"

	"golang.org/x/sync/errgroup"
)

var ErrNoProfiles = errors.New("no profiles configured")

// SettingsReader is the part of the settings store the service reads.
type SettingsReader interface {
	Profiles(ctx context.Context) ([]core.ProfileSettings, error)
}

// ComparisonConfig holds the knobs of a comparison run.
type ComparisonConfig struct {
	// Concurrency bounds how many sheets are read at once (default: 4).
	Concurrency int

	// ReferenceURL and ReferenceAPIKey are used when the self profile does
	// not name its own reference endpoint.
	ReferenceURL    string
	ReferenceAPIKey string

	// ReferenceLabel names the overlay (default: "US average savings").
	ReferenceLabel string

	// ReferenceTimeout bounds the reference fetch (default: 4s).
	ReferenceTimeout time.Duration

	// MaxSkipReasons caps how many skip reasons are logged per sheet (default: 3).
	MaxSkipReasons int
}

func DefaultComparisonConfig() ComparisonConfig {
	return ComparisonConfig{
		Concurrency:      4,
		ReferenceLabel:   "US average savings",
		ReferenceTimeout: 4 * time.Second,
		MaxSkipReasons:   3,
	}
}

// ComparisonService loads every profile's sheets, runs the engine and
// attaches the reference overlay.
type ComparisonService struct {
	settings  SettingsReader
	open      sources.Opener
	engine    *engine.Engine
	reference reference.Fetcher
	config    ComparisonConfig
	logger    *log.Logger
}

type Option func(*ComparisonService)

func WithEngine(e *engine.Engine) Option {
	return func(s *ComparisonService) { s.engine = e }
}

// WithReference enables the reference overlay.
func WithReference(f reference.Fetcher) Option {
	return func(s *ComparisonService) { s.reference = f }
}

func WithLogger(l *log.Logger) Option {
	return func(s *ComparisonService) { s.logger = l }
}

func NewComparisonService(settings SettingsReader, open sources.Opener, config ComparisonConfig, opts ...Option) *ComparisonService {
	def := DefaultComparisonConfig()
	if config.Concurrency < 1 {
		config.Concurrency = def.Concurrency
	}
	if config.ReferenceLabel == "" {
		config.ReferenceLabel = def.ReferenceLabel
	}
	if config.ReferenceTimeout <= 0 {
		config.ReferenceTimeout = def.ReferenceTimeout
	}
	if config.MaxSkipReasons < 1 {
		config.MaxSkipReasons = def.MaxSkipReasons
	}
	if open == nil {
		open = sources.Open
	}

	s := &ComparisonService{
		settings: settings,
		open:     open,
		engine:   engine.New(),
		config:   config,
		logger:   log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(log.ComponentEngine)
	return s
}

type loaded struct {
	income, savings core.Table
	err             error
}

// Compare performs one full run. Only a settings failure or a cancelled
// context fails the run; source and mapping problems become per-profile
// failures in the result.
func (s *ComparisonService) Compare(ctx context.Context) (core.ComparisonResult, error) {
	start := time.Now()

	profiles, err := s.settings.Profiles(ctx)
	if err != nil {
		return core.ComparisonResult{}, fmt.Errorf("load profiles: %w", err)
	}
	if len(profiles) == 0 {
		return core.ComparisonResult{}, ErrNoProfiles
	}

	tables, err := s.loadTables(ctx, profiles)
	if err != nil {
		return core.ComparisonResult{}, err
	}

	var (
		inputs   []engine.ProfileInput
		failures []core.ProfileFailure
	)
	for i, p := range profiles {
		if err := tables[i].err; err != nil {
			s.logger.WarnContext(ctx, "Profile sources unavailable",
				log.NewFields().WithProfile(p.ID, p.Name).WithError(err).ToSlice()...)
			failures = append(failures, core.ProfileFailure{
				ProfileID: p.ID, Name: p.Name, Message: err.Error(), Err: err,
			})
			continue
		}
		inputs = append(inputs, engine.ProfileInput{Settings: p, Income: tables[i].income, Savings: tables[i].savings})
	}

	res := s.engine.Compare(inputs)
	res.Failures = append(res.Failures, failures...)
	gateOnSelfWar(&res, profiles)

	for _, f := range res.Failures {
		if f.Err != nil && errors.Is(f.Err, core.ErrMissingColumn) {
			s.logger.WarnContext(ctx, "Profile configuration does not match its sheets",
				log.NewFields().WithProfile(f.ProfileID, f.Name).WithError(f.Err).ToSlice()...)
		}
	}
	for _, series := range res.Profiles {
		s.logSeries(ctx, series)
	}

	res.Reference = s.overlay(ctx, res, profiles)

	s.logger.InfoContext(ctx, "Comparison computed",
		log.FieldOperation, log.OpCompare,
		"profiles", len(res.Profiles),
		"failures", len(res.Failures),
		log.FieldPoints, len(res.Reference.Points),
		log.FieldDuration, time.Since(start).Milliseconds())
	return res, nil
}

// loadTables reads both sheets of every profile, at most Concurrency at a
// time. Per-sheet errors are kept per profile; only cancellation aborts.
func (s *ComparisonService) loadTables(ctx context.Context, profiles []core.ProfileSettings) ([]loaded, error) {
	out := make([]loaded, len(profiles))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, p := range profiles {
		for _, stream := range []core.Stream{core.StreamIncome, core.StreamSavings} {
			locator := p.IncomeSource
			if stream == core.StreamSavings {
				locator = p.SavingsSource
			}
			g.Go(func() error {
				t, err := s.readTable(gctx, locator)
				if gctx.Err() != nil {
					return gctx.Err()
				}
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					if out[i].err == nil {
						out[i].err = fmt.Errorf("%s source %q: %w", stream, locator, err)
					}
				case stream == core.StreamIncome:
					out[i].income = t
				default:
					out[i].savings = t
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	return out, nil
}

func (s *ComparisonService) readTable(ctx context.Context, locator string) (core.Table, error) {
	src, err := s.open(ctx, locator)
	if err != nil {
		return core.Table{}, err
	}
	start := time.Now()
	t, err := src.Table(ctx)
	if err != nil {
		return core.Table{}, err
	}
	s.logger.DebugContext(ctx, "Sheet loaded",
		log.FieldOperation, log.OpLoad,
		log.FieldSource, locator,
		"rows", len(t.Rows),
		log.FieldDuration, time.Since(start).Milliseconds())
	return t, nil
}

// gateOnSelfWar hides every enemy when the self profile has war mode off,
// including when the self profile itself failed and never reached the engine.
func gateOnSelfWar(res *core.ComparisonResult, profiles []core.ProfileSettings) {
	for _, p := range profiles {
		if !p.Self {
			continue
		}
		if p.War {
			return
		}
		for i := range res.Profiles {
			if !res.Profiles[i].Self {
				res.Profiles[i].Visible = false
			}
		}
		return
	}
}

func (s *ComparisonService) logSeries(ctx context.Context, series core.ProfileSeries) {
	fields := log.NewFields().WithProfile(series.ProfileID, series.Name).WithSeries(series)
	fields["visible"] = series.Visible
	s.logger.InfoContext(ctx, "Series computed", fields.ToSlice()...)

	if len(series.Skipped) == 0 {
		return
	}
	byStream := map[core.Stream][]string{}
	for _, sk := range series.Skipped {
		byStream[sk.Stream] = append(byStream[sk.Stream], fmt.Sprintf("row %d: %s", sk.Row, sk.Reason))
	}
	for _, stream := range []core.Stream{core.StreamIncome, core.StreamSavings} {
		reasons := byStream[stream]
		if len(reasons) == 0 {
			continue
		}
		shown := reasons
		if len(shown) > s.config.MaxSkipReasons {
			shown = shown[:s.config.MaxSkipReasons]
		}
		s.logger.WarnContext(ctx, "Rows skipped",
			log.FieldProfileID, series.ProfileID,
			log.FieldStream, string(stream),
			log.FieldSkipped, len(reasons),
			"reasons", strings.Join(shown, "; "))
	}
}

// overlay fetches the reference over the self series' month range. Any
// failure degrades to an empty overlay.
func (s *ComparisonService) overlay(ctx context.Context, res core.ComparisonResult, profiles []core.ProfileSettings) core.Overlay {
	empty := core.Overlay{Label: s.config.ReferenceLabel, Points: []core.OverlayPoint{}}
	if s.reference == nil {
		return empty
	}
	self, ok := res.Self()
	if !ok {
		return empty
	}
	first, last, ok := self.Range()
	if !ok {
		return empty
	}

	url, key := s.config.ReferenceURL, s.config.ReferenceAPIKey
	for _, p := range profiles {
		if p.Self && strings.TrimSpace(p.ReferenceURL) != "" {
			url, key = p.ReferenceURL, p.ReferenceAPIKey
			if key == "" {
				key = s.config.ReferenceAPIKey
			}
		}
	}
	if strings.TrimSpace(url) == "" {
		return empty
	}

	fctx, cancel := context.WithTimeout(ctx, s.config.ReferenceTimeout)
	defer cancel()
	points, err := s.reference.Fetch(fctx, reference.Request{URL: url, APIKey: key, Start: first, End: last})
	if err != nil {
		s.logger.WarnContext(ctx, "Reference series unavailable",
			log.FieldOperation, log.OpFetch,
			log.FieldSource, url,
			log.FieldError, err.Error())
		return empty
	}
	return engine.MergeReference(s.config.ReferenceLabel, points, self)
}
