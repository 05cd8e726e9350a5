// Package engine turns raw income and savings rows into monthly savings-rate
// series.
//
// Everything here is a pure function of its inputs: no I/O, no clock, no
// state kept between calls. Refreshing a series means calling again with new
// tables.
package engine

import (
	"errors"
	"fmt"

	"savingsrate/internal/core"
)

// ProfileInput is everything needed to compute one profile: its resolved
// settings and the two tables produced by its row sources.
type ProfileInput struct {
	Settings core.ProfileSettings
	Income   core.Table
	Savings  core.Table
}

type Engine struct {
	merger NoteMerger
}

type Option func(*Engine)

// WithNoteMerger overrides the note splitting and joining rules.
func WithNoteMerger(m NoteMerger) Option {
	return func(e *Engine) { e.merger = m }
}

func New(opts ...Option) *Engine {
	e := &Engine{merger: DefaultNoteMerger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildSeries runs normalization, aggregation and rate calculation for one
// profile. Visibility is left to Compare.
func (e *Engine) BuildSeries(in ProfileInput) (core.ProfileSeries, error) {
	s := in.Settings
	income, skippedIncome, err := NormalizeTable(in.Income, s.Mapping, core.StreamIncome)
	if err != nil {
		return core.ProfileSeries{}, withProfile(err, s.ID)
	}
	savings, skippedSavings, err := NormalizeTable(in.Savings, s.Mapping, core.StreamSavings)
	if err != nil {
		return core.ProfileSeries{}, withProfile(err, s.ID)
	}

	buckets := Aggregate(income, savings, e.merger)
	records := make([]core.RateRecord, 0, len(buckets))
	for _, b := range buckets {
		records = append(records, Calculate(b, s.Mapping))
	}

	return core.ProfileSeries{
		ProfileID:   s.ID,
		Name:        s.Name,
		Self:        s.Self,
		ShowAverage: s.ShowAverage,
		Average:     Average(records),
		Records:     records,
		Skipped:     append(skippedIncome, skippedSavings...),
	}, nil
}

// Compare computes every profile independently. A profile whose
// configuration does not match its sheets is reported in Failures and does
// not affect the others.
//
// The self profile is always visible. An enemy is visible when its own war
// flag is on and, if the self profile is present, the self profile's war
// flag is on too. Hidden enemies are still computed.
func (e *Engine) Compare(inputs []ProfileInput) core.ComparisonResult {
	var res core.ComparisonResult
	selfWar := true
	for _, in := range inputs {
		if in.Settings.Self {
			selfWar = in.Settings.War
			break
		}
	}

	var enemies []core.ProfileSeries
	for _, in := range inputs {
		series, err := e.BuildSeries(in)
		if err != nil {
			res.Failures = append(res.Failures, core.ProfileFailure{
				ProfileID: in.Settings.ID,
				Name:      in.Settings.Name,
				Message:   err.Error(),
				Err:       err,
			})
			continue
		}
		if series.Self {
			series.Visible = true
			res.Profiles = append(res.Profiles, series)
			continue
		}
		series.Visible = selfWar && in.Settings.War
		enemies = append(enemies, series)
	}
	res.Profiles = append(res.Profiles, enemies...)
	return res
}

func withProfile(err error, profile string) error {
	var cfgErr *core.ConfigError
	if errors.As(err, &cfgErr) {
		cfgErr.Profile = profile
		return cfgErr
	}
	return fmt.Errorf("profile %s: %w", profile, err)
}
