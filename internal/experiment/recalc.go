package experiment

import (
	"math"
	"time"

	"github.com/offer-goat/offer-goat/internal/stats"
)

// Results are the derived fields of an experiment. Writing them never
// touches raw counters.
type Results struct {
	Control  ArmStats
	VariantA ArmStats
	VariantB *ArmStats

	PValueVsControl            float64
	IsStatisticallySignificant bool
	WinningVariant             *Variant
	WinningLift                *float64
	ComputedAt                 time.Time
}

// Recalculate derives rates, Wilson intervals and the control-vs-A test from
// a snapshot of e's counters. Variant B is reported against control but
// never decides the winner. Degenerate inputs produce neutral values.
func Recalculate(e *Experiment, now time.Time) Results {
	r := Results{
		Control:    armStats(e.Control.Counters),
		VariantA:   armStats(e.VariantA.Counters),
		ComputedAt: now,
	}

	ctl := e.Control.Counters
	a := e.VariantA.Counters

	r.VariantA.PValueVsControl = stats.TwoProportionPValue(a.Conversions, a.Impressions, ctl.Conversions, ctl.Impressions)
	if e.VariantB != nil {
		b := armStats(e.VariantB.Counters)
		b.PValueVsControl = stats.TwoProportionPValue(e.VariantB.Counters.Conversions, e.VariantB.Counters.Impressions, ctl.Conversions, ctl.Impressions)
		r.VariantB = &b
	}

	r.PValueVsControl = r.VariantA.PValueVsControl
	r.IsStatisticallySignificant = r.PValueVsControl < e.SignificanceLevel

	if r.IsStatisticallySignificant {
		winnerRate, otherRate := r.Control.ConversionRate, r.VariantA.ConversionRate
		winner := Control
		if r.VariantA.ConversionRate > r.Control.ConversionRate {
			winner = VariantA
			winnerRate, otherRate = r.VariantA.ConversionRate, r.Control.ConversionRate
		}
		r.WinningVariant = &winner

		switch {
		case winner == Control:
			lift := 0.0
			r.WinningLift = &lift
		case otherRate > 0:
			lift := (winnerRate - otherRate) / otherRate * 100
			r.WinningLift = &lift
		}
	}

	return r
}

// ApplyResults copies derived fields onto e.
func (e *Experiment) ApplyResults(r Results) {
	e.Control.Stats = r.Control
	e.VariantA.Stats = r.VariantA
	if e.VariantB != nil && r.VariantB != nil {
		e.VariantB.Stats = *r.VariantB
	}
	e.PValueVsControl = r.PValueVsControl
	e.IsStatisticallySignificant = r.IsStatisticallySignificant
	e.WinningVariant = r.WinningVariant
	e.WinningLift = r.WinningLift
	at := r.ComputedAt
	e.StatsUpdatedAt = &at
}

func armStats(c Counters) ArmStats {
	if c.Impressions <= 0 {
		return ArmStats{}
	}

	n := float64(c.Impressions)
	s := ArmStats{
		ConversionRate:       float64(c.Conversions) / n,
		ClickRate:            float64(c.Clicks) / n,
		RevenuePerImpression: c.Revenue / n,
	}
	s.CILower, s.CIUpper = stats.WilsonInterval(c.Conversions, c.Impressions, stats.DefaultConfidence)

	if math.IsNaN(s.RevenuePerImpression) || math.IsInf(s.RevenuePerImpression, 0) {
		s.RevenuePerImpression = 0
	}
	return s
}
