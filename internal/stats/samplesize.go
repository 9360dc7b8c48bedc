package stats

import "math"

const (
	// FallbackSampleSize is used when the planning formula is undefined,
	// e.g. a zero minimum detectable effect.
	FallbackSampleSize = 1000

	// DefaultDailyImpressions is the traffic assumed per variant per day
	// when estimating test duration.
	DefaultDailyImpressions = 50

	// maxTargetRate caps the expected variant rate. Effects that would push
	// it to 100% or beyond are planned as if they reached the cap, so a
	// larger effect never needs more samples than a smaller one.
	maxTargetRate = 1 - 1e-6
)

// SampleSizeInput holds the design parameters of a two-arm test.
type SampleSizeInput struct {
	BaselineRate            float64 // expected control conversion rate
	MinimumDetectableEffect float64 // relative lift, 0.20 == +20%
	SignificanceLevel       float64 // alpha, two-tailed
	Power                   float64 // 1 - beta
	DailyImpressions        int     // per variant; advisory only
}

// SampleSize is the outcome of test planning.
type SampleSize struct {
	RequiredPerVariant      int
	TotalRequired           int
	EstimatedDaysToComplete int
}

// CalculateSampleSize computes the per-variant sample size needed to detect
// a relative lift of MinimumDetectableEffect over BaselineRate:
//
//	n = 2 * (zα + zβ)² * p̄(1-p̄) / (p2-p1)²
//
// where zα is two-tailed. p2 is capped just below 1. Whenever the formula
// is undefined (zero effect, baseline outside (0,1), non-finite quantiles)
// FallbackSampleSize is used.
func CalculateSampleSize(in SampleSizeInput) SampleSize {
	n := requiredPerVariant(in)

	daily := in.DailyImpressions
	if daily <= 0 {
		daily = DefaultDailyImpressions
	}

	return SampleSize{
		RequiredPerVariant:      n,
		TotalRequired:           n * 2,
		EstimatedDaysToComplete: int(math.Ceil(float64(n) / float64(daily))),
	}
}

func requiredPerVariant(in SampleSizeInput) int {
	p1 := in.BaselineRate
	p2 := p1 * (1 + in.MinimumDetectableEffect)
	if p2 == p1 {
		return FallbackSampleSize
	}
	if p1 <= 0 || p1 >= maxTargetRate || p2 <= 0 {
		return FallbackSampleSize
	}
	p2 = math.Min(p2, maxTargetRate)

	zAlpha := InverseNormalQuantile(1 - in.SignificanceLevel/2)
	zBeta := InverseNormalQuantile(in.Power)
	if math.IsInf(zAlpha, 0) || math.IsInf(zBeta, 0) || math.IsNaN(zAlpha) || math.IsNaN(zBeta) {
		return FallbackSampleSize
	}

	pBar := (p1 + p2) / 2
	diff := p2 - p1
	n := 2 * math.Pow(zAlpha+zBeta, 2) * pBar * (1 - pBar) / (diff * diff)
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 || n > math.MaxInt32 {
		return FallbackSampleSize
	}

	return int(math.Ceil(n))
}
