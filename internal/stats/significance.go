package stats

import "math"

// TwoProportionPValue returns the two-tailed p-value of a pooled
// two-proportion z-test. Missing data or zero pooled variance yield 1.0.
func TwoProportionPValue(aConv, aTrials, bConv, bTrials int64) float64 {
	z, ok := pooledZ(aConv, aTrials, bConv, bTrials)
	if !ok {
		return 1.0
	}

	p := 2 * (1 - NormalCDF(math.Abs(z)))
	if math.IsNaN(p) {
		return 1.0
	}
	return clamp01(p)
}

// SignificanceTest performs a one-sided two-proportion z-test.
// Returns confidence level (0-1) that variant A beats variant B.
func SignificanceTest(aConv, aTrials, bConv, bTrials int64) float64 {
	if aTrials <= 0 || bTrials <= 0 {
		return 0.5 // Need data from both variants
	}

	z, ok := pooledZ(aConv, aTrials, bConv, bTrials)
	if !ok {
		pA := float64(aConv) / float64(aTrials)
		pB := float64(bConv) / float64(bTrials)
		if pA > pB {
			return 1.0
		} else if pA < pB {
			return 0.0
		}
		return 0.5
	}

	// P(Z < z) gives us confidence that A > B
	return clamp01(NormalCDF(z))
}

// pooledZ computes (pA - pB) / SE under the null hypothesis pA == pB.
// ok is false when either arm has no trials or the standard error is zero.
func pooledZ(aConv, aTrials, bConv, bTrials int64) (z float64, ok bool) {
	if aTrials <= 0 || bTrials <= 0 {
		return 0, false
	}

	pA := float64(aConv) / float64(aTrials)
	pB := float64(bConv) / float64(bTrials)

	pooledP := float64(aConv+bConv) / float64(aTrials+bTrials)
	se := math.Sqrt(pooledP * (1 - pooledP) * (1/float64(aTrials) + 1/float64(bTrials)))
	if se == 0 || math.IsNaN(se) {
		return 0, false
	}

	return (pA - pB) / se, true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
