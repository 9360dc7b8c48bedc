package stats_test

import (
	"math"
	"testing"

	"github.com/offer-goat/offer-goat/internal/stats"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestInverseNormalQuantile_KnownValues(t *testing.T) {
	tests := []struct {
		p    float64
		want float64
	}{
		{0.5, 0},
		{0.975, 1.959963984540054},
		{0.8, 0.8416212335729143},
		{0.025, -1.959963984540054},
		{0.001, -3.090232306167813},
		{0.999, 3.090232306167813},
	}

	for _, tt := range tests {
		assert.InDelta(t, tt.want, stats.InverseNormalQuantile(tt.p), 1e-8, "p=%v", tt.p)
	}
}

func TestInverseNormalQuantile_Sentinels(t *testing.T) {
	assert.True(t, math.IsInf(stats.InverseNormalQuantile(0), -1))
	assert.True(t, math.IsInf(stats.InverseNormalQuantile(-0.5), -1))
	assert.True(t, math.IsInf(stats.InverseNormalQuantile(1), 1))
	assert.True(t, math.IsInf(stats.InverseNormalQuantile(1.5), 1))
}

func TestNormalCDF_KnownValues(t *testing.T) {
	assert.InDelta(t, 0.5, stats.NormalCDF(0), 1e-6)
	assert.InDelta(t, 0.975, stats.NormalCDF(1.959964), 1e-6)
	assert.InDelta(t, 0.025, stats.NormalCDF(-1.959964), 1e-6)
	assert.InDelta(t, 0.841345, stats.NormalCDF(1), 1e-6)
	assert.InDelta(t, 1.0, stats.NormalCDF(10), 1e-6)
	assert.InDelta(t, 0.0, stats.NormalCDF(-10), 1e-6)
}

func TestNormalCDF_RoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p := rapid.Float64Range(0.001, 0.999).Draw(rt, "p")
		got := stats.NormalCDF(stats.InverseNormalQuantile(p))
		if math.Abs(got-p) > 1e-6 {
			rt.Fatalf("NormalCDF(InverseNormalQuantile(%v)) = %v", p, got)
		}
	})
}
