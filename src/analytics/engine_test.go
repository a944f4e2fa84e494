package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deribit-gateway/src/helpers"
)

func iv(v float64) *float64 { return helpers.Float64Ptr(v) }

func TestImbalance(t *testing.T) {
	tests := []struct {
		name     string
		bid, ask float64
		want     *float64
	}{
		{"balanced", 100, 100, iv(0)},
		{"bid heavy", 300, 100, iv(0.5)},
		{"ask heavy", 100, 300, iv(-0.5)},
		{"empty book", 0, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Imbalance(tt.bid, tt.ask)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestSpreadBps(t *testing.T) {
	got := SpreadBps(99, 101)
	require.NotNil(t, got)
	// 2 wide on a 100 mid is 200 bps.
	assert.InDelta(t, 200, *got, 1e-9)

	assert.Nil(t, SpreadBps(0, 101))

	crossed := SpreadBps(101, 99)
	require.NotNil(t, crossed)
	assert.Negative(t, *crossed)
}

func TestDvolToDecimal(t *testing.T) {
	assert.InDelta(t, 0.65, DvolToDecimal(65), 1e-9)
}

func TestInterpolateIV(t *testing.T) {
	points := []IVPoint{
		{Days: 7, IV: 0.50},
		{Days: 30, IV: 0.60},
		{Days: 90, IV: 0.70},
	}

	mid := InterpolateIV(points, 18.5)
	require.NotNil(t, mid)
	assert.InDelta(t, 0.55, *mid, 1e-9)

	// Outside the observed range the nearest endpoint is used.
	short := InterpolateIV(points, 2)
	require.NotNil(t, short)
	assert.InDelta(t, 0.50, *short, 1e-9)

	long := InterpolateIV(points, 180)
	require.NotNil(t, long)
	assert.InDelta(t, 0.70, *long, 1e-9)

	assert.Nil(t, InterpolateIV(nil, 30))
}

func TestExpectedMoveBand(t *testing.T) {
	// 24h at 50% vol on 50000: 50000 * 0.5 * sqrt(1440/525600)
	r := ExpectedMove(50000, 0.5, 1440, "dvol", 1.0)

	want := 50000 * 0.5 * math.Sqrt(1440.0/MinutesPerYear)
	assert.InDelta(t, want, r.MovePts, 1e-6)
	assert.InDelta(t, 50000+want, r.Up1s, 1e-6)
	assert.InDelta(t, 50000-want, r.Down1s, 1e-6)
	assert.InDelta(t, r.MovePts/50000*10000, r.MoveBps, 1e-9)
}

func TestExpectedMoveDegenerate(t *testing.T) {
	r := ExpectedMove(50000, 0, 1440, "dvol", 0.9)
	assert.Zero(t, r.MovePts)
	assert.Equal(t, 50000.0, r.Up1s)
	assert.Equal(t, 50000.0, r.Down1s)
	assert.Zero(t, r.Confidence)
}

func TestTermSlope(t *testing.T) {
	points := []TermPoint{
		{Days: 7, AtmIV: iv(0.50)},
		{Days: 30, AtmIV: iv(0.60)},
	}

	slope := TermSlope(points, 7, 30)
	require.NotNil(t, slope)
	// 0.10 over 23 days, normalized to 30 days.
	assert.InDelta(t, 0.10/23*30, *slope, 1e-9)

	// No point close enough to the 90d anchor.
	assert.Nil(t, TermSlope(points, 30, 90))
}

func TestTermShape(t *testing.T) {
	up := []TermPoint{{Days: 7, AtmIV: iv(0.50)}, {Days: 90, AtmIV: iv(0.60)}}
	down := []TermPoint{{Days: 7, AtmIV: iv(0.60)}, {Days: 90, AtmIV: iv(0.50)}}
	flat := []TermPoint{{Days: 7, AtmIV: iv(0.55)}, {Days: 90, AtmIV: iv(0.555)}}

	assert.Equal(t, "contango", TermShape(up, 0.02))
	assert.Equal(t, "backwardation", TermShape(down, 0.02))
	assert.Equal(t, "flat", TermShape(flat, 0.02))
}

func TestRiskReversalAndButterfly(t *testing.T) {
	rr := RiskReversal(iv(0.55), iv(0.60))
	require.NotNil(t, rr)
	assert.InDelta(t, -0.05, *rr, 1e-9)

	bf := Butterfly(iv(0.55), iv(0.60), iv(0.50))
	require.NotNil(t, bf)
	assert.InDelta(t, 0.075, *bf, 1e-9)

	assert.Nil(t, RiskReversal(nil, iv(0.6)))
	assert.Nil(t, Butterfly(iv(0.55), iv(0.60), nil))
}

func TestSkewDirection(t *testing.T) {
	assert.Equal(t, "bullish", *SkewDirection(iv(0.01)))
	assert.Equal(t, "bearish", *SkewDirection(iv(-0.01)))
	assert.Equal(t, "neutral", *SkewDirection(iv(0.001)))
	assert.Nil(t, SkewDirection(nil))
}

func TestSkewTrend(t *testing.T) {
	steep := []TenorSkew{
		{Days: 7, RR25d: iv(-0.08)},
		{Days: 30, RR25d: iv(-0.02)},
	}
	trend := SkewTrend(steep)
	require.NotNil(t, trend)
	assert.Equal(t, "steepening", *trend)

	flat := []TenorSkew{
		{Days: 7, RR25d: iv(-0.02)},
		{Days: 30, RR25d: iv(-0.08)},
	}
	trend = SkewTrend(flat)
	require.NotNil(t, trend)
	assert.Equal(t, "flattening", *trend)

	assert.Nil(t, SkewTrend(steep[:1]), "one tenor is not a trend")
}

func TestEstimate25dStrike(t *testing.T) {
	callK := Estimate25dStrike(50000, 0.6, 30, true)
	putK := Estimate25dStrike(50000, 0.6, 30, false)

	assert.Greater(t, callK, 50000.0)
	assert.Less(t, putK, 50000.0)

	// Symmetric in log space.
	assert.InDelta(t, 50000*50000, callK*putK, 1e-3*50000*50000)

	assert.Equal(t, 50000.0, Estimate25dStrike(50000, 0, 30, true))
}

func TestDaysToExpiry(t *testing.T) {
	now := int64(1_700_000_000_000)
	in3d := now + 3*24*60*60*1000
	assert.InDelta(t, 3.0, DaysToExpiry(in3d, now), 1e-9)
}
