package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deribit-gateway/src/helpers"
	"deribit-gateway/src/models"
)

func gexQuote(strike float64, typ string, gamma, oi float64) models.MStrikeQuote {
	return models.MStrikeQuote{
		Strike: strike,
		Type:   typ,
		Gamma:  helpers.Float64Ptr(gamma),
		OI:     helpers.Float64Ptr(oi),
	}
}

func TestSingleGEXSignConvention(t *testing.T) {
	e := NewEngine(1.0)

	call := e.SingleGEX(0.0001, 100, 50000, "call")
	put := e.SingleGEX(0.0001, 100, 50000, "put")

	assert.Negative(t, call, "calls contribute negative dealer gamma")
	assert.Positive(t, put, "puts contribute positive dealer gamma")
	assert.Equal(t, -call, put)

	// gamma * OI * spot^2 * size * 0.01
	assert.InDelta(t, 0.0001*100*50000*50000*0.01, put, 1e-6)
}

func TestGammaExposureAllCallsNonPositive(t *testing.T) {
	chain := &models.MChainSnapshot{
		Spot: 50000,
		Strikes: []models.MStrikeQuote{
			gexQuote(45000, "call", 0.0001, 80),
			gexQuote(50000, "call", 0.0002, 150),
			gexQuote(55000, "call", 0.0001, 60),
		},
	}

	e := NewEngine(1.0)
	profile := e.GammaExposure(chain)

	require.Len(t, profile.ByStrike, 3)
	for _, g := range profile.ByStrike {
		assert.LessOrEqual(t, g.NetGEX, 0.0, "strike %v", g.Strike)
	}
	assert.LessOrEqual(t, profile.NetGEX, 0.0)
	assert.Nil(t, profile.GammaFlip, "no sign change in an all-call chain")
}

func TestGammaExposureAllPutsNonNegative(t *testing.T) {
	chain := &models.MChainSnapshot{
		Spot: 50000,
		Strikes: []models.MStrikeQuote{
			gexQuote(45000, "put", 0.0001, 80),
			gexQuote(50000, "put", 0.0002, 150),
			gexQuote(55000, "put", 0.0001, 60),
		},
	}

	e := NewEngine(1.0)
	profile := e.GammaExposure(chain)

	for _, g := range profile.ByStrike {
		assert.GreaterOrEqual(t, g.NetGEX, 0.0, "strike %v", g.Strike)
	}
	assert.GreaterOrEqual(t, profile.NetGEX, 0.0)
}

func TestGammaFlipInterpolation(t *testing.T) {
	// Put-dominated low strike, call-dominated high strike: net GEX
	// crosses zero between them.
	chain := &models.MChainSnapshot{
		Spot: 50000,
		Strikes: []models.MStrikeQuote{
			gexQuote(45000, "put", 0.0002, 100),
			gexQuote(55000, "call", 0.0002, 100),
		},
	}

	e := NewEngine(1.0)
	profile := e.GammaExposure(chain)

	require.NotNil(t, profile.GammaFlip)
	assert.Greater(t, *profile.GammaFlip, 45000.0)
	assert.Less(t, *profile.GammaFlip, 55000.0)

	// Equal magnitudes put the crossing at the midpoint.
	assert.InDelta(t, 50000.0, *profile.GammaFlip, 1.0)
}

func TestGammaExposureMergesExpiries(t *testing.T) {
	a := &models.MChainSnapshot{
		Spot:    50000,
		Strikes: []models.MStrikeQuote{gexQuote(50000, "call", 0.0001, 100)},
	}
	b := &models.MChainSnapshot{
		Spot:    50100,
		Strikes: []models.MStrikeQuote{gexQuote(50000, "call", 0.0001, 50)},
	}

	e := NewEngine(1.0)
	profile := e.GammaExposure(a, b)

	require.Len(t, profile.ByStrike, 1, "same strike across expiries merges")
	// Both legs priced off the first chain's spot.
	expected := e.SingleGEX(0.0001, 150, 50000, "call")
	assert.InDelta(t, expected, profile.ByStrike[0].NetGEX, 1e-6)
}

func TestNearestStrikesWindow(t *testing.T) {
	var strikes []models.MStrikeQuote
	for k := 30000.0; k <= 70000; k += 1000 {
		strikes = append(strikes, gexQuote(k, "put", 0.0001, 10))
	}
	chain := &models.MChainSnapshot{Spot: 50000, Strikes: strikes}

	e := NewEngine(1.0)
	profile := e.GammaExposure(chain)

	nearest := profile.NearestStrikes(50000, 5)
	require.Len(t, nearest, 5)
	for i := 1; i < len(nearest); i++ {
		assert.Less(t, nearest[i-1].Strike, nearest[i].Strike, "ascending order")
	}
	for _, g := range nearest {
		assert.LessOrEqual(t, abs(g.Strike-50000), 2000.0)
	}
}
