package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deribit-gateway/src/helpers"
	"deribit-gateway/src/models"
)

func quote(strike float64, typ string, oi float64) models.MStrikeQuote {
	return models.MStrikeQuote{
		Strike: strike,
		Type:   typ,
		OI:     helpers.Float64Ptr(oi),
	}
}

func TestMaxPainTwoStrikeFixture(t *testing.T) {
	// 100 puts at K1=40000, 100 calls at K2=60000, spot in between.
	// Settling at K1 leaves the calls worthless and the puts at zero
	// intrinsic; settling at K2 pays the puts 20000 each. K1 minimizes
	// aggregate payout.
	chain := &models.MChainSnapshot{
		Ccy:    "BTC",
		Expiry: "26DEC25",
		Spot:   50000,
		Strikes: []models.MStrikeQuote{
			quote(40000, "put", 100),
			quote(60000, "call", 100),
		},
	}

	e := NewEngine(1.0)

	// Direct computation on the fixture.
	painAtK1 := e.PainAtStrike(chain, 40000)
	painAtK2 := e.PainAtStrike(chain, 60000)
	assert.Equal(t, 0.0, painAtK1)
	assert.Equal(t, 20000.0*100, painAtK2)

	result := e.MaxPain(chain)
	assert.Equal(t, 40000.0, result.MaxPainStrike)
	assert.Equal(t, 0.0, result.PainValue)
	assert.Equal(t, 100.0, result.TotalCallOI)
	assert.Equal(t, 100.0, result.TotalPutOI)
	require.Len(t, result.Curve, 2)
}

func TestMaxPainMinimizerInBetween(t *testing.T) {
	chain := &models.MChainSnapshot{
		Spot: 50000,
		Strikes: []models.MStrikeQuote{
			quote(45000, "put", 50),
			quote(50000, "call", 200),
			quote(50000, "put", 200),
			quote(55000, "call", 50),
		},
	}

	e := NewEngine(1.0)
	result := e.MaxPain(chain)

	// The heavy straddle at 50000 expires worthless only at 50000.
	assert.Equal(t, 50000.0, result.MaxPainStrike)
	assert.LessOrEqual(t, len(result.TopLow), models.MaxPainCurve)

	// TopLow is sorted by ascending pain.
	for i := 1; i < len(result.TopLow); i++ {
		assert.LessOrEqual(t, result.TopLow[i-1].Pain, result.TopLow[i].Pain)
	}
}

func TestMaxPainEmptyChain(t *testing.T) {
	chain := &models.MChainSnapshot{Spot: 50000}
	e := NewEngine(1.0)
	result := e.MaxPain(chain)
	assert.Equal(t, 50000.0, result.MaxPainStrike, "falls back to spot")
	assert.Empty(t, result.Curve)
}
