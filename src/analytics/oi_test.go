package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deribit-gateway/src/models"
)

func TestAggregateOI(t *testing.T) {
	chain := &models.MChainSnapshot{
		Spot: 50000,
		Strikes: []models.MStrikeQuote{
			quote(50000, "call", 100),
			quote(50000, "put", 200),
			quote(55000, "call", 50),
		},
	}

	e := NewEngine(1.0)
	oi := e.AggregateOI(chain)

	require.Len(t, oi, 2)
	assert.Equal(t, 50000.0, oi[0].Strike)
	assert.Equal(t, 100.0, oi[0].CallOI)
	assert.Equal(t, 200.0, oi[0].PutOI)
	assert.Equal(t, 300.0, oi[0].TotalOI)
	require.NotNil(t, oi[0].PCR)
	assert.InDelta(t, 2.0, *oi[0].PCR, 1e-9)

	// No puts at 55000: PCR defined, zero.
	require.NotNil(t, oi[1].PCR)
	assert.Zero(t, *oi[1].PCR)
}

func TestTopOIStrikes(t *testing.T) {
	oi := []StrikeOI{
		{Strike: 40000, TotalOI: 10},
		{Strike: 50000, TotalOI: 300},
		{Strike: 60000, TotalOI: 100},
	}

	top := TopOIStrikes(oi, 2)
	require.Len(t, top, 2)
	assert.Equal(t, 50000.0, top[0].Strike)
	assert.Equal(t, 60000.0, top[1].Strike)
}

func TestOIPeakRange(t *testing.T) {
	oi := []StrikeOI{
		{Strike: 40000, TotalOI: 5},
		{Strike: 50000, TotalOI: 80},
		{Strike: 55000, TotalOI: 10},
		{Strike: 60000, TotalOI: 5},
	}

	peak := OIPeakRange(oi, 0.8)
	require.NotNil(t, peak)
	// The single 80% strike satisfies the percentile on its own.
	assert.Equal(t, 50000.0, peak.Low)
	assert.Equal(t, 50000.0, peak.High)
	assert.GreaterOrEqual(t, peak.Concentration, 0.8)

	assert.Nil(t, OIPeakRange(nil, 0.8))
	assert.Nil(t, OIPeakRange([]StrikeOI{{Strike: 1, TotalOI: 0}}, 0.8))
}
