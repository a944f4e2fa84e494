package analytics

import (
	"sort"

	"deribit-gateway/src/models"
)

// -----------------------------------------------------------------------------
// Max pain
// -----------------------------------------------------------------------------

// PainPoint is the settlement loss to option holders at one candidate strike.
type PainPoint struct {
	Strike float64
	Pain   float64
}

// MaxPainResult summarizes the pain curve for one expiry.
type MaxPainResult struct {
	MaxPainStrike float64
	PainValue     float64
	Curve         []PainPoint
	TopLow        []PainPoint
	TotalCallOI   float64
	TotalPutOI    float64
}

// PainAtStrike sums intrinsic value times open interest across the chain
// assuming settlement at target.
func (e *Engine) PainAtStrike(chain *models.MChainSnapshot, target float64) float64 {
	var total float64
	for _, q := range chain.Strikes {
		if q.OI == nil || *q.OI == 0 {
			continue
		}
		var intrinsic float64
		if q.Type == "call" {
			intrinsic = max0(target - q.Strike)
		} else {
			intrinsic = max0(q.Strike - target)
		}
		total += intrinsic * *q.OI
	}
	return total
}

// MaxPain evaluates the pain curve over the chain's own strikes and reports
// the minimizer. The strike minimizing holder payout is where the most
// options expire worthless.
func (e *Engine) MaxPain(chain *models.MChainSnapshot) MaxPainResult {
	seen := make(map[float64]bool)
	var strikes []float64
	for _, q := range chain.Strikes {
		if !seen[q.Strike] {
			seen[q.Strike] = true
			strikes = append(strikes, q.Strike)
		}
	}
	sort.Float64s(strikes)

	result := MaxPainResult{MaxPainStrike: chain.Spot}
	if len(strikes) == 0 {
		return result
	}

	for _, strike := range strikes {
		result.Curve = append(result.Curve, PainPoint{
			Strike: strike,
			Pain:   e.PainAtStrike(chain, strike),
		})
	}

	minPain := result.Curve[0].Pain
	result.MaxPainStrike = result.Curve[0].Strike
	for _, p := range result.Curve[1:] {
		if p.Pain < minPain {
			minPain = p.Pain
			result.MaxPainStrike = p.Strike
		}
	}
	result.PainValue = minPain

	byPain := make([]PainPoint, len(result.Curve))
	copy(byPain, result.Curve)
	sort.Slice(byPain, func(i, j int) bool { return byPain[i].Pain < byPain[j].Pain })
	n := models.MaxPainCurve
	if len(byPain) < n {
		n = len(byPain)
	}
	result.TopLow = byPain[:n]

	for _, q := range chain.Strikes {
		if q.OI == nil {
			continue
		}
		if q.Type == "call" {
			result.TotalCallOI += *q.OI
		} else {
			result.TotalPutOI += *q.OI
		}
	}
	return result
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
