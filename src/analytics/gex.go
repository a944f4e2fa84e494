package analytics

import (
	"sort"

	"deribit-gateway/src/models"
)

// -----------------------------------------------------------------------------
// Gamma exposure
// -----------------------------------------------------------------------------

// StrikeGEX holds raw (unscaled) gamma exposure per strike, in dollars per
// 1% spot move.
type StrikeGEX struct {
	Strike  float64
	CallGEX float64
	PutGEX  float64
	NetGEX  float64
}

// GEXProfile is the aggregate gamma exposure picture across one or more
// expiries.
type GEXProfile struct {
	ByStrike  []StrikeGEX
	NetGEX    float64
	GammaFlip *float64
	MaxPos    *float64
	MaxNeg    *float64
	Notes     []string
}

// SingleGEX computes the dealer-signed exposure of one option:
// gamma * OI * spot^2 * contractSize * 0.01, negated for calls (dealers
// assumed short calls, long puts).
func (e *Engine) SingleGEX(gamma, openInterest, spot float64, optionType string) float64 {
	if gamma == 0 || openInterest == 0 {
		return 0
	}
	raw := gamma * openInterest * spot * spot * e.contractSize * 0.01
	if optionType == "call" {
		return -raw
	}
	return raw
}

// GammaExposure reduces one or more chain snapshots to a GEX profile.
// The spot of the first snapshot anchors the calculation.
func (e *Engine) GammaExposure(chains ...*models.MChainSnapshot) GEXProfile {
	var profile GEXProfile
	if len(chains) == 0 {
		profile.Notes = append(profile.Notes, "no_chains")
		return profile
	}
	spot := chains[0].Spot

	byStrike := make(map[float64]*StrikeGEX)
	for _, chain := range chains {
		for _, q := range chain.Strikes {
			if q.Gamma == nil || q.OI == nil {
				continue
			}
			entry := byStrike[q.Strike]
			if entry == nil {
				entry = &StrikeGEX{Strike: q.Strike}
				byStrike[q.Strike] = entry
			}
			gex := e.SingleGEX(*q.Gamma, *q.OI, spot, q.Type)
			if q.Type == "call" {
				entry.CallGEX += gex
			} else {
				entry.PutGEX += gex
			}
		}
	}

	for _, entry := range byStrike {
		entry.NetGEX = entry.CallGEX + entry.PutGEX
		profile.ByStrike = append(profile.ByStrike, *entry)
	}
	sort.Slice(profile.ByStrike, func(i, j int) bool {
		return profile.ByStrike[i].Strike < profile.ByStrike[j].Strike
	})

	for _, g := range profile.ByStrike {
		profile.NetGEX += g.NetGEX
	}

	// Gamma flip: first sign change of per-strike net GEX, linearly
	// interpolated between the bracketing strikes.
	for i := 0; i < len(profile.ByStrike)-1; i++ {
		cur := profile.ByStrike[i]
		next := profile.ByStrike[i+1]
		if cur.NetGEX*next.NetGEX < 0 && next.NetGEX != cur.NetGEX {
			ratio := abs(cur.NetGEX) / abs(next.NetGEX-cur.NetGEX)
			flip := cur.Strike + ratio*(next.Strike-cur.Strike)
			profile.GammaFlip = &flip
			break
		}
	}

	var maxPosValue, maxNegValue float64
	for _, g := range profile.ByStrike {
		if g.NetGEX > maxPosValue {
			maxPosValue = g.NetGEX
			strike := g.Strike
			profile.MaxPos = &strike
		}
		if g.NetGEX < maxNegValue {
			maxNegValue = g.NetGEX
			strike := g.Strike
			profile.MaxNeg = &strike
		}
	}

	if len(profile.ByStrike) == 0 {
		profile.Notes = append(profile.Notes, "no_valid_gamma_data")
	}
	return profile
}

// TopPositive returns up to n strikes with the largest positive net GEX.
func (p GEXProfile) TopPositive(n int) []StrikeGEX {
	var pos []StrikeGEX
	for _, g := range p.ByStrike {
		if g.NetGEX > 0 {
			pos = append(pos, g)
		}
	}
	sort.Slice(pos, func(i, j int) bool { return pos[i].NetGEX > pos[j].NetGEX })
	if len(pos) > n {
		pos = pos[:n]
	}
	return pos
}

// TopNegative returns up to n strikes with the most negative net GEX.
func (p GEXProfile) TopNegative(n int) []StrikeGEX {
	var neg []StrikeGEX
	for _, g := range p.ByStrike {
		if g.NetGEX < 0 {
			neg = append(neg, g)
		}
	}
	sort.Slice(neg, func(i, j int) bool { return neg[i].NetGEX < neg[j].NetGEX })
	if len(neg) > n {
		neg = neg[:n]
	}
	return neg
}

// NearestStrikes keeps the n strikes closest to spot, re-sorted ascending.
func (p GEXProfile) NearestStrikes(spot float64, n int) []StrikeGEX {
	out := make([]StrikeGEX, len(p.ByStrike))
	copy(out, p.ByStrike)
	sort.Slice(out, func(i, j int) bool {
		return abs(out[i].Strike-spot) < abs(out[j].Strike-spot)
	})
	if len(out) > n {
		out = out[:n]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
