package analytics

import (
	"sort"

	"deribit-gateway/src/models"
)

// -----------------------------------------------------------------------------
// Open interest distribution
// -----------------------------------------------------------------------------

// StrikeOI aggregates call/put open interest at one strike.
type StrikeOI struct {
	Strike  float64
	CallOI  float64
	PutOI   float64
	TotalOI float64
	PCR     *float64
}

// PeakRange is the contiguous strike band holding the top fraction of OI.
type PeakRange struct {
	Low           float64
	High          float64
	Concentration float64
}

// AggregateOI groups the chain's open interest by strike, ascending.
func (e *Engine) AggregateOI(chain *models.MChainSnapshot) []StrikeOI {
	byStrike := make(map[float64]*StrikeOI)
	for _, q := range chain.Strikes {
		if q.OI == nil {
			continue
		}
		entry := byStrike[q.Strike]
		if entry == nil {
			entry = &StrikeOI{Strike: q.Strike}
			byStrike[q.Strike] = entry
		}
		if q.Type == "call" {
			entry.CallOI += *q.OI
		} else {
			entry.PutOI += *q.OI
		}
	}

	var out []StrikeOI
	for _, entry := range byStrike {
		entry.TotalOI = entry.CallOI + entry.PutOI
		if entry.CallOI > 0 {
			pcr := entry.PutOI / entry.CallOI
			entry.PCR = &pcr
		}
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

// TopOIStrikes returns the n strikes with the highest total OI.
func TopOIStrikes(oi []StrikeOI, n int) []StrikeOI {
	out := make([]StrikeOI, len(oi))
	copy(out, oi)
	sort.Slice(out, func(i, j int) bool { return out[i].TotalOI > out[j].TotalOI })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// OIPeakRange finds the strike range accumulating the given fraction of
// total OI, taking strikes in descending OI order.
func OIPeakRange(oi []StrikeOI, percentile float64) *PeakRange {
	if len(oi) == 0 {
		return nil
	}
	var total float64
	for _, d := range oi {
		total += d.TotalOI
	}
	if total == 0 {
		return nil
	}

	sorted := make([]StrikeOI, len(oi))
	copy(sorted, oi)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TotalOI > sorted[j].TotalOI })

	var cumulative float64
	low, high := sorted[0].Strike, sorted[0].Strike
	for _, d := range sorted {
		cumulative += d.TotalOI / total
		if d.Strike < low {
			low = d.Strike
		}
		if d.Strike > high {
			high = d.Strike
		}
		if cumulative >= percentile {
			break
		}
	}
	return &PeakRange{Low: low, High: high, Concentration: cumulative}
}
