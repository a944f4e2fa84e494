package analytics

import (
	"math"
	"sort"
)

// -----------------------------------------------------------------------------
// Pure reductions over option chain snapshots
// -----------------------------------------------------------------------------

const (
	MinutesPerYear = 525600 // 365.25 * 24 * 60
	DaysPerYear    = 365.25
)

// Engine holds the few tunables the reductions need. All methods are pure:
// they read the snapshot, never mutate it, and never touch the network.
type Engine struct {
	contractSize float64
}

// NewEngine creates an engine with the given contract multiplier.
func NewEngine(contractSize float64) *Engine {
	if contractSize <= 0 {
		contractSize = 1.0
	}
	return &Engine{contractSize: contractSize}
}

// -----------------------------------------------------------------------------
// Shared numeric helpers
// -----------------------------------------------------------------------------

// DaysToExpiry converts a millisecond timestamp pair to fractional days.
func DaysToExpiry(expiryTsMs, nowMs int64) float64 {
	return float64(expiryTsMs-nowMs) / (1000 * 60 * 60 * 24)
}

// IVToHorizon scales an annualized IV to a minute horizon.
func IVToHorizon(ivAnnualized float64, horizonMinutes int) float64 {
	if horizonMinutes <= 0 {
		return 0
	}
	tYears := float64(horizonMinutes) / MinutesPerYear
	return ivAnnualized * math.Sqrt(tYears)
}

// DvolToDecimal converts a DVOL index value (e.g. 65) to decimal vol.
func DvolToDecimal(dvol float64) float64 {
	return dvol / 100
}

// Imbalance computes order book imbalance in [-1, 1], nil when empty.
func Imbalance(bidDepth, askDepth float64) *float64 {
	total := bidDepth + askDepth
	if total == 0 {
		return nil
	}
	v := (bidDepth - askDepth) / total
	return &v
}

// SpreadBps computes the bid/ask spread in basis points of mid.
func SpreadBps(bid, ask float64) *float64 {
	if bid <= 0 || ask <= 0 {
		return nil
	}
	mid := (bid + ask) / 2
	if mid == 0 {
		return nil
	}
	v := (ask - bid) / mid * 10000
	return &v
}

// InterpolateIV linearly interpolates IV to a target tenor in days.
// Outside the observed range the nearest point is used.
func InterpolateIV(points []IVPoint, targetDays float64) *float64 {
	if len(points) == 0 {
		return nil
	}
	if len(points) == 1 {
		v := points[0].IV
		return &v
	}

	sorted := make([]IVPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Days < sorted[j].Days })

	for i := 0; i < len(sorted)-1; i++ {
		d1, iv1 := sorted[i].Days, sorted[i].IV
		d2, iv2 := sorted[i+1].Days, sorted[i+1].IV
		if d1 <= targetDays && targetDays <= d2 {
			weight := 0.5
			if d2 != d1 {
				weight = (targetDays - d1) / (d2 - d1)
			}
			v := iv1 + weight*(iv2-iv1)
			return &v
		}
	}

	if targetDays < sorted[0].Days {
		v := sorted[0].IV
		return &v
	}
	v := sorted[len(sorted)-1].IV
	return &v
}

// IVPoint is one (days, iv) observation on the vol curve.
type IVPoint struct {
	Days float64
	IV   float64
}
