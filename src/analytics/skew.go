package analytics

import (
	"math"
	"sort"

	"deribit-gateway/src/models"
)

// -----------------------------------------------------------------------------
// Skew metrics
// -----------------------------------------------------------------------------

const (
	skewDirectionThreshold = 0.005
	skewTrendThreshold     = 0.01
)

// TenorSkew is one expiry's 25-delta skew observation.
type TenorSkew struct {
	Days   int
	Expiry string
	AtmIV  *float64
	RR25d  *float64
	BF25d  *float64
}

// RiskReversal is call IV minus put IV at matched 25-delta strikes.
// Positive means calls are richer (upside demand).
func RiskReversal(callIV, putIV *float64) *float64 {
	if callIV == nil || putIV == nil {
		return nil
	}
	v := *callIV - *putIV
	return &v
}

// Butterfly is the wing average minus the ATM level. Positive means the
// wings price fatter tails.
func Butterfly(callIV, putIV, atmIV *float64) *float64 {
	if callIV == nil || putIV == nil || atmIV == nil {
		return nil
	}
	v := (*callIV+*putIV)/2 - *atmIV
	return &v
}

// SkewDirection classifies a risk reversal as bullish, bearish or neutral.
func SkewDirection(rr25d *float64) *string {
	if rr25d == nil {
		return nil
	}
	var dir string
	switch {
	case *rr25d > skewDirectionThreshold:
		dir = "bullish"
	case *rr25d < -skewDirectionThreshold:
		dir = "bearish"
	default:
		dir = "neutral"
	}
	return &dir
}

// SkewTrend compares the shortest and longest tenor |RR|: steepening means
// the short end is the more extreme one.
func SkewTrend(tenors []TenorSkew) *string {
	var valid []TenorSkew
	for _, t := range tenors {
		if t.RR25d != nil {
			valid = append(valid, t)
		}
	}
	if len(valid) < 2 {
		return nil
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Days < valid[j].Days })

	diff := abs(*valid[0].RR25d) - abs(*valid[len(valid)-1].RR25d)
	var trend string
	switch {
	case diff > skewTrendThreshold:
		trend = "steepening"
	case diff < -skewTrendThreshold:
		trend = "flattening"
	default:
		trend = "stable"
	}
	return &trend
}

// Estimate25dStrike approximates the 25-delta strike via
// K ≈ S * exp(±z σ √T) with z the inverse normal CDF of 0.25.
func Estimate25dStrike(spot, atmIV, daysToExpiry float64, isCall bool) float64 {
	if atmIV <= 0 || daysToExpiry <= 0 {
		return spot
	}
	tYears := daysToExpiry / DaysPerYear
	const z = 0.675
	if isCall {
		return spot * math.Exp(z*atmIV*math.Sqrt(tYears))
	}
	return spot * math.Exp(-z*atmIV*math.Sqrt(tYears))
}

// -----------------------------------------------------------------------------
// Strike selection over a chain snapshot
// -----------------------------------------------------------------------------

// FindATMQuote returns the quote of the given type closest to spot.
func FindATMQuote(chain *models.MChainSnapshot, optionType string) *models.MStrikeQuote {
	var best *models.MStrikeQuote
	for i := range chain.Strikes {
		q := &chain.Strikes[i]
		if q.Type != optionType {
			continue
		}
		if best == nil || abs(q.Strike-chain.Spot) < abs(best.Strike-chain.Spot) {
			best = q
		}
	}
	return best
}

// FindDeltaQuote returns the quote of the given type whose |delta| is
// closest to the target.
func FindDeltaQuote(chain *models.MChainSnapshot, targetDelta float64, optionType string) *models.MStrikeQuote {
	var best *models.MStrikeQuote
	for i := range chain.Strikes {
		q := &chain.Strikes[i]
		if q.Type != optionType || q.Delta == nil {
			continue
		}
		if best == nil || abs(abs(*q.Delta)-targetDelta) < abs(abs(*best.Delta)-targetDelta) {
			best = q
		}
	}
	return best
}

// FindClosestStrikeQuote returns the quote of the given type nearest to the
// target strike.
func FindClosestStrikeQuote(chain *models.MChainSnapshot, target float64, optionType string) *models.MStrikeQuote {
	var best *models.MStrikeQuote
	for i := range chain.Strikes {
		q := &chain.Strikes[i]
		if q.Type != optionType {
			continue
		}
		if best == nil || abs(q.Strike-target) < abs(best.Strike-target) {
			best = q
		}
	}
	return best
}
