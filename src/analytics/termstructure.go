package analytics

import "sort"

// -----------------------------------------------------------------------------
// IV term structure
// -----------------------------------------------------------------------------

// TermPoint is one expiry's ATM vol observation.
type TermPoint struct {
	Days   int
	Expiry string
	AtmIV  *float64
}

// TermSlope computes the IV change per 30 days between the points nearest
// to startDays and endDays. A point further than half the tenor away is
// not accepted as a match.
func TermSlope(points []TermPoint, startDays, endDays int) *float64 {
	var start, end *TermPoint
	for i := range points {
		p := &points[i]
		if p.AtmIV == nil {
			continue
		}
		if (start == nil || absInt(p.Days-startDays) < absInt(start.Days-startDays)) &&
			float64(absInt(p.Days-startDays)) < float64(startDays)*0.5 {
			start = p
		}
		if (end == nil || absInt(p.Days-endDays) < absInt(end.Days-endDays)) &&
			float64(absInt(p.Days-endDays)) < float64(endDays)*0.5 {
			end = p
		}
	}
	if start == nil || end == nil || start.Days == end.Days {
		return nil
	}

	slope := (*end.AtmIV - *start.AtmIV) / float64(end.Days-start.Days) * 30
	return &slope
}

// TermShape classifies the curve by comparing the shortest and longest
// tenors: contango when long IV exceeds short, flat within the threshold.
func TermShape(points []TermPoint, flatThreshold float64) string {
	var valid []TermPoint
	for _, p := range points {
		if p.AtmIV != nil {
			valid = append(valid, p)
		}
	}
	if len(valid) < 2 {
		return "contango"
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].Days < valid[j].Days })

	diff := *valid[len(valid)-1].AtmIV - *valid[0].AtmIV
	switch {
	case diff > flatThreshold:
		return "contango"
	case diff < -flatThreshold:
		return "backwardation"
	default:
		return "flat"
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
