package analytics

import "math"

// -----------------------------------------------------------------------------
// Expected move
// -----------------------------------------------------------------------------

// ExpectedMoveResult is the 1-sigma band over a minute horizon.
type ExpectedMoveResult struct {
	Spot       float64
	IVUsed     float64
	IVSource   string
	HorizonMin int
	MovePts    float64
	MoveBps    float64
	Up1s       float64
	Down1s     float64
	Confidence float64
}

// ExpectedMove computes spot * IV * sqrt(T) with T in years over the
// minute horizon. Degenerate inputs yield a zero-width band with zero
// confidence.
func ExpectedMove(spot, ivAnnualized float64, horizonMinutes int, ivSource string, confidence float64) ExpectedMoveResult {
	if spot <= 0 || ivAnnualized <= 0 || horizonMinutes <= 0 {
		return ExpectedMoveResult{
			Spot:       spot,
			IVUsed:     ivAnnualized,
			IVSource:   ivSource,
			HorizonMin: horizonMinutes,
			Up1s:       spot,
			Down1s:     spot,
		}
	}

	tYears := float64(horizonMinutes) / MinutesPerYear
	movePts := spot * ivAnnualized * math.Sqrt(tYears)
	moveBps := movePts / spot * 10000

	return ExpectedMoveResult{
		Spot:       spot,
		IVUsed:     ivAnnualized,
		IVSource:   ivSource,
		HorizonMin: horizonMinutes,
		MovePts:    movePts,
		MoveBps:    moveBps,
		Up1s:       spot + movePts,
		Down1s:     spot - movePts,
		Confidence: confidence,
	}
}
