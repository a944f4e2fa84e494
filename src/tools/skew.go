package tools

import (
	"context"
	"sort"

	"deribit-gateway/src/analytics"
	"deribit-gateway/src/helpers"
	"deribit-gateway/src/models"
)

// -----------------------------------------------------------------------------
// Tool: get_iv_term_structure
// -----------------------------------------------------------------------------

type termStructureInput struct {
	Currency   string `json:"currency"`
	TenorsDays []int  `json:"tenors_days"`
}

func newIVTermStructureTool(deps *Deps) Tool {
	return NewTool("get_iv_term_structure",
		"ATM IV across tenors with slopes and curve shape.",
		objectSchema(map[string]interface{}{
			"currency":    enumProp("Currency", "BTC", "ETH"),
			"tenors_days": map[string]interface{}{"type": "array", "items": prop("integer", "Tenor in days"), "description": "Target tenors, default [7,14,30,60,90]"},
		}, "currency"),
		func(ctx context.Context, in termStructureInput) (interface{}, error) {
			ccy, err := normalizeCurrency(in.Currency)
			if err != nil {
				return nil, &ErrInvalidArgs{Cause: err}
			}
			tenors := in.TenorsDays
			if len(tenors) == 0 {
				tenors = []int{7, 14, 30, 60, 90}
			}
			if len(tenors) > models.MaxTenors {
				tenors = tenors[:models.MaxTenors]
			}

			var notes []string
			now := nowMs()

			spot, err := deps.Client.GetIndexPrice(ctx, ccy)
			if err != nil || spot <= 0 {
				return &models.MErrorResponse{
					Error:     true,
					ErrorCode: -1,
					Message:   "Could not fetch spot price",
					Notes:     []string{"spot_unavailable"},
				}, nil
			}

			var dvolCurrent *float64
			if dvol, derr := fetchDvol(ctx, deps, ccy); derr == nil && dvol.Dvol > 0 {
				dvolCurrent = &dvol.Dvol
			}

			instruments, err := deps.Client.GetInstruments(ctx, ccy, "option")
			if err != nil {
				return ErrorEnvelope(err, []string{"currency:" + ccy}), nil
			}
			groups := groupByExpiry(instruments, now)

			var points []analytics.TermPoint
			for _, targetDays := range tenors {
				g := nearestExpiryToTenor(groups, targetDays, now)
				if g == nil {
					continue
				}
				atmIV := fetchATMCallIV(ctx, deps, ccy, g, spot)
				if atmIV == nil {
					notes = append(notes, "atm_ticker_failed:"+g.Label)
					continue
				}
				points = append(points, analytics.TermPoint{
					Days:   int(analytics.DaysToExpiry(g.Ts, now)),
					Expiry: g.Label,
					AtmIV:  atmIV,
				})
			}

			slopeShort := analytics.TermSlope(points, 7, 30)
			slopeLong := analytics.TermSlope(points, 30, 90)
			shape := analytics.TermShape(points, 0.02)

			sort.Slice(points, func(i, j int) bool { return points[i].Days < points[j].Days })
			out := make([]models.MTermPoint, 0, len(points))
			for _, p := range points {
				entry := models.MTermPoint{Days: p.Days, Expiry: p.Expiry}
				if p.AtmIV != nil {
					entry.AtmIV = helpers.Float64Ptr(helpers.Round(*p.AtmIV, 4))
					entry.AtmIVPct = helpers.Float64Ptr(helpers.Round(*p.AtmIV*100, 2))
				}
				out = append(out, entry)
			}

			// Slopes reported as IV percentage points per 30 days.
			var slope7d30d, slope30d90d *float64
			if slopeShort != nil {
				slope7d30d = helpers.Float64Ptr(helpers.Round(*slopeShort*100, 4))
			}
			if slopeLong != nil {
				slope30d90d = helpers.Float64Ptr(helpers.Round(*slopeLong*100, 4))
			}

			return &models.MIVTermStructureResponse{
				Ccy:           ccy,
				Spot:          helpers.Round(spot, 2),
				TermStructure: out,
				Slope7d30d:    slope7d30d,
				Slope30d90d:   slope30d90d,
				Shape:         shape,
				DvolCurrent:   dvolCurrent,
				Notes:         capNotes(notes),
			}, nil
		})
}

// -----------------------------------------------------------------------------
// Tool: get_skew_metrics
// -----------------------------------------------------------------------------

type skewMetricsInput struct {
	Currency   string `json:"currency"`
	TenorsDays []int  `json:"tenors_days"`
}

func newSkewMetricsTool(deps *Deps) Tool {
	return NewTool("get_skew_metrics",
		"25-delta risk reversal and butterfly per tenor, with trend.",
		objectSchema(map[string]interface{}{
			"currency":    enumProp("Currency", "BTC", "ETH"),
			"tenors_days": map[string]interface{}{"type": "array", "items": prop("integer", "Tenor in days"), "description": "Target tenors, default [7,30]"},
		}, "currency"),
		func(ctx context.Context, in skewMetricsInput) (interface{}, error) {
			ccy, err := normalizeCurrency(in.Currency)
			if err != nil {
				return nil, &ErrInvalidArgs{Cause: err}
			}
			tenors := in.TenorsDays
			if len(tenors) == 0 {
				tenors = []int{7, 30}
			}
			if len(tenors) > models.MaxTenors {
				tenors = tenors[:models.MaxTenors]
			}

			now := nowMs()
			spot, err := deps.Client.GetIndexPrice(ctx, ccy)
			if err != nil || spot <= 0 {
				return &models.MErrorResponse{
					Error:     true,
					ErrorCode: -1,
					Message:   "Could not fetch spot price",
					Notes:     []string{"spot_unavailable"},
				}, nil
			}

			instruments, err := deps.Client.GetInstruments(ctx, ccy, "option")
			if err != nil {
				return ErrorEnvelope(err, []string{"currency:" + ccy}), nil
			}
			groups := groupByExpiry(instruments, now)

			var tenorSkews []analytics.TenorSkew
			var out []models.MTenorSkew
			var directions []string

			for _, targetDays := range tenors {
				g := nearestExpiryToTenor(groups, targetDays, now)
				if g == nil {
					continue
				}
				actualDays := analytics.DaysToExpiry(g.Ts, now)

				atmIV := fetchATMCallIV(ctx, deps, ccy, g, spot)
				if atmIV == nil {
					continue
				}

				callIV, putIV := fetch25dWingIVs(ctx, deps, ccy, g, spot, *atmIV, actualDays)
				rr25d := analytics.RiskReversal(callIV, putIV)
				bf25d := analytics.Butterfly(callIV, putIV, atmIV)
				dir := analytics.SkewDirection(rr25d)
				if dir != nil {
					directions = append(directions, *dir)
				}

				tenorSkews = append(tenorSkews, analytics.TenorSkew{
					Days:   int(actualDays),
					Expiry: g.Label,
					AtmIV:  atmIV,
					RR25d:  rr25d,
					BF25d:  bf25d,
				})

				entry := models.MTenorSkew{
					Days:    int(actualDays),
					Expiry:  g.Label,
					AtmIV:   helpers.RoundPtr(atmIV, 4),
					RR25d:   helpers.RoundPtr(rr25d, 4),
					BF25d:   helpers.RoundPtr(bf25d, 4),
					SkewDir: dir,
				}
				if rr25d != nil {
					entry.RR25dPct = helpers.Float64Ptr(helpers.Round(*rr25d*100, 2))
				}
				if bf25d != nil {
					entry.BF25dPct = helpers.Float64Ptr(helpers.Round(*bf25d*100, 2))
				}
				out = append(out, entry)
			}

			trend := analytics.SkewTrend(tenorSkews)
			sort.Slice(out, func(i, j int) bool { return out[i].Days < out[j].Days })

			summary := skewSummary(tenorSkews, directions, len(out))

			return &models.MSkewMetricsResponse{
				Ccy:         ccy,
				Spot:        helpers.Round(spot, 2),
				SkewByTenor: out,
				SkewTrend:   trend,
				Summary:     summary,
				Notes:       []string{},
			}, nil
		})
}

func skewSummary(tenors []analytics.TenorSkew, directions []string, analyzed int) map[string]interface{} {
	var rrSum, bfSum float64
	rrCount, bfCount := 0, 0
	for _, t := range tenors {
		if t.RR25d != nil {
			rrSum += *t.RR25d
			rrCount++
		}
		if t.BF25d != nil {
			bfSum += *t.BF25d
			bfCount++
		}
	}

	summary := map[string]interface{}{
		"tenors_analyzed": analyzed,
	}
	if rrCount > 0 {
		summary["avg_rr25d_pct"] = helpers.Round(rrSum/float64(rrCount)*100, 2)
	}
	if bfCount > 0 {
		summary["avg_bf25d_pct"] = helpers.Round(bfSum/float64(bfCount)*100, 2)
	}

	if len(directions) > 0 {
		bullish, bearish := 0, 0
		for _, d := range directions {
			switch d {
			case "bullish":
				bullish++
			case "bearish":
				bearish++
			}
		}
		dominant := "neutral"
		if bullish > bearish {
			dominant = "bullish"
		} else if bearish > bullish {
			dominant = "bearish"
		}
		summary["dominant_direction"] = dominant
	}
	return summary
}
