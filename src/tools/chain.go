package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"deribit-gateway/src/analytics"
	"deribit-gateway/src/helpers"
	"deribit-gateway/src/models"
)

// -----------------------------------------------------------------------------
// Tool: get_option_chain
// -----------------------------------------------------------------------------

type optionChainInput struct {
	Currency string `json:"currency"`
	Expiry   string `json:"expiry"`
}

func newOptionChainTool(deps *Deps) Tool {
	return NewTool("get_option_chain",
		"Option chain for one expiry: IV, greeks, OI per strike around ATM.",
		objectSchema(map[string]interface{}{
			"currency": enumProp("Currency", "BTC", "ETH"),
			"expiry":   prop("string", "Expiry label, e.g. 27SEP26"),
		}, "currency", "expiry"),
		func(ctx context.Context, in optionChainInput) (interface{}, error) {
			ccy, err := normalizeCurrency(in.Currency)
			if err != nil {
				return nil, &ErrInvalidArgs{Cause: err}
			}
			if in.Expiry == "" {
				return nil, &ErrInvalidArgs{Cause: fmt.Errorf("expiry is required")}
			}

			chain, envelope := fetchChainByLabel(ctx, deps, ccy, in.Expiry)
			if envelope != nil {
				return envelope, nil
			}

			var notes []string
			if chain.IVPctConverted {
				notes = append(notes, "iv_pct_converted")
			}
			now := nowMs()
			daysToExpiry := analytics.DaysToExpiry(chain.ExpiryTs, now)

			// Distinct strikes sorted ascending.
			seen := make(map[float64]bool)
			var strikes []float64
			for _, q := range chain.Strikes {
				if !seen[q.Strike] {
					seen[q.Strike] = true
					strikes = append(strikes, q.Strike)
				}
			}
			sort.Float64s(strikes)

			// ATM strike and the window of 10 strikes either side.
			var atmStrike *float64
			atmIdx := len(strikes) / 2
			for i, s := range strikes {
				if atmStrike == nil || abs(s-chain.Spot) < abs(*atmStrike-chain.Spot) {
					v := s
					atmStrike = &v
					atmIdx = i
				}
			}
			startIdx := atmIdx - 10
			if startIdx < 0 {
				startIdx = 0
			}
			endIdx := atmIdx + 11
			if endIdx > len(strikes) {
				endIdx = len(strikes)
			}
			selected := make(map[float64]bool)
			for _, s := range strikes[startIdx:endIdx] {
				selected[s] = true
			}
			if len(strikes) > 21 {
				notes = append(notes, fmt.Sprintf("strikes_limited:%d_of_%d", len(selected), len(strikes)))
			}

			var out []models.MOptionStrikeData
			var totalOI, totalVol, ivSum float64
			ivCount := 0
			for _, q := range chain.Strikes {
				if !selected[q.Strike] {
					continue
				}
				out = append(out, models.MOptionStrikeData{
					Strike: q.Strike,
					Type:   q.Type,
					MarkIV: helpers.RoundPtr(q.MarkIV, 4),
					Delta:  helpers.RoundPtr(q.Delta, 4),
					Gamma:  helpers.RoundPtr(q.Gamma, 6),
					Vega:   helpers.RoundPtr(q.Vega, 4),
					OI:     helpers.RoundPtr(q.OI, 2),
					Vol:    helpers.RoundPtr(q.Vol24h, 2),
				})
				if q.OI != nil {
					totalOI += *q.OI
				}
				if q.Vol24h != nil {
					totalVol += *q.Vol24h
				}
				if q.MarkIV != nil {
					ivSum += *q.MarkIV
					ivCount++
				}
			}

			summary := map[string]float64{
				"total_oi":     helpers.Round(totalOI, 2),
				"total_volume": helpers.Round(totalVol, 2),
			}
			if ivCount > 0 {
				summary["avg_iv"] = helpers.Round(ivSum/float64(ivCount), 4)
			}

			return &models.MOptionChainResponse{
				Ccy:          ccy,
				Expiry:       chain.Expiry,
				ExpiryTs:     chain.ExpiryTs,
				Spot:         helpers.Round(chain.Spot, 2),
				AtmStrike:    atmStrike,
				DaysToExpiry: helpers.Round(daysToExpiry, 2),
				Strikes:      out,
				Summary:      summary,
				Notes:        capNotes(notes),
			}, nil
		})
}

// fetchChainByLabel resolves an expiry label and assembles its snapshot,
// returning an error envelope instead of a snapshot when resolution fails.
func fetchChainByLabel(ctx context.Context, deps *Deps, ccy, label string) (*models.MChainSnapshot, *models.MErrorResponse) {
	expiryTs, err := resolveExpiry(ctx, deps.Client, ccy, label)
	if err != nil {
		return nil, ErrorEnvelope(err, []string{"currency:" + ccy, "expiry:" + label})
	}
	if expiryTs == 0 {
		return nil, &models.MErrorResponse{
			Error:     true,
			ErrorCode: 404,
			Message:   fmt.Sprintf("No options found for expiry: %s", label),
			Notes:     []string{"currency:" + ccy, "expiry:" + strings.ToUpper(label)},
		}
	}

	chain, err := deps.Client.FetchChainSnapshot(ctx, ccy, expiryTs)
	if err != nil {
		return nil, ErrorEnvelope(err, []string{"currency:" + ccy, "expiry:" + label})
	}
	return chain, nil
}

// -----------------------------------------------------------------------------
// Tool: get_open_interest_by_strike
// -----------------------------------------------------------------------------

type oiByStrikeInput struct {
	Currency string `json:"currency"`
	Expiry   string `json:"expiry"`
}

func newOpenInterestByStrikeTool(deps *Deps) Tool {
	return NewTool("get_open_interest_by_strike",
		"OI distribution per strike with put/call ratios and peak range.",
		objectSchema(map[string]interface{}{
			"currency": enumProp("Currency", "BTC", "ETH"),
			"expiry":   prop("string", "Expiry label, e.g. 27SEP26"),
		}, "currency", "expiry"),
		func(ctx context.Context, in oiByStrikeInput) (interface{}, error) {
			ccy, err := normalizeCurrency(in.Currency)
			if err != nil {
				return nil, &ErrInvalidArgs{Cause: err}
			}
			if in.Expiry == "" {
				return nil, &ErrInvalidArgs{Cause: fmt.Errorf("expiry is required")}
			}

			chain, envelope := fetchChainByLabel(ctx, deps, ccy, in.Expiry)
			if envelope != nil {
				return envelope, nil
			}

			oi := deps.Engine.AggregateOI(chain)

			var totalCall, totalPut float64
			for _, s := range oi {
				totalCall += s.CallOI
				totalPut += s.PutOI
			}
			var pcrTotal *float64
			if totalCall > 0 {
				v := helpers.Round(totalPut/totalCall, 3)
				pcrTotal = &v
			}

			top := toStrikeOIData(analytics.TopOIStrikes(oi, models.MaxTopStrikes))

			var peak *models.MOIPeak
			if pr := analytics.OIPeakRange(oi, 0.8); pr != nil {
				var totalAll, inRange float64
				for _, s := range oi {
					totalAll += s.TotalOI
					if s.Strike >= pr.Low && s.Strike <= pr.High {
						inRange += s.TotalOI
					}
				}
				concentration := 0.0
				if totalAll > 0 {
					concentration = inRange / totalAll
				}
				peak = &models.MOIPeak{
					Low:           pr.Low,
					High:          pr.High,
					Concentration: helpers.Round(concentration, 3),
				}
			}

			// Keep the strikes nearest spot, re-sorted ascending.
			sort.Slice(oi, func(i, j int) bool {
				return abs(oi[i].Strike-chain.Spot) < abs(oi[j].Strike-chain.Spot)
			})
			if len(oi) > models.MaxOIStrikes {
				oi = oi[:models.MaxOIStrikes]
			}
			sort.Slice(oi, func(i, j int) bool { return oi[i].Strike < oi[j].Strike })

			return &models.MOpenInterestByStrikeResponse{
				Ccy:         ccy,
				Expiry:      chain.Expiry,
				Spot:        helpers.Round(chain.Spot, 2),
				TotalCallOI: helpers.Round(totalCall, 2),
				TotalPutOI:  helpers.Round(totalPut, 2),
				PCRTotal:    pcrTotal,
				OIByStrike:  toStrikeOIData(oi),
				TopStrikes:  top,
				PeakRange:   peak,
				Notes:       []string{},
			}, nil
		})
}

func toStrikeOIData(oi []analytics.StrikeOI) []models.MStrikeOI {
	out := make([]models.MStrikeOI, 0, len(oi))
	for _, s := range oi {
		entry := models.MStrikeOI{
			Strike:  s.Strike,
			CallOI:  helpers.Round(s.CallOI, 2),
			PutOI:   helpers.Round(s.PutOI, 2),
			TotalOI: helpers.Round(s.TotalOI, 2),
		}
		if s.PCR != nil {
			entry.PCR = helpers.RoundPtr(s.PCR, 3)
		}
		out = append(out, entry)
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
