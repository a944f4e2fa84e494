package tools

import (
	"context"
	"fmt"
	"math"

	"deribit-gateway/src/analytics"
	"deribit-gateway/src/helpers"
	"deribit-gateway/src/models"
)

// -----------------------------------------------------------------------------
// Tool: dvol_snapshot
// -----------------------------------------------------------------------------

type dvolInput struct {
	Currency string `json:"currency"`
}

// fetchDvol returns the current DVOL value, with 24h change when the candle
// window allows it. The ticker fallback covers venues where the candle
// endpoint is unavailable.
func fetchDvol(ctx context.Context, deps *Deps, ccy string) (*models.MDvolResponse, error) {
	now := nowMs()
	data, err := deps.Client.GetVolatilityIndex(ctx, ccy, now-86400000, now, "3600")
	if err == nil && len(data.Data) > 0 {
		latest := data.Data[len(data.Data)-1]
		dvolNow := latest[4]

		var chg *float64
		if len(data.Data) >= 2 {
			prevClose := data.Data[0][4]
			if prevClose > 0 {
				d := dvolNow - prevClose
				chg = &d
			}
		}
		return &models.MDvolResponse{
			Ccy:        ccy,
			Dvol:       helpers.Round(dvolNow, 2),
			DvolChg24h: helpers.RoundPtr(chg, 2),
			Ts:         now,
			Notes:      []string{},
		}, nil
	}

	// Candle endpoint failed, try the index ticker.
	ticker, terr := deps.Client.GetTicker(ctx, ccy+"_DVOL")
	if terr == nil && ticker.MarkPrice > 0 {
		return &models.MDvolResponse{
			Ccy:   ccy,
			Dvol:  helpers.Round(ticker.MarkPrice, 2),
			Ts:    now,
			Notes: []string{"source:ticker_fallback"},
		}, nil
	}

	if err != nil {
		return nil, err
	}
	return &models.MDvolResponse{
		Ccy:   ccy,
		Ts:    now,
		Notes: []string{"dvol_unavailable", "try_options_surface_for_iv"},
	}, nil
}

func newDvolSnapshotTool(deps *Deps) Tool {
	return NewTool("dvol_snapshot",
		"Volatility index (DVOL) snapshot with 24h change.",
		objectSchema(map[string]interface{}{
			"currency": enumProp("Currency", "BTC", "ETH"),
		}, "currency"),
		func(ctx context.Context, in dvolInput) (interface{}, error) {
			ccy, err := normalizeCurrency(in.Currency)
			if err != nil {
				return nil, &ErrInvalidArgs{Cause: err}
			}
			resp, err := fetchDvol(ctx, deps, ccy)
			if err != nil {
				return ErrorEnvelope(err, []string{"currency:" + ccy, "dvol_fetch_failed"}), nil
			}
			return resp, nil
		})
}

// -----------------------------------------------------------------------------
// Tool: options_surface_snapshot
// -----------------------------------------------------------------------------

type surfaceInput struct {
	Currency  string `json:"currency"`
	TenorDays []int  `json:"tenor_days"`
}

func newSurfaceSnapshotTool(deps *Deps) Tool {
	return NewTool("options_surface_snapshot",
		"Volatility surface: ATM IV, 25d risk reversal and butterfly per tenor.",
		objectSchema(map[string]interface{}{
			"currency":   enumProp("Currency", "BTC", "ETH"),
			"tenor_days": map[string]interface{}{"type": "array", "items": prop("integer", "Tenor in days"), "description": "Target tenors, default [7,14,30,60]"},
		}, "currency"),
		func(ctx context.Context, in surfaceInput) (interface{}, error) {
			ccy, err := normalizeCurrency(in.Currency)
			if err != nil {
				return nil, &ErrInvalidArgs{Cause: err}
			}
			tenors := in.TenorDays
			if len(tenors) == 0 {
				tenors = []int{7, 14, 30, 60}
			}
			if len(tenors) > 4 {
				tenors = tenors[:4]
			}

			var notes []string
			now := nowMs()

			spot, err := deps.Client.GetIndexPrice(ctx, ccy)
			if err != nil || spot <= 0 {
				notes = append(notes, "spot_price_unavailable")
				return &models.MSurfaceResponse{
					Ccy: ccy, Tenors: []models.MTenorIV{}, Ts: now,
					Notes: capNotes(notes),
				}, nil
			}

			instruments, err := deps.Client.GetInstruments(ctx, ccy, "option")
			if err != nil {
				return ErrorEnvelope(err, []string{"currency:" + ccy, "surface_calc_failed"}), nil
			}
			groups := groupByExpiry(instruments, now)

			var result []models.MTenorIV
			matched := 0

			for _, targetDays := range tenors {
				g := nearestExpiryToTenor(groups, targetDays, now)
				if g == nil {
					result = append(result, models.MTenorIV{Days: targetDays})
					continue
				}
				matched++
				actualDays := analytics.DaysToExpiry(g.Ts, now)

				atmIV := fetchATMCallIV(ctx, deps, ccy, g, spot)
				if atmIV == nil {
					notes = append(notes, fmt.Sprintf("atm_ticker_failed:%dd", targetDays))
				}

				var rr25, fly25 *float64
				if atmIV != nil {
					callIV, putIV := fetch25dWingIVs(ctx, deps, ccy, g, spot, *atmIV, actualDays)
					rr25 = analytics.RiskReversal(callIV, putIV)
					fly25 = analytics.Butterfly(callIV, putIV, atmIV)
				}

				result = append(result, models.MTenorIV{
					Days:  int(actualDays),
					AtmIV: helpers.RoundPtr(atmIV, 4),
					RR25:  helpers.RoundPtr(rr25, 4),
					Fly25: helpers.RoundPtr(fly25, 4),
					Fwd:   helpers.Float64Ptr(helpers.Round(spot, 2)),
				})
			}

			confidence := float64(matched) / float64(len(tenors))
			if confidence < 0.5 {
				notes = append(notes, "low_confidence_sparse_data")
			}

			return &models.MSurfaceResponse{
				Ccy:        ccy,
				Spot:       helpers.Round(spot, 2),
				Tenors:     result,
				Confidence: helpers.Round(confidence, 2),
				Ts:         now,
				Notes:      capNotes(notes),
			}, nil
		})
}

// fetchATMCallIV fetches the mark IV of the call closest to spot in the
// expiry group, normalized to decimal form.
func fetchATMCallIV(ctx context.Context, deps *Deps, ccy string, g *expiryGroup, spot float64) *float64 {
	atmStrike := nearestStrike(g, spot)
	if atmStrike == nil {
		return nil
	}
	name := optionName(ccy, g.Label, *atmStrike, "C")
	ticker, err := deps.Client.GetTicker(ctx, name)
	if err != nil || ticker.MarkIV == nil {
		return nil
	}
	iv := *ticker.MarkIV
	if iv > 1 {
		iv = iv / 100
	}
	return &iv
}

// fetch25dWingIVs estimates the 25-delta strikes from the ATM vol, snaps
// them to listed strikes, and fetches both wing IVs.
func fetch25dWingIVs(ctx context.Context, deps *Deps, ccy string, g *expiryGroup, spot, atmIV, actualDays float64) (callIV, putIV *float64) {
	callTarget := analytics.Estimate25dStrike(spot, atmIV, actualDays, true)
	putTarget := analytics.Estimate25dStrike(spot, atmIV, actualDays, false)

	callStrike := nearestStrike(g, callTarget)
	putStrike := nearestStrike(g, putTarget)

	if callStrike != nil {
		name := optionName(ccy, g.Label, *callStrike, "C")
		if ticker, err := deps.Client.GetTicker(ctx, name); err == nil {
			callIV = normalizedIV(ticker.MarkIV)
		}
	}
	if putStrike != nil {
		name := optionName(ccy, g.Label, *putStrike, "P")
		if ticker, err := deps.Client.GetTicker(ctx, name); err == nil {
			putIV = normalizedIV(ticker.MarkIV)
		}
	}
	return callIV, putIV
}

func nearestStrike(g *expiryGroup, target float64) *float64 {
	var best *float64
	for _, inst := range g.Instruments {
		if inst.Strike == nil {
			continue
		}
		if best == nil || math.Abs(*inst.Strike-target) < math.Abs(*best-target) {
			best = inst.Strike
		}
	}
	return best
}

func optionName(ccy, expiry string, strike float64, side string) string {
	return fmt.Sprintf("%s-%s-%d-%s", ccy, expiry, int(strike), side)
}

func normalizedIV(iv *float64) *float64 {
	if iv == nil {
		return nil
	}
	v := *iv
	if v > 1 {
		v = v / 100
	}
	return &v
}

// -----------------------------------------------------------------------------
// Tool: expected_move_iv
// -----------------------------------------------------------------------------

type expectedMoveInput struct {
	Currency       string `json:"currency"`
	HorizonMinutes int    `json:"horizon_minutes"`
	Method         string `json:"method"`
}

func newExpectedMoveTool(deps *Deps) Tool {
	return NewTool("expected_move_iv",
		"One-sigma expected move over a horizon, from DVOL or ATM IV.",
		objectSchema(map[string]interface{}{
			"currency":        enumProp("Currency", "BTC", "ETH"),
			"horizon_minutes": prop("integer", "Horizon in minutes, default 60"),
			"method":          enumProp("IV source", "dvol", "atm_iv"),
		}, "currency"),
		func(ctx context.Context, in expectedMoveInput) (interface{}, error) {
			ccy, err := normalizeCurrency(in.Currency)
			if err != nil {
				return nil, &ErrInvalidArgs{Cause: err}
			}
			horizon := in.HorizonMinutes
			if horizon <= 0 {
				horizon = 60
			}
			method := in.Method
			if method == "" {
				method = "dvol"
			}
			if method != "dvol" && method != "atm_iv" {
				return nil, &ErrInvalidArgs{Cause: fmt.Errorf("method must be dvol or atm_iv")}
			}

			var notes []string
			spot, err := deps.Client.GetIndexPrice(ctx, ccy)
			if err != nil || spot <= 0 {
				notes = append(notes, "spot_unavailable")
				return &models.MExpectedMoveResponse{
					Ccy: ccy, IVSource: method, HorizonMin: horizon,
					Notes: capNotes(notes),
				}, nil
			}

			var ivUsed *float64
			ivSource := method
			confidence := 1.0

			if method == "dvol" {
				dvol, derr := fetchDvol(ctx, deps, ccy)
				if derr == nil && dvol.Dvol > 0 {
					v := analytics.DvolToDecimal(dvol.Dvol)
					ivUsed = &v
					notes = append(notes, fmt.Sprintf("dvol_raw:%.2f", dvol.Dvol))
				} else {
					notes = append(notes, "dvol_unavailable_fallback_atm")
					method = "atm_iv"
					confidence = 0.7
				}
			}

			if method == "atm_iv" || ivUsed == nil {
				ivSource = "atm_iv"
				ivUsed = fetchNearestATMIV(ctx, deps, ccy, spot, &notes)
			}

			if ivUsed == nil || *ivUsed <= 0 {
				notes = append(notes, "iv_unavailable_cannot_calculate")
				return &models.MExpectedMoveResponse{
					Ccy:        ccy,
					Spot:       helpers.Round(spot, 2),
					IVSource:   ivSource,
					HorizonMin: horizon,
					Up1s:       spot,
					Down1s:     spot,
					Notes:      capNotes(notes),
				}, nil
			}

			move := analytics.ExpectedMove(spot, *ivUsed, horizon, ivSource, confidence)
			return &models.MExpectedMoveResponse{
				Ccy:        ccy,
				Spot:       helpers.Round(move.Spot, 2),
				IVUsed:     helpers.Round(move.IVUsed, 4),
				IVSource:   move.IVSource,
				HorizonMin: move.HorizonMin,
				Move1sPts:  helpers.Round(move.MovePts, 2),
				Move1sBps:  helpers.Round(move.MoveBps, 2),
				Up1s:       helpers.Round(move.Up1s, 2),
				Down1s:     helpers.Round(move.Down1s, 2),
				Confidence: helpers.Round(move.Confidence, 2),
				Notes:      capNotes(notes),
			}, nil
		})
}

// fetchNearestATMIV pulls the ATM call IV of the nearest expiry beyond one
// day out.
func fetchNearestATMIV(ctx context.Context, deps *Deps, ccy string, spot float64, notes *[]string) *float64 {
	instruments, err := deps.Client.GetInstruments(ctx, ccy, "option")
	if err != nil {
		return nil
	}
	now := nowMs()
	groups := groupByExpiry(instruments, now)

	var nearest *expiryGroup
	minDays := math.Inf(1)
	for _, g := range groups {
		days := analytics.DaysToExpiry(g.Ts, now)
		if days > 1 && days < minDays {
			minDays = days
			nearest = g
		}
	}
	if nearest == nil {
		return nil
	}

	iv := fetchATMCallIV(ctx, deps, ccy, nearest, spot)
	if iv != nil {
		*notes = append(*notes, "atm_from:"+nearest.Label)
	} else {
		*notes = append(*notes, "atm_ticker_failed:"+nearest.Label)
	}
	return iv
}

// -----------------------------------------------------------------------------
// Tool: funding_snapshot
// -----------------------------------------------------------------------------

type fundingInput struct {
	Currency string `json:"currency"`
}

func newFundingSnapshotTool(deps *Deps) Tool {
	return NewTool("funding_snapshot",
		"Perpetual funding rate with recent history.",
		objectSchema(map[string]interface{}{
			"currency": enumProp("Currency", "BTC", "ETH"),
		}, "currency"),
		func(ctx context.Context, in fundingInput) (interface{}, error) {
			ccy, err := normalizeCurrency(in.Currency)
			if err != nil {
				return nil, &ErrInvalidArgs{Cause: err}
			}
			perp := ccy + "-PERPETUAL"
			var notes []string

			ticker, err := deps.Client.GetTicker(ctx, perp)
			if err != nil {
				return ErrorEnvelope(err, []string{"perp:" + perp, "funding_fetch_failed"}), nil
			}

			history := []models.MFundingEntry{}
			now := nowMs()
			points, herr := deps.Client.GetFundingRateHistory(ctx, perp, now-8*3600*1000*5, now)
			if herr != nil {
				notes = append(notes, "history_unavailable")
			} else {
				start := 0
				if len(points) > models.MaxFundingHistory {
					start = len(points) - models.MaxFundingHistory
				}
				for _, p := range points[start:] {
					history = append(history, models.MFundingEntry{
						Ts:   p.Timestamp,
						Rate: helpers.Round(p.Interest8h, 8),
					})
				}
			}

			var rate float64
			if ticker.CurrentFunding != nil {
				rate = *ticker.CurrentFunding
			}
			// Funding settles every 8 hours, three times a day.
			var rate8h *float64
			if ticker.CurrentFunding != nil {
				annualized := *ticker.CurrentFunding * 3 * 365
				rate8h = &annualized
			}
			var nextTs *int64
			if ticker.Funding8h != nil {
				ts := int64(*ticker.Funding8h)
				nextTs = &ts
			}

			return &models.MFundingResponse{
				Ccy:     ccy,
				Perp:    perp,
				Rate:    helpers.Round(rate, 8),
				Rate8h:  helpers.RoundPtr(rate8h, 4),
				NextTs:  nextTs,
				History: history,
				Notes:   capNotes(notes),
			}, nil
		})
}
