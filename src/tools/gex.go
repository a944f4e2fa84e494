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
// Tool: compute_gamma_exposure
// -----------------------------------------------------------------------------

// gexScale converts raw dollar GEX to millions for readability.
const gexScale = 1_000_000

type gammaExposureInput struct {
	Currency string   `json:"currency"`
	Expiries []string `json:"expiries"`
}

func newGammaExposureTool(deps *Deps) Tool {
	return NewTool("compute_gamma_exposure",
		"Dealer gamma exposure profile with flip level, in M$ per 1% move.",
		objectSchema(map[string]interface{}{
			"currency": enumProp("Currency", "BTC", "ETH"),
			"expiries": map[string]interface{}{"type": "array", "items": prop("string", "Expiry label"), "description": "Expiry labels; nearest 3 when omitted"},
		}, "currency"),
		func(ctx context.Context, in gammaExposureInput) (interface{}, error) {
			ccy, err := normalizeCurrency(in.Currency)
			if err != nil {
				return nil, &ErrInvalidArgs{Cause: err}
			}

			var notes []string
			now := nowMs()

			instruments, err := deps.Client.GetInstruments(ctx, ccy, "option")
			if err != nil {
				return ErrorEnvelope(err, []string{"currency:" + ccy}), nil
			}
			groups := groupByExpiry(instruments, now)

			var targets []string
			if len(in.Expiries) > 0 {
				for _, e := range in.Expiries {
					targets = append(targets, strings.ToUpper(e))
				}
			} else {
				targets = nearestExpiryLabels(groups, 3)
			}
			notes = append(notes, fmt.Sprintf("expiries:%d", len(targets)))

			var chains []*models.MChainSnapshot
			var included []string
			for _, label := range targets {
				g, ok := groups[label]
				if !ok {
					notes = append(notes, "missing_expiry:"+label)
					continue
				}
				chain, cerr := deps.Client.FetchChainSnapshot(ctx, ccy, g.Ts)
				if cerr != nil {
					notes = append(notes, "chain_failed:"+label)
					continue
				}
				chains = append(chains, chain)
				included = append(included, label)
			}

			if len(chains) == 0 {
				return &models.MErrorResponse{
					Error:     true,
					ErrorCode: -1,
					Message:   "No valid gamma/OI data found",
					Notes:     []string{"currency:" + ccy},
				}, nil
			}

			spot := chains[0].Spot
			profile := deps.Engine.GammaExposure(chains...)
			notes = append(notes, profile.Notes...)

			scaled := func(list []analytics.StrikeGEX) []models.MStrikeGEX {
				out := make([]models.MStrikeGEX, 0, len(list))
				for _, g := range list {
					out = append(out, models.MStrikeGEX{
						Strike:  g.Strike,
						CallGEX: helpers.Round(g.CallGEX/gexScale, 3),
						PutGEX:  helpers.Round(g.PutGEX/gexScale, 3),
						NetGEX:  helpers.Round(g.NetGEX/gexScale, 3),
					})
				}
				return out
			}

			netScaled := profile.NetGEX / gexScale
			positioning := "neutral"
			if netScaled > 0.5 {
				positioning = "long_gamma"
			} else if netScaled < -0.5 {
				positioning = "short_gamma"
			}

			var flip *float64
			if profile.GammaFlip != nil {
				flip = helpers.Float64Ptr(helpers.Round(*profile.GammaFlip, 2))
			}

			return &models.MGammaExposureResponse{
				Ccy:              ccy,
				Spot:             helpers.Round(spot, 2),
				ExpiriesIncluded: included,
				NetGEX:           helpers.Round(netScaled, 3),
				GammaFlip:        flip,
				MaxPosGEXStrike:  profile.MaxPos,
				MaxNegGEXStrike:  profile.MaxNeg,
				GEXByStrike:      scaled(profile.NearestStrikes(spot, models.MaxGEXStrikes)),
				TopPositive:      scaled(profile.TopPositive(models.MaxGEXTop)),
				TopNegative:      scaled(profile.TopNegative(models.MaxGEXTop)),
				MMPositioning:    positioning,
				Notes:            capNotes(notes),
			}, nil
		})
}

// nearestExpiryLabels returns up to n labels ordered by expiration.
func nearestExpiryLabels(groups map[string]*expiryGroup, n int) []string {
	type pair struct {
		label string
		ts    int64
	}
	var pairs []pair
	for label, g := range groups {
		pairs = append(pairs, pair{label, g.Ts})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ts < pairs[j].ts })
	var out []string
	for i, p := range pairs {
		if i >= n {
			break
		}
		out = append(out, p.label)
	}
	return out
}

// -----------------------------------------------------------------------------
// Tool: compute_max_pain
// -----------------------------------------------------------------------------

type maxPainInput struct {
	Currency string `json:"currency"`
	Expiry   string `json:"expiry"`
}

func newMaxPainTool(deps *Deps) Tool {
	return NewTool("compute_max_pain",
		"Max pain strike for one expiry with the lowest-pain curve points.",
		objectSchema(map[string]interface{}{
			"currency": enumProp("Currency", "BTC", "ETH"),
			"expiry":   prop("string", "Expiry label, e.g. 27SEP26"),
		}, "currency", "expiry"),
		func(ctx context.Context, in maxPainInput) (interface{}, error) {
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

			result := deps.Engine.MaxPain(chain)

			var distPct float64
			if chain.Spot > 0 {
				distPct = (result.MaxPainStrike - chain.Spot) / chain.Spot * 100
			}

			curve := make([]models.MPainPoint, 0, len(result.TopLow))
			for _, p := range result.TopLow {
				curve = append(curve, models.MPainPoint{
					Strike: p.Strike,
					Pain:   helpers.Round(p.Pain, 0),
				})
			}

			var pcr *float64
			if result.TotalCallOI > 0 {
				v := helpers.Round(result.TotalPutOI/result.TotalCallOI, 3)
				pcr = &v
			}

			return &models.MMaxPainResponse{
				Ccy:                 ccy,
				Expiry:              chain.Expiry,
				ExpiryTs:            chain.ExpiryTs,
				Spot:                helpers.Round(chain.Spot, 2),
				MaxPainStrike:       result.MaxPainStrike,
				DistanceFromSpotPct: helpers.Round(distPct, 2),
				PainCurveTop3:       curve,
				TotalCallOI:         helpers.Round(result.TotalCallOI, 2),
				TotalPutOI:          helpers.Round(result.TotalPutOI, 2),
				PCR:                 pcr,
				Notes:               []string{},
			}, nil
		})
}
