package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"deribit-gateway/src/analytics"
	"deribit-gateway/src/helpers"
	"deribit-gateway/src/models"
	"deribit-gateway/src/upstream"
)

// -----------------------------------------------------------------------------
// Tool: deribit_status
// -----------------------------------------------------------------------------

type statusInput struct{}

func newStatusTool(deps *Deps) Tool {
	return NewTool("deribit_status",
		"Check exchange API connectivity and server time.",
		objectSchema(map[string]interface{}{}),
		func(ctx context.Context, _ statusInput) (interface{}, error) {
			var notes []string
			apiOk := false
			var serverTime int64

			ts, err := deps.Client.GetTime(ctx)
			if err == nil {
				apiOk = true
				serverTime = ts

				if st, err := deps.Client.GetPlatformStatus(ctx); err == nil {
					if st.Locked != "" && st.Locked != "false" {
						notes = append(notes, "platform_locked")
					}
				}

				stats := deps.Client.GetCacheStats()
				if stats.Entries > 0 {
					notes = append(notes, fmt.Sprintf("cache_entries:%d", stats.Entries))
				}
			} else {
				ue := upstream.AsError(err)
				notes = append(notes, fmt.Sprintf("error:%d", ue.Code))
				msg := ue.Message
				if len(msg) > 50 {
					msg = msg[:50]
				}
				notes = append(notes, msg)
			}

			env := "prod"
			if strings.Contains(deps.Config.Upstream.BaseURL, "test") {
				env = "test"
			}

			return &models.MStatusResponse{
				Env:          env,
				APIOk:        apiOk,
				ServerTimeMs: serverTime,
				Notes:        capNotes(notes),
			}, nil
		})
}

// -----------------------------------------------------------------------------
// Tool: deribit_instruments
// -----------------------------------------------------------------------------

type instrumentsInput struct {
	Currency string `json:"currency"`
	Kind     string `json:"kind"`
}

func newInstrumentsTool(deps *Deps) Tool {
	return NewTool("deribit_instruments",
		"List active instruments for a currency, nearest expirations first.",
		objectSchema(map[string]interface{}{
			"currency": enumProp("Currency", "BTC", "ETH"),
			"kind":     enumProp("Instrument kind", "option", "future"),
		}, "currency"),
		func(ctx context.Context, in instrumentsInput) (interface{}, error) {
			ccy, err := normalizeCurrency(in.Currency)
			if err != nil {
				return nil, &ErrInvalidArgs{Cause: err}
			}
			kind := in.Kind
			if kind == "" {
				kind = "option"
			}
			if kind != "option" && kind != "future" {
				return nil, &ErrInvalidArgs{Cause: fmt.Errorf("kind must be option or future")}
			}

			list, err := deps.Client.GetInstruments(ctx, ccy, kind)
			if err != nil {
				return ErrorEnvelope(err, []string{"currency:" + ccy}), nil
			}

			sort.Slice(list, func(i, j int) bool {
				return list[i].ExpirationTimestamp < list[j].ExpirationTimestamp
			})

			var notes []string
			total := len(list)
			if total > models.MaxInstruments {
				list = list[:models.MaxInstruments]
				notes = append(notes, fmt.Sprintf("truncated_to:%d_of_%d", models.MaxInstruments, total))
			}

			out := make([]models.MInstrumentCompact, 0, len(list))
			for _, inst := range list {
				out = append(out, models.MInstrumentCompact{
					Name:   inst.InstrumentName,
					ExpTs:  inst.ExpirationTimestamp,
					Strike: inst.Strike,
					Kind:   inst.Kind,
					Tick:   inst.TickSize,
					Size:   inst.ContractSize,
				})
			}

			return &models.MInstrumentsResponse{
				Ccy:         ccy,
				Count:       total,
				Instruments: out,
				Notes:       capNotes(notes),
			}, nil
		})
}

// -----------------------------------------------------------------------------
// Tool: deribit_ticker
// -----------------------------------------------------------------------------

type tickerInput struct {
	InstrumentName string `json:"instrument_name"`
}

func newTickerTool(deps *Deps) Tool {
	return NewTool("deribit_ticker",
		"Compact ticker snapshot for one instrument.",
		objectSchema(map[string]interface{}{
			"instrument_name": prop("string", "Full instrument name, e.g. BTC-PERPETUAL"),
		}, "instrument_name"),
		func(ctx context.Context, in tickerInput) (interface{}, error) {
			if in.InstrumentName == "" {
				return nil, &ErrInvalidArgs{Cause: fmt.Errorf("instrument_name is required")}
			}

			t, err := deps.Client.GetTicker(ctx, in.InstrumentName)
			if err != nil {
				return ErrorEnvelope(err, []string{"instrument:" + in.InstrumentName}), nil
			}

			var notes []string
			var mid *float64
			if t.BestBidPrice != nil && t.BestAskPrice != nil && *t.BestBidPrice > 0 && *t.BestAskPrice > 0 {
				m := (*t.BestBidPrice + *t.BestAskPrice) / 2
				mid = &m
			}

			iv := t.MarkIV
			if iv != nil && *iv > 1 {
				v := *iv / 100
				iv = &v
				notes = append(notes, "iv_pct_converted")
			}

			var greeks *models.MGreeks
			if t.Greeks != nil {
				greeks = &models.MGreeks{
					Delta: helpers.RoundPtr(t.Greeks.Delta, 4),
					Gamma: helpers.RoundPtr(t.Greeks.Gamma, 6),
					Vega:  helpers.RoundPtr(t.Greeks.Vega, 4),
					Theta: helpers.RoundPtr(t.Greeks.Theta, 4),
				}
			}

			var funding *float64
			var nextFunding *int64
			if strings.Contains(strings.ToUpper(in.InstrumentName), "PERPETUAL") {
				funding = helpers.RoundPtr(t.CurrentFunding, 8)
				if t.Funding8h != nil {
					ts := int64(*t.Funding8h)
					nextFunding = &ts
				}
			}

			return &models.MTickerResponse{
				Inst:          in.InstrumentName,
				Bid:           helpers.RoundPtr(t.BestBidPrice, 2),
				Ask:           helpers.RoundPtr(t.BestAskPrice, 2),
				Mid:           helpers.RoundPtr(mid, 2),
				Mark:          helpers.Round(t.MarkPrice, 4),
				Idx:           helpers.RoundPtr(t.IndexPrice, 2),
				Und:           helpers.RoundPtr(t.UnderlyingPrice, 2),
				IV:            helpers.RoundPtr(iv, 4),
				Greeks:        greeks,
				OI:            helpers.RoundPtr(t.OpenInterest, 2),
				Vol24h:        helpers.RoundPtr(t.Stats.Volume, 2),
				Funding:       funding,
				NextFundingTs: nextFunding,
				Notes:         capNotes(notes),
			}, nil
		})
}

// -----------------------------------------------------------------------------
// Tool: deribit_orderbook_summary
// -----------------------------------------------------------------------------

type orderbookInput struct {
	InstrumentName string `json:"instrument_name"`
	Depth          int    `json:"depth"`
}

func newOrderbookSummaryTool(deps *Deps) Tool {
	return NewTool("deribit_orderbook_summary",
		"Order book summary: top levels, depth sums, spread and imbalance.",
		objectSchema(map[string]interface{}{
			"instrument_name": prop("string", "Full instrument name"),
			"depth":           prop("integer", "Levels to aggregate, max 20"),
		}, "instrument_name"),
		func(ctx context.Context, in orderbookInput) (interface{}, error) {
			if in.InstrumentName == "" {
				return nil, &ErrInvalidArgs{Cause: fmt.Errorf("instrument_name is required")}
			}
			depth := in.Depth
			if depth <= 0 {
				depth = 20
			}
			if depth > 20 {
				depth = 20
			}

			ob, err := deps.Client.GetOrderBook(ctx, in.InstrumentName, depth)
			if err != nil {
				return ErrorEnvelope(err, []string{"instrument:" + in.InstrumentName}), nil
			}

			var notes []string
			levels := func(raw [][2]float64) []models.MPriceLevel {
				out := make([]models.MPriceLevel, 0, models.MaxBookLevels)
				for i, l := range raw {
					if i >= models.MaxBookLevels {
						break
					}
					out = append(out, models.MPriceLevel{
						P: helpers.Round(l[0], 4),
						Q: helpers.Round(l[1], 4),
					})
				}
				return out
			}

			var bidDepth, askDepth float64
			for i, b := range ob.Bids {
				if i >= depth {
					break
				}
				bidDepth += b[1]
			}
			for i, a := range ob.Asks {
				if i >= depth {
					break
				}
				askDepth += a[1]
			}

			var spreadPts, spreadBps *float64
			if ob.BestBidPrice != nil && ob.BestAskPrice != nil && *ob.BestBidPrice > 0 {
				pts := *ob.BestAskPrice - *ob.BestBidPrice
				spreadPts = &pts
				spreadBps = analytics.SpreadBps(*ob.BestBidPrice, *ob.BestAskPrice)
			}

			if len(ob.Bids) > models.MaxBookLevels || len(ob.Asks) > models.MaxBookLevels {
				deepest := len(ob.Bids)
				if len(ob.Asks) > deepest {
					deepest = len(ob.Asks)
				}
				notes = append(notes, fmt.Sprintf("levels_truncated_from:%d", deepest))
			}

			return &models.MOrderBookSummary{
				Inst:      in.InstrumentName,
				Bid:       helpers.RoundPtr(ob.BestBidPrice, 4),
				Ask:       helpers.RoundPtr(ob.BestAskPrice, 4),
				SpreadPts: helpers.RoundPtr(spreadPts, 4),
				SpreadBps: helpers.RoundPtr(spreadBps, 2),
				Bids:      levels(ob.Bids),
				Asks:      levels(ob.Asks),
				BidDepth:  helpers.Round(bidDepth, 4),
				AskDepth:  helpers.Round(askDepth, 4),
				Imbalance: helpers.RoundPtr(analytics.Imbalance(bidDepth, askDepth), 4),
				Notes:     capNotes(notes),
			}, nil
		})
}
