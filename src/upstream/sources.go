package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"deribit-gateway/src/cache"
	"deribit-gateway/src/models"
)

// -----------------------------------------------------------------------------
// Typed wrappers over the raw RPC payloads
// -----------------------------------------------------------------------------

// Instrument is the subset of public/get_instruments we consume.
type Instrument struct {
	InstrumentName      string   `json:"instrument_name"`
	Kind                string   `json:"kind"`
	OptionType          string   `json:"option_type"`
	Strike              *float64 `json:"strike"`
	ExpirationTimestamp int64    `json:"expiration_timestamp"`
	TickSize            float64  `json:"tick_size"`
	ContractSize        float64  `json:"contract_size"`
	IsActive            bool     `json:"is_active"`
}

// Ticker is the subset of public/ticker we consume.
type Ticker struct {
	InstrumentName  string       `json:"instrument_name"`
	BestBidPrice    *float64     `json:"best_bid_price"`
	BestAskPrice    *float64     `json:"best_ask_price"`
	MarkPrice       float64      `json:"mark_price"`
	IndexPrice      *float64     `json:"index_price"`
	UnderlyingPrice *float64     `json:"underlying_price"`
	MarkIV          *float64     `json:"mark_iv"`
	OpenInterest    *float64     `json:"open_interest"`
	CurrentFunding  *float64     `json:"current_funding"`
	Funding8h       *float64     `json:"funding_8h"`
	Timestamp       int64        `json:"timestamp"`
	Greeks          *TickerGreek `json:"greeks"`
	Stats           TickerStats  `json:"stats"`
}

type TickerGreek struct {
	Delta *float64 `json:"delta"`
	Gamma *float64 `json:"gamma"`
	Vega  *float64 `json:"vega"`
	Theta *float64 `json:"theta"`
}

type TickerStats struct {
	Volume *float64 `json:"volume"`
}

// OrderBook is the subset of public/get_order_book we consume.
type OrderBook struct {
	InstrumentName string       `json:"instrument_name"`
	BestBidPrice   *float64     `json:"best_bid_price"`
	BestAskPrice   *float64     `json:"best_ask_price"`
	Bids           [][2]float64 `json:"bids"`
	Asks           [][2]float64 `json:"asks"`
	Timestamp      int64        `json:"timestamp"`
}

// PlatformStatus is the subset of public/status we consume.
type PlatformStatus struct {
	Locked string `json:"locked"`
}

// VolatilityIndexData holds DVOL candles: [ts, open, high, low, close].
type VolatilityIndexData struct {
	Data         [][5]float64 `json:"data"`
	Continuation *int64       `json:"continuation"`
}

// FundingRatePoint is one entry of public/get_funding_rate_history.
type FundingRatePoint struct {
	Timestamp  int64   `json:"timestamp"`
	Interest8h float64 `json:"interest_8h"`
	Interest1h float64 `json:"interest_1h"`
}

// AccountSummary is the subset of private/get_account_summary we consume.
type AccountSummary struct {
	Equity            float64  `json:"equity"`
	AvailableFunds    float64  `json:"available_funds"`
	MarginBalance     float64  `json:"margin_balance"`
	MaintenanceMargin *float64 `json:"maintenance_margin"`
	InitialMargin     *float64 `json:"initial_margin"`
	DeltaTotal        *float64 `json:"delta_total"`
}

// Position is the subset of private/get_positions we consume.
type Position struct {
	InstrumentName            string   `json:"instrument_name"`
	Size                      float64  `json:"size"`
	Direction                 string   `json:"direction"`
	AveragePrice              float64  `json:"average_price"`
	MarkPrice                 float64  `json:"mark_price"`
	FloatingProfitLoss        float64  `json:"floating_profit_loss"`
	EstimatedLiquidationPrice *float64 `json:"estimated_liquidation_price"`
}

// Order is the subset of the open-order queries we consume.
type Order struct {
	OrderID        string   `json:"order_id"`
	InstrumentName string   `json:"instrument_name"`
	Direction      string   `json:"direction"`
	OrderType      string   `json:"order_type"`
	Price          *float64 `json:"price"`
	Amount         float64  `json:"amount"`
	FilledAmount   float64  `json:"filled_amount"`
	OrderState     string   `json:"order_state"`
}

// -----------------------------------------------------------------------------
// Public fetch helpers
// -----------------------------------------------------------------------------

// GetTime returns the exchange server time in milliseconds.
func (c *Client) GetTime(ctx context.Context) (int64, error) {
	raw, err := c.CallPublic(ctx, "public/get_time", nil)
	if err != nil {
		return 0, err
	}
	var ts int64
	if err := json.Unmarshal(raw, &ts); err != nil {
		return 0, newError(KindInternal, 0, "malformed time response")
	}
	return ts, nil
}

// GetPlatformStatus returns the platform lock state.
func (c *Client) GetPlatformStatus(ctx context.Context) (*PlatformStatus, error) {
	raw, err := c.CallPublic(ctx, "public/status", nil)
	if err != nil {
		return nil, err
	}
	var st PlatformStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, newError(KindInternal, 0, "malformed status response")
	}
	return &st, nil
}

// GetIndexPrice returns the current index price for ccy (e.g. btc_usd).
func (c *Client) GetIndexPrice(ctx context.Context, ccy string) (float64, error) {
	raw, err := c.CallCached(ctx, cache.Fast, "public/get_index_price", map[string]string{
		"index_name": strings.ToLower(ccy) + "_usd",
	})
	if err != nil {
		return 0, err
	}
	var out struct {
		IndexPrice float64 `json:"index_price"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return 0, newError(KindInternal, 0, "malformed index price response")
	}
	return out.IndexPrice, nil
}

// GetInstruments lists active instruments of the given kind.
func (c *Client) GetInstruments(ctx context.Context, ccy, kind string) ([]Instrument, error) {
	params := map[string]string{
		"currency": strings.ToUpper(ccy),
		"expired":  "false",
	}
	if kind != "" {
		params["kind"] = kind
	}
	raw, err := c.CallCached(ctx, cache.Slow, "public/get_instruments", params)
	if err != nil {
		return nil, err
	}
	var list []Instrument
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, newError(KindInternal, 0, "malformed instruments response")
	}
	return list, nil
}

// GetTicker returns the ticker snapshot for one instrument.
func (c *Client) GetTicker(ctx context.Context, instrument string) (*Ticker, error) {
	raw, err := c.CallCached(ctx, cache.Fast, "public/ticker", map[string]string{
		"instrument_name": instrument,
	})
	if err != nil {
		return nil, err
	}
	var t Ticker
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, newError(KindInternal, 0, "malformed ticker response")
	}
	if t.InstrumentName == "" {
		t.InstrumentName = instrument
	}
	return &t, nil
}

// GetOrderBook returns up to depth levels per side.
func (c *Client) GetOrderBook(ctx context.Context, instrument string, depth int) (*OrderBook, error) {
	raw, err := c.CallCached(ctx, cache.Fast, "public/get_order_book", map[string]string{
		"instrument_name": instrument,
		"depth":           fmt.Sprintf("%d", depth),
	})
	if err != nil {
		return nil, err
	}
	var ob OrderBook
	if err := json.Unmarshal(raw, &ob); err != nil {
		return nil, newError(KindInternal, 0, "malformed order book response")
	}
	return &ob, nil
}

// GetVolatilityIndex returns DVOL candles between startMs and endMs.
func (c *Client) GetVolatilityIndex(ctx context.Context, ccy string, startMs, endMs int64, resolution string) (*VolatilityIndexData, error) {
	raw, err := c.CallCached(ctx, cache.Fast, "public/get_volatility_index_data", map[string]string{
		"currency":        strings.ToUpper(ccy),
		"start_timestamp": fmt.Sprintf("%d", startMs),
		"end_timestamp":   fmt.Sprintf("%d", endMs),
		"resolution":      resolution,
	})
	if err != nil {
		return nil, err
	}
	var out VolatilityIndexData
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, newError(KindInternal, 0, "malformed volatility index response")
	}
	return &out, nil
}

// GetFundingRateHistory returns recent funding points for a perpetual.
func (c *Client) GetFundingRateHistory(ctx context.Context, instrument string, startMs, endMs int64) ([]FundingRatePoint, error) {
	raw, err := c.CallCached(ctx, cache.Fast, "public/get_funding_rate_history", map[string]string{
		"instrument_name": instrument,
		"start_timestamp": fmt.Sprintf("%d", startMs),
		"end_timestamp":   fmt.Sprintf("%d", endMs),
	})
	if err != nil {
		return nil, err
	}
	var list []FundingRatePoint
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, newError(KindInternal, 0, "malformed funding history response")
	}
	return list, nil
}

// -----------------------------------------------------------------------------
// Private fetch helpers
// -----------------------------------------------------------------------------

// GetAccountSummary returns the account state for one currency.
func (c *Client) GetAccountSummary(ctx context.Context, ccy string) (*AccountSummary, error) {
	raw, err := c.CallPrivate(ctx, "private/get_account_summary", map[string]string{
		"currency": strings.ToUpper(ccy),
	})
	if err != nil {
		return nil, err
	}
	var out AccountSummary
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, newError(KindInternal, 0, "malformed account summary response")
	}
	return &out, nil
}

// GetPositions returns open positions for one currency.
func (c *Client) GetPositions(ctx context.Context, ccy string) ([]Position, error) {
	raw, err := c.CallPrivate(ctx, "private/get_positions", map[string]string{
		"currency": strings.ToUpper(ccy),
	})
	if err != nil {
		return nil, err
	}
	var list []Position
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, newError(KindInternal, 0, "malformed positions response")
	}
	return list, nil
}

// GetOpenOrders returns open orders, optionally filtered by instrument.
func (c *Client) GetOpenOrders(ctx context.Context, ccy, instrument string) ([]Order, error) {
	var raw json.RawMessage
	var err error
	if instrument != "" {
		raw, err = c.CallPrivate(ctx, "private/get_open_orders_by_instrument", map[string]string{
			"instrument_name": instrument,
		})
	} else {
		raw, err = c.CallPrivate(ctx, "private/get_open_orders_by_currency", map[string]string{
			"currency": strings.ToUpper(ccy),
		})
	}
	if err != nil {
		return nil, err
	}
	var list []Order
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, newError(KindInternal, 0, "malformed open orders response")
	}
	return list, nil
}

// -----------------------------------------------------------------------------
// Chain snapshot assembly
// -----------------------------------------------------------------------------

// chainFetchConcurrency bounds the parallel per-strike ticker fetches.
const chainFetchConcurrency = 8

// OptionExpiries returns the sorted distinct expiry timestamps of the
// active option instruments for ccy.
func (c *Client) OptionExpiries(ctx context.Context, ccy string) ([]int64, error) {
	instruments, err := c.GetInstruments(ctx, ccy, "option")
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool)
	var expiries []int64
	for _, inst := range instruments {
		if !seen[inst.ExpirationTimestamp] {
			seen[inst.ExpirationTimestamp] = true
			expiries = append(expiries, inst.ExpirationTimestamp)
		}
	}
	sort.Slice(expiries, func(i, j int) bool { return expiries[i] < expiries[j] })
	return expiries, nil
}

// FetchChainSnapshot assembles an immutable option chain for one expiry:
// list the expiry's instruments, fetch their tickers in bounded parallel,
// order the result by strike ascending.
func (c *Client) FetchChainSnapshot(ctx context.Context, ccy string, expiryTs int64) (*models.MChainSnapshot, error) {
	spot, err := c.GetIndexPrice(ctx, ccy)
	if err != nil {
		return nil, err
	}
	instruments, err := c.GetInstruments(ctx, ccy, "option")
	if err != nil {
		return nil, err
	}

	var selected []Instrument
	for _, inst := range instruments {
		if inst.ExpirationTimestamp == expiryTs && inst.Strike != nil {
			selected = append(selected, inst)
		}
	}
	if len(selected) == 0 {
		return nil, newError(KindNotFound, 0, fmt.Sprintf("no options for %s expiry %d", ccy, expiryTs))
	}

	quotes := make([]models.MStrikeQuote, len(selected))
	sem := make(chan struct{}, chainFetchConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var fetchErr error
	var ivConverted bool

	for i, inst := range selected {
		wg.Add(1)
		go func(i int, inst Instrument) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			ticker, err := c.GetTicker(ctx, inst.InstrumentName)
			if err != nil {
				mu.Lock()
				if fetchErr == nil {
					fetchErr = err
				}
				mu.Unlock()
				return
			}

			markIV, converted := normalizeIVFlag(ticker.MarkIV)
			if converted {
				mu.Lock()
				ivConverted = true
				mu.Unlock()
			}

			q := models.MStrikeQuote{
				Strike: *inst.Strike,
				Type:   optionTypeLabel(inst),
				OI:     ticker.OpenInterest,
				Vol24h: ticker.Stats.Volume,
				MarkIV: markIV,
			}
			if ticker.Greeks != nil {
				q.Delta = ticker.Greeks.Delta
				q.Gamma = ticker.Greeks.Gamma
				q.Vega = ticker.Greeks.Vega
			}
			quotes[i] = q
		}(i, inst)
	}
	wg.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}

	sort.Slice(quotes, func(i, j int) bool {
		if quotes[i].Strike != quotes[j].Strike {
			return quotes[i].Strike < quotes[j].Strike
		}
		return quotes[i].Type < quotes[j].Type
	})

	return &models.MChainSnapshot{
		Ccy:            strings.ToUpper(ccy),
		Expiry:         FormatExpiry(expiryTs),
		ExpiryTs:       expiryTs,
		Spot:           spot,
		FetchedAt:      time.Now().UnixMilli(),
		Strikes:        quotes,
		IVPctConverted: ivConverted,
	}, nil
}

func optionTypeLabel(inst Instrument) string {
	if inst.OptionType == "put" || strings.HasSuffix(inst.InstrumentName, "-P") {
		return "put"
	}
	return "call"
}

// normalizeIV converts percentage-style IVs (80 meaning 80%) to decimals.
func normalizeIV(iv *float64) *float64 {
	v, _ := normalizeIVFlag(iv)
	return v
}

// normalizeIVFlag additionally reports whether a conversion happened, so
// callers can note it in their payloads.
func normalizeIVFlag(iv *float64) (*float64, bool) {
	if iv == nil {
		return nil, false
	}
	v := *iv
	if v > 1 {
		v = v / 100
		return &v, true
	}
	return &v, false
}

// FormatExpiry renders an expiry timestamp as the exchange label, e.g. 27SEP26.
func FormatExpiry(tsMs int64) string {
	return strings.ToUpper(time.UnixMilli(tsMs).UTC().Format("02Jan06"))
}
