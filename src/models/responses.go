package models

// -----------------------------------------------------------------------------
// Tool Response Structures (compact wire formats)
// -----------------------------------------------------------------------------

const (
	MaxNotes          = 6
	MaxInstruments    = 50
	MaxBookLevels     = 5
	MaxChainStrikes   = 100
	MaxOIStrikes      = 50
	MaxTopStrikes     = 5
	MaxGEXStrikes     = 50
	MaxGEXTop         = 3
	MaxPainCurve      = 3
	MaxTenors         = 6
	MaxPositions      = 20
	MaxOrders         = 20
	MaxFundingHistory = 5
)

type MStatusResponse struct {
	Env          string   `json:"env"`
	APIOk        bool     `json:"api_ok"`
	ServerTimeMs int64    `json:"server_time_ms"`
	Notes        []string `json:"notes"`
}

type MInstrumentCompact struct {
	Name   string   `json:"name"`
	ExpTs  int64    `json:"exp_ts"`
	Strike *float64 `json:"strike,omitempty"`
	Kind   string   `json:"kind"`
	Tick   float64  `json:"tick"`
	Size   float64  `json:"size"`
}

type MInstrumentsResponse struct {
	Ccy         string               `json:"ccy"`
	Count       int                  `json:"count"`
	Instruments []MInstrumentCompact `json:"instruments"`
	Notes       []string             `json:"notes"`
}

type MTickerResponse struct {
	Inst          string   `json:"inst"`
	Bid           *float64 `json:"bid"`
	Ask           *float64 `json:"ask"`
	Mid           *float64 `json:"mid"`
	Mark          float64  `json:"mark"`
	Idx           *float64 `json:"idx,omitempty"`
	Und           *float64 `json:"und,omitempty"`
	IV            *float64 `json:"iv,omitempty"`
	Greeks        *MGreeks `json:"greeks,omitempty"`
	OI            *float64 `json:"oi,omitempty"`
	Vol24h        *float64 `json:"vol_24h,omitempty"`
	Funding       *float64 `json:"funding,omitempty"`
	NextFundingTs *int64   `json:"next_funding_ts,omitempty"`
	Notes         []string `json:"notes"`
}

type MGreeks struct {
	Delta *float64 `json:"delta"`
	Gamma *float64 `json:"gamma"`
	Vega  *float64 `json:"vega"`
	Theta *float64 `json:"theta"`
}

type MPriceLevel struct {
	P float64 `json:"p"`
	Q float64 `json:"q"`
}

type MOrderBookSummary struct {
	Inst      string        `json:"inst"`
	Bid       *float64      `json:"bid"`
	Ask       *float64      `json:"ask"`
	SpreadPts *float64      `json:"spread_pts"`
	SpreadBps *float64      `json:"spread_bps"`
	Bids      []MPriceLevel `json:"bids"`
	Asks      []MPriceLevel `json:"asks"`
	BidDepth  float64       `json:"bid_depth"`
	AskDepth  float64       `json:"ask_depth"`
	Imbalance *float64      `json:"imbalance"`
	Notes     []string      `json:"notes"`
}

type MDvolResponse struct {
	Ccy        string   `json:"ccy"`
	Dvol       float64  `json:"dvol"`
	DvolChg24h *float64 `json:"dvol_chg_24h"`
	Percentile *float64 `json:"percentile"`
	Ts         int64    `json:"ts"`
	Notes      []string `json:"notes"`
}

type MTenorIV struct {
	Days  int      `json:"days"`
	AtmIV *float64 `json:"atm_iv"`
	RR25  *float64 `json:"rr25"`
	Fly25 *float64 `json:"fly25"`
	Fwd   *float64 `json:"fwd"`
}

type MSurfaceResponse struct {
	Ccy        string     `json:"ccy"`
	Spot       float64    `json:"spot"`
	Tenors     []MTenorIV `json:"tenors"`
	Confidence float64    `json:"confidence"`
	Ts         int64      `json:"ts"`
	Notes      []string   `json:"notes"`
}

type MExpectedMoveResponse struct {
	Ccy        string   `json:"ccy"`
	Spot       float64  `json:"spot"`
	IVUsed     float64  `json:"iv_used"`
	IVSource   string   `json:"iv_source"`
	HorizonMin int      `json:"horizon_min"`
	Move1sPts  float64  `json:"move_1s_pts"`
	Move1sBps  float64  `json:"move_1s_bps"`
	Up1s       float64  `json:"up_1s"`
	Down1s     float64  `json:"down_1s"`
	Confidence float64  `json:"confidence"`
	Notes      []string `json:"notes"`
}

type MFundingEntry struct {
	Ts   int64   `json:"ts"`
	Rate float64 `json:"rate"`
}

type MFundingResponse struct {
	Ccy     string          `json:"ccy"`
	Perp    string          `json:"perp"`
	Rate    float64         `json:"rate"`
	Rate8h  *float64        `json:"rate_8h"`
	NextTs  *int64          `json:"next_ts"`
	History []MFundingEntry `json:"history"`
	Notes   []string        `json:"notes"`
}

// -----------------------------------------------------------------------------
// Account (private, read-only)
// -----------------------------------------------------------------------------

type MAccountSummaryResponse struct {
	Ccy        string   `json:"ccy"`
	Equity     float64  `json:"equity"`
	Avail      float64  `json:"avail"`
	Margin     float64  `json:"margin"`
	MM         *float64 `json:"mm"`
	IM         *float64 `json:"im"`
	DeltaTotal *float64 `json:"delta_total"`
	Notes      []string `json:"notes"`
}

type MPositionCompact struct {
	Inst  string   `json:"inst"`
	Size  float64  `json:"size"`
	Side  string   `json:"side"`
	Entry float64  `json:"entry"`
	Mark  float64  `json:"mark"`
	Pnl   float64  `json:"pnl"`
	Liq   *float64 `json:"liq"`
}

type MPositionsResponse struct {
	Ccy       string             `json:"ccy"`
	Count     int                `json:"count"`
	Positions []MPositionCompact `json:"positions"`
	Notes     []string           `json:"notes"`
}

type MOrderCompact struct {
	ID     string   `json:"id"`
	Inst   string   `json:"inst"`
	Side   string   `json:"side"`
	Type   string   `json:"type"`
	Price  *float64 `json:"price"`
	Amount float64  `json:"amount"`
	Filled float64  `json:"filled"`
	State  string   `json:"state"`
}

type MOpenOrdersResponse struct {
	Ccy    string          `json:"ccy"`
	Count  int             `json:"count"`
	Orders []MOrderCompact `json:"orders"`
	Notes  []string        `json:"notes"`
}

// -----------------------------------------------------------------------------
// Option Chain
// -----------------------------------------------------------------------------

type MOptionStrikeData struct {
	Strike float64  `json:"strike"`
	Type   string   `json:"type"`
	MarkIV *float64 `json:"mark_iv"`
	Delta  *float64 `json:"delta"`
	Gamma  *float64 `json:"gamma"`
	Vega   *float64 `json:"vega"`
	OI     *float64 `json:"oi"`
	Vol    *float64 `json:"vol"`
}

type MOptionChainResponse struct {
	Ccy          string              `json:"ccy"`
	Expiry       string              `json:"expiry"`
	ExpiryTs     int64               `json:"expiry_ts"`
	Spot         float64             `json:"spot"`
	AtmStrike    *float64            `json:"atm_strike"`
	DaysToExpiry float64             `json:"days_to_expiry"`
	Strikes      []MOptionStrikeData `json:"strikes"`
	Summary      map[string]float64  `json:"summary"`
	Notes        []string            `json:"notes"`
}

// -----------------------------------------------------------------------------
// Open Interest
// -----------------------------------------------------------------------------

type MStrikeOI struct {
	Strike  float64  `json:"strike"`
	CallOI  float64  `json:"call_oi"`
	PutOI   float64  `json:"put_oi"`
	TotalOI float64  `json:"total_oi"`
	PCR     *float64 `json:"pcr"`
}

type MOIPeak struct {
	Low           float64 `json:"low"`
	High          float64 `json:"high"`
	Concentration float64 `json:"concentration"`
}

type MOpenInterestByStrikeResponse struct {
	Ccy         string      `json:"ccy"`
	Expiry      string      `json:"expiry"`
	Spot        float64     `json:"spot"`
	TotalCallOI float64     `json:"total_call_oi"`
	TotalPutOI  float64     `json:"total_put_oi"`
	PCRTotal    *float64    `json:"pcr_total"`
	OIByStrike  []MStrikeOI `json:"oi_by_strike"`
	TopStrikes  []MStrikeOI `json:"top_strikes"`
	PeakRange   *MOIPeak    `json:"peak_range"`
	Notes       []string    `json:"notes"`
}

// -----------------------------------------------------------------------------
// Gamma Exposure
// -----------------------------------------------------------------------------

type MStrikeGEX struct {
	Strike  float64 `json:"strike"`
	CallGEX float64 `json:"call_gex"`
	PutGEX  float64 `json:"put_gex"`
	NetGEX  float64 `json:"net_gex"`
}

type MGammaExposureResponse struct {
	Ccy              string       `json:"ccy"`
	Spot             float64      `json:"spot"`
	ExpiriesIncluded []string     `json:"expiries_included"`
	NetGEX           float64      `json:"net_gex"`
	GammaFlip        *float64     `json:"gamma_flip"`
	MaxPosGEXStrike  *float64     `json:"max_pos_gex_strike"`
	MaxNegGEXStrike  *float64     `json:"max_neg_gex_strike"`
	GEXByStrike      []MStrikeGEX `json:"gex_by_strike"`
	TopPositive      []MStrikeGEX `json:"top_positive"`
	TopNegative      []MStrikeGEX `json:"top_negative"`
	MMPositioning    string       `json:"market_maker_positioning"`
	Notes            []string     `json:"notes"`
}

// -----------------------------------------------------------------------------
// Max Pain
// -----------------------------------------------------------------------------

type MPainPoint struct {
	Strike float64 `json:"strike"`
	Pain   float64 `json:"pain"`
}

type MMaxPainResponse struct {
	Ccy                 string       `json:"ccy"`
	Expiry              string       `json:"expiry"`
	ExpiryTs            int64        `json:"expiry_ts"`
	Spot                float64      `json:"spot"`
	MaxPainStrike       float64      `json:"max_pain_strike"`
	DistanceFromSpotPct float64      `json:"distance_from_spot_pct"`
	PainCurveTop3       []MPainPoint `json:"pain_curve_top3"`
	TotalCallOI         float64      `json:"total_call_oi"`
	TotalPutOI          float64      `json:"total_put_oi"`
	PCR                 *float64     `json:"pcr"`
	Notes               []string     `json:"notes"`
}

// -----------------------------------------------------------------------------
// IV Term Structure
// -----------------------------------------------------------------------------

type MTermPoint struct {
	Days     int      `json:"days"`
	Expiry   string   `json:"expiry"`
	AtmIV    *float64 `json:"atm_iv"`
	AtmIVPct *float64 `json:"atm_iv_pct"`
}

type MIVTermStructureResponse struct {
	Ccy           string       `json:"ccy"`
	Spot          float64      `json:"spot"`
	TermStructure []MTermPoint `json:"term_structure"`
	Slope7d30d    *float64     `json:"slope_7d_30d"`
	Slope30d90d   *float64     `json:"slope_30d_90d"`
	Shape         string       `json:"shape"`
	DvolCurrent   *float64     `json:"dvol_current"`
	Notes         []string     `json:"notes"`
}

// -----------------------------------------------------------------------------
// Skew
// -----------------------------------------------------------------------------

type MTenorSkew struct {
	Days     int      `json:"days"`
	Expiry   string   `json:"expiry"`
	AtmIV    *float64 `json:"atm_iv"`
	RR25d    *float64 `json:"rr25d"`
	RR25dPct *float64 `json:"rr25d_pct"`
	BF25d    *float64 `json:"bf25d"`
	BF25dPct *float64 `json:"bf25d_pct"`
	SkewDir  *string  `json:"skew_dir"`
}

type MSkewMetricsResponse struct {
	Ccy         string             `json:"ccy"`
	Spot        float64            `json:"spot"`
	SkewByTenor []MTenorSkew       `json:"skew_by_tenor"`
	SkewTrend   *string            `json:"skew_trend"`
	Summary     map[string]any     `json:"summary"`
	Notes       []string           `json:"notes"`
}

// -----------------------------------------------------------------------------
// Error envelope
// -----------------------------------------------------------------------------

type MErrorResponse struct {
	Error        bool     `json:"error"`
	ErrorCode    int      `json:"error_code"`
	Message      string   `json:"message"`
	RetryAfterMs *int64   `json:"retry_after_ms,omitempty"`
	Notes        []string `json:"notes"`
}
