package models

// -----------------------------------------------------------------------------
// Internal option chain snapshot shared by the fetch and analytics layers
// -----------------------------------------------------------------------------

type MStrikeQuote struct {
	Strike float64
	Type   string // "call" or "put"
	MarkIV *float64
	Delta  *float64
	Gamma  *float64
	Vega   *float64
	OI     *float64
	Vol24h *float64
}

type MChainSnapshot struct {
	Ccy       string
	Expiry    string // label, e.g. 27SEP26
	ExpiryTs  int64
	Spot      float64
	FetchedAt int64
	Strikes   []MStrikeQuote

	// True when any mark IV arrived percentage-style and was divided down.
	IVPctConverted bool
}
