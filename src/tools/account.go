package tools

import (
	"context"

	"deribit-gateway/src/helpers"
	"deribit-gateway/src/models"
)

// The private tools are only registered when upstream credentials are
// configured; see NewRegistry.

// -----------------------------------------------------------------------------
// Tool: account_summary
// -----------------------------------------------------------------------------

type accountSummaryInput struct {
	Currency string `json:"currency"`
}

func newAccountSummaryTool(deps *Deps) Tool {
	return NewTool("account_summary",
		"Account equity, margin and aggregate delta for one currency.",
		objectSchema(map[string]interface{}{
			"currency": enumProp("Currency", "BTC", "ETH"),
		}, "currency"),
		func(ctx context.Context, in accountSummaryInput) (interface{}, error) {
			ccy, err := normalizeCurrency(in.Currency)
			if err != nil {
				return nil, &ErrInvalidArgs{Cause: err}
			}
			summary, err := deps.Client.GetAccountSummary(ctx, ccy)
			if err != nil {
				return ErrorEnvelope(err, []string{"currency:" + ccy}), nil
			}
			return &models.MAccountSummaryResponse{
				Ccy:        ccy,
				Equity:     helpers.Round(summary.Equity, 8),
				Avail:      helpers.Round(summary.AvailableFunds, 8),
				Margin:     helpers.Round(summary.MarginBalance, 8),
				MM:         helpers.RoundPtr(summary.MaintenanceMargin, 8),
				IM:         helpers.RoundPtr(summary.InitialMargin, 8),
				DeltaTotal: helpers.RoundPtr(summary.DeltaTotal, 4),
				Notes:      []string{},
			}, nil
		})
}

// -----------------------------------------------------------------------------
// Tool: positions
// -----------------------------------------------------------------------------

type positionsInput struct {
	Currency string `json:"currency"`
}

func newPositionsTool(deps *Deps) Tool {
	return NewTool("positions",
		"Open positions for one currency, largest absolute size first.",
		objectSchema(map[string]interface{}{
			"currency": enumProp("Currency", "BTC", "ETH"),
		}, "currency"),
		func(ctx context.Context, in positionsInput) (interface{}, error) {
			ccy, err := normalizeCurrency(in.Currency)
			if err != nil {
				return nil, &ErrInvalidArgs{Cause: err}
			}
			positions, err := deps.Client.GetPositions(ctx, ccy)
			if err != nil {
				return ErrorEnvelope(err, []string{"currency:" + ccy}), nil
			}

			var notes []string
			total := len(positions)
			if total > models.MaxPositions {
				positions = positions[:models.MaxPositions]
				notes = append(notes, "positions_truncated")
			}

			out := make([]models.MPositionCompact, 0, len(positions))
			for _, p := range positions {
				if p.Size == 0 {
					continue
				}
				out = append(out, models.MPositionCompact{
					Inst:  p.InstrumentName,
					Size:  p.Size,
					Side:  p.Direction,
					Entry: helpers.Round(p.AveragePrice, 4),
					Mark:  helpers.Round(p.MarkPrice, 4),
					Pnl:   helpers.Round(p.FloatingProfitLoss, 8),
					Liq:   helpers.RoundPtr(p.EstimatedLiquidationPrice, 2),
				})
			}

			return &models.MPositionsResponse{
				Ccy:       ccy,
				Count:     total,
				Positions: out,
				Notes:     capNotes(notes),
			}, nil
		})
}

// -----------------------------------------------------------------------------
// Tool: open_orders
// -----------------------------------------------------------------------------

type openOrdersInput struct {
	Currency       string `json:"currency"`
	InstrumentName string `json:"instrument_name"`
}

func newOpenOrdersTool(deps *Deps) Tool {
	return NewTool("open_orders",
		"Open orders for one currency, optionally filtered by instrument.",
		objectSchema(map[string]interface{}{
			"currency":        enumProp("Currency", "BTC", "ETH"),
			"instrument_name": prop("string", "Optional instrument filter, e.g. BTC-PERPETUAL"),
		}, "currency"),
		func(ctx context.Context, in openOrdersInput) (interface{}, error) {
			ccy, err := normalizeCurrency(in.Currency)
			if err != nil {
				return nil, &ErrInvalidArgs{Cause: err}
			}
			orders, err := deps.Client.GetOpenOrders(ctx, ccy, in.InstrumentName)
			if err != nil {
				return ErrorEnvelope(err, []string{"currency:" + ccy}), nil
			}

			var notes []string
			total := len(orders)
			if total > models.MaxOrders {
				orders = orders[:models.MaxOrders]
				notes = append(notes, "orders_truncated")
			}

			out := make([]models.MOrderCompact, 0, len(orders))
			for _, o := range orders {
				out = append(out, models.MOrderCompact{
					ID:     o.OrderID,
					Inst:   o.InstrumentName,
					Side:   o.Direction,
					Type:   o.OrderType,
					Price:  helpers.RoundPtr(o.Price, 4),
					Amount: o.Amount,
					Filled: o.FilledAmount,
					State:  o.OrderState,
				})
			}

			return &models.MOpenOrdersResponse{
				Ccy:    ccy,
				Count:  total,
				Orders: out,
				Notes:  capNotes(notes),
			}, nil
		})
}
