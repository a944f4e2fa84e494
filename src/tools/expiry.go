package tools

import (
	"context"
	"strings"
	"time"

	"deribit-gateway/src/analytics"
	"deribit-gateway/src/upstream"
)

// -----------------------------------------------------------------------------
// Expiry selection helpers
// -----------------------------------------------------------------------------

// expiryGroup is all option instruments sharing one expiration.
type expiryGroup struct {
	Label       string
	Ts          int64
	Instruments []upstream.Instrument
}

// groupByExpiry buckets active option instruments by expiration, skipping
// already-expired ones. Keys are exchange labels like 27SEP26.
func groupByExpiry(instruments []upstream.Instrument, nowMs int64) map[string]*expiryGroup {
	groups := make(map[string]*expiryGroup)
	for _, inst := range instruments {
		if inst.ExpirationTimestamp <= nowMs {
			continue
		}
		label := expiryLabelOf(inst)
		g := groups[label]
		if g == nil {
			g = &expiryGroup{Label: label, Ts: inst.ExpirationTimestamp}
			groups[label] = g
		}
		g.Instruments = append(g.Instruments, inst)
	}
	return groups
}

// expiryLabelOf pulls the expiry segment out of BTC-27SEP26-50000-C style
// names, falling back to formatting the timestamp.
func expiryLabelOf(inst upstream.Instrument) string {
	parts := strings.Split(inst.InstrumentName, "-")
	if len(parts) >= 3 {
		return strings.ToUpper(parts[1])
	}
	return upstream.FormatExpiry(inst.ExpirationTimestamp)
}

// resolveExpiry returns the expiry timestamp for a label, or 0 when the
// label matches nothing.
func resolveExpiry(ctx context.Context, client *upstream.Client, ccy, label string) (int64, error) {
	instruments, err := client.GetInstruments(ctx, ccy, "option")
	if err != nil {
		return 0, err
	}
	want := strings.ToUpper(label)
	for _, inst := range instruments {
		if expiryLabelOf(inst) == want {
			return inst.ExpirationTimestamp, nil
		}
	}
	return 0, nil
}

// nearestExpiryToTenor picks the expiry closest to targetDays, rejecting
// candidates further than half the tenor away.
func nearestExpiryToTenor(groups map[string]*expiryGroup, targetDays int, nowMs int64) *expiryGroup {
	var best *expiryGroup
	bestDistance := float64(targetDays) * 0.5
	for _, g := range groups {
		days := analytics.DaysToExpiry(g.Ts, nowMs)
		distance := days - float64(targetDays)
		if distance < 0 {
			distance = -distance
		}
		if distance < bestDistance {
			bestDistance = distance
			best = g
		}
	}
	return best
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
