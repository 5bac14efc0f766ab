// Package aggregate folds raw trade records into per-day buckets and
// reconstructs continuous daily price series from sparse observations.
// Everything here is pure computation; fetching and persistence belong to
// the callers.
package aggregate

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/polyharvest/polyharvest/internal/models"
)

// Trades buckets raw trade records by UTC date, accumulating price*size
// into each date's volume and counting valid trades. Records with an
// unparsable timestamp, price, or size are dropped without error. The
// truncated flag is carried through from the fetch that produced the
// records.
func Trades(records []json.RawMessage, truncated bool) models.AggregationResult {
	res := models.AggregationResult{
		VolumeByDate: make(map[string]decimal.Decimal),
		CountByDate:  make(map[string]int),
		Truncated:    truncated,
	}
	for _, raw := range records {
		trade, ok := models.ParseTrade(raw)
		if !ok {
			continue
		}
		date := trade.Date()
		res.VolumeByDate[date] = res.Volume(date).Add(trade.Notional())
		res.CountByDate[date]++
	}
	return res
}

// VolumeRows materializes one row per requested date from an aggregation
// result, applying the truncation propagation rule: when the trade
// history was cut short by the upstream offset cap, every requested date
// at or before the earliest fetched trade's date is known to be missing
// trades, so its volume and count are forced to zero and the row is
// flagged. Dates after that point were covered by the reachable window
// and report their buckets as-is.
func VolumeRows(marketID string, dates []string, res models.AggregationResult) []models.VolumeRow {
	minDate := ""
	if res.Truncated {
		minDate = res.MinTradeDate()
	}

	rows := make([]models.VolumeRow, 0, len(dates))
	for _, date := range dates {
		row := models.VolumeRow{MarketID: marketID, Date: date}
		if res.Truncated && minDate != "" && date <= minDate {
			row.Truncated = true
			row.Volume = decimal.Zero
		} else {
			row.Volume = res.Volume(date)
			row.TradeCount = res.Count(date)
		}
		rows = append(rows, row)
	}
	return rows
}
