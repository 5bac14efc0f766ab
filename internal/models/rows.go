package models

import "github.com/shopspring/decimal"

// AggregationResult is the per-condition-id daily aggregate persisted to
// the cache. It is computed once, cached, and then treated as immutable:
// a cache hit short-circuits both recomputation and trade re-fetching.
type AggregationResult struct {
	VolumeByDate map[string]decimal.Decimal `json:"vol_by_date"`
	CountByDate  map[string]int             `json:"cnt_by_date"`
	Truncated    bool                       `json:"truncated"`
}

// Volume returns the accumulated volume for a date, zero when the date saw
// no trades.
func (r *AggregationResult) Volume(date string) decimal.Decimal {
	if v, ok := r.VolumeByDate[date]; ok {
		return v
	}
	return decimal.Zero
}

// Count returns the trade count for a date, zero when the date saw no
// trades.
func (r *AggregationResult) Count(date string) int {
	return r.CountByDate[date]
}

// MinTradeDate returns the earliest date that saw a valid trade, or ""
// when no trades were observed. Because every parsed trade contributes a
// bucket, the smallest bucket key is the earliest fetched trade's date,
// so truncation propagation works identically on fresh and cached
// results.
func (r *AggregationResult) MinTradeDate() string {
	min := ""
	for d := range r.CountByDate {
		if min == "" || d < min {
			min = d
		}
	}
	return min
}

// VolumeRow is one (market, date) output row of the volume pipeline.
// Truncated marks dates whose trades are known to be missing because the
// upstream offset cap cut the history short; their volume and count are
// forced to zero.
type VolumeRow struct {
	MarketID   string
	Date       string
	Volume     decimal.Decimal
	TradeCount int
	Truncated  bool
}

// DailyRow is one (market, date) output row of the daily-series pipeline.
// YesPrice and NoPrice are nil before the first observation for that
// token; unknown is distinct from a zero price. TDays is nil when the
// market's nominal bounds are missing.
type DailyRow struct {
	MarketID     string
	Slug         string
	Title        string
	Date         string
	YesPrice     *float64
	NoPrice      *float64
	TotalVolume  string
	OutcomeProxy string
	UMAStatus    string
	TDays        *float64
	StartTs      int64
	EndDateTs    int64
	ClosedTs     int64
}

// ClassificationRow is one market's classification verdict as written to
// the metadata output. Status is "ok" or "error"; Error names the failure
// for error rows.
type ClassificationRow struct {
	Slug   string
	Type   string
	Domain string
	Date   string
	Status string
	Error  string
}

// MarketText is one market's title and description, exported for the
// classification step.
type MarketText struct {
	MarketID    string
	Slug        string
	Title       string
	Description string
}
