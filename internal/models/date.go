package models

import "time"

// DateLayout is the canonical key format for daily buckets.
const DateLayout = "2006-01-02"

// DateOf truncates a Unix timestamp to its UTC calendar date.
func DateOf(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(DateLayout)
}

// DateRange returns every UTC date from the date of startTs through the
// date of endTs, inclusive. An inverted range yields nil.
func DateRange(startTs, endTs int64) []string {
	if endTs < startTs {
		return nil
	}
	start := time.Unix(startTs, 0).UTC().Truncate(24 * time.Hour)
	end := time.Unix(endTs, 0).UTC().Truncate(24 * time.Hour)
	var out []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(DateLayout))
	}
	return out
}
