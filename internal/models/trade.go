package models

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Trade is one raw fill from the trade-listing endpoint. Price and size
// are kept as decimals so volume accumulation stays exact.
type Trade struct {
	Timestamp int64
	Price     decimal.Decimal
	Size      decimal.Decimal
}

// tradeJSON captures the three fields of interest as raw tokens so the
// upstream may send them as numbers or number strings.
type tradeJSON struct {
	Timestamp json.RawMessage `json:"timestamp"`
	Price     json.RawMessage `json:"price"`
	Size      json.RawMessage `json:"size"`
}

// ParseTrade decodes a single raw trade record. Records with a missing or
// uncoercible timestamp, price, or size return ok=false and are dropped by
// callers; malformed data is never fatal.
func ParseTrade(raw json.RawMessage) (Trade, bool) {
	var tj tradeJSON
	if err := json.Unmarshal(raw, &tj); err != nil {
		return Trade{}, false
	}
	ts, ok := parseEpoch(tj.Timestamp)
	if !ok {
		return Trade{}, false
	}
	price, ok := parseDecimal(tj.Price)
	if !ok {
		return Trade{}, false
	}
	size, ok := parseDecimal(tj.Size)
	if !ok {
		return Trade{}, false
	}
	return Trade{Timestamp: ts, Price: price, Size: size}, true
}

// Date returns the UTC calendar date the trade falls on.
func (t Trade) Date() string {
	return DateOf(t.Timestamp)
}

// Notional is price*size, the trade's contribution to daily volume.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Size)
}

// parseEpoch coerces a JSON number or numeric string (including the
// float-string form "1700000000.0") into Unix seconds.
func parseEpoch(raw json.RawMessage) (int64, bool) {
	s := rawToken(raw)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(f), true
}

// parseDecimal coerces a JSON number or numeric string into a decimal.
func parseDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	s := rawToken(raw)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// rawToken strips surrounding quotes from a raw JSON scalar, returning ""
// for absent or null values.
func rawToken(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}
