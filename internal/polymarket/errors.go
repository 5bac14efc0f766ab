package polymarket

import (
	"strings"

	"github.com/polyharvest/polyharvest/internal/transport"
)

// Message fragments by which the upstreams signal their capacity limits.
// Neither condition has a dedicated status code, so classification keys on
// a client-error status plus the documented error text.
const (
	offsetCapFragment       = "max historical activity offset"
	intervalTooLongFragment = "interval is too long"
)

// IsOffsetCapExceeded reports whether err is the Data API's rejection of a
// pagination offset beyond its maximum historical window. The condition
// marks the trade history as truncated rather than failed.
func IsOffsetCapExceeded(err error) bool {
	return hasClientErrorFragment(err, offsetCapFragment)
}

// IsIntervalTooLong reports whether err is the CLOB API's rejection of a
// price-history window wider than it will serve. Callers respond by
// halving the window and retrying.
func IsIntervalTooLong(err error) bool {
	return hasClientErrorFragment(err, intervalTooLongFragment)
}

func hasClientErrorFragment(err error, fragment string) bool {
	api, ok := transport.AsAPIError(err)
	if !ok {
		return false
	}
	if api.StatusCode < 400 || api.StatusCode >= 500 {
		return false
	}
	return strings.Contains(strings.ToLower(api.Body), fragment)
}
