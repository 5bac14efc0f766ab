package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/polyharvest/polyharvest/internal/cache"
	"github.com/polyharvest/polyharvest/internal/transport"
)

const (
	// tradePageLimit is the page size accepted by the /trades endpoint.
	tradePageLimit = 500
	// maxTradeOffset is the deepest pagination offset the Data API
	// serves. Requests beyond it are rejected, so histories longer than
	// the cap come back truncated.
	maxTradeOffset = 3000
)

// TradeHistory is the outcome of a trade-history fetch: the raw trade
// records, newest first as the endpoint returns them, and whether the
// history was cut short by the offset cap.
type TradeHistory struct {
	Records   []json.RawMessage
	Truncated bool
}

// DataClient fetches historical trades from the Data API.
type DataClient struct {
	baseURL string
	http    *transport.Client
	logger  *slog.Logger
}

// NewDataClient creates a Data API client rooted at baseURL
// (e.g. https://data-api.polymarket.com).
func NewDataClient(baseURL string, httpClient *transport.Client, logger *slog.Logger) *DataClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataClient{
		baseURL: baseURL,
		http:    httpClient,
		logger:  logger.With("client", "data"),
	}
}

// FetchTrades pages through the full trade history for a condition id.
// Pagination stops when a short page arrives, when the next offset would
// exceed the API's cap, or when the API rejects the offset outright; the
// latter two mark the history truncated rather than failed.
//
// When log is non-nil, a complete cached history is returned without any
// network traffic, and a fresh fetch is journaled page by page so an
// interrupted run leaves a detectable partial log instead of a silently
// short history. Journal failures are advisory and never fail the fetch.
func (d *DataClient) FetchTrades(ctx context.Context, conditionID string, log *cache.TradeLog) (TradeHistory, error) {
	if log != nil {
		if marker, ok := log.Complete(); ok {
			records, err := log.ReadAll()
			if err != nil {
				return TradeHistory{}, fmt.Errorf("read trade log for %s: %w", conditionID, err)
			}
			d.logger.Debug("trade cache hit", "condition_id", conditionID, "records", len(records), "truncated", marker.Truncated)
			return TradeHistory{Records: records, Truncated: marker.Truncated}, nil
		}
		// A log without a completion marker is a remnant of an
		// interrupted run and cannot be trusted to be whole.
		if err := log.Reset(); err != nil {
			d.logger.Warn("trade log reset failed", "condition_id", conditionID, "error", err)
			log = nil
		}
	}

	var history TradeHistory
	for offset := 0; ; offset += tradePageLimit {
		if offset > maxTradeOffset {
			d.logger.Info("trade history truncated at offset cap", "condition_id", conditionID, "offset", offset)
			history.Truncated = true
			break
		}

		params := url.Values{
			"market": {conditionID},
			"limit":  {strconv.Itoa(tradePageLimit)},
			"offset": {strconv.Itoa(offset)},
		}
		var page []json.RawMessage
		err := d.http.GetJSON(ctx, d.baseURL+"/trades", params, &page)
		if err != nil {
			if IsOffsetCapExceeded(err) {
				d.logger.Info("trade history truncated by upstream", "condition_id", conditionID, "offset", offset)
				history.Truncated = true
				break
			}
			return TradeHistory{}, fmt.Errorf("fetch trades for %s at offset %d: %w", conditionID, offset, err)
		}

		if log != nil && len(page) > 0 {
			if err := log.Append(page); err != nil {
				d.logger.Warn("trade log append failed", "condition_id", conditionID, "error", err)
				log = nil
			}
		}
		history.Records = append(history.Records, page...)

		if len(page) < tradePageLimit {
			break
		}
	}

	if log != nil {
		marker := cache.Marker{Truncated: history.Truncated, Records: len(history.Records)}
		if err := log.Commit(marker); err != nil {
			d.logger.Warn("trade log commit failed", "condition_id", conditionID, "error", err)
		}
	}
	d.logger.Debug("trades fetched", "condition_id", conditionID, "records", len(history.Records), "truncated", history.Truncated)
	return history, nil
}
