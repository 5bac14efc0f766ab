package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/polyharvest/polyharvest/internal/models"
	"github.com/polyharvest/polyharvest/internal/transport"
)

const (
	// maxWindowDays is the widest price-history window requested per
	// call. The CLOB rejects windows it considers too long, so the
	// window shrinks by halving until a request succeeds.
	maxWindowDays = 30
	// dailyFidelity asks for one sample per 1440 minutes, i.e. daily.
	dailyFidelity = 1440

	daySeconds = 86_400
)

type pricePoint struct {
	Ts    int64   `json:"t"`
	Price float64 `json:"p"`
}

type priceHistoryResponse struct {
	History []pricePoint `json:"history"`
}

// ClobClient fetches token price history from the CLOB API.
type ClobClient struct {
	baseURL string
	http    *transport.Client
	logger  *slog.Logger
}

// NewClobClient creates a CLOB client rooted at baseURL
// (e.g. https://clob.polymarket.com).
func NewClobClient(baseURL string, httpClient *transport.Client, logger *slog.Logger) *ClobClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClobClient{
		baseURL: baseURL,
		http:    httpClient,
		logger:  logger.With("client", "clob"),
	}
}

// DailyPrices fetches daily price samples for a token over [startTs,
// endTs], returned as a sparse map of UTC date to price. The range is
// covered left to right in windows of at most maxWindowDays; a window the
// API rejects as too long is halved down to a single day, and a day that
// cannot be served at all is skipped so one bad stretch never stalls the
// sweep.
func (c *ClobClient) DailyPrices(ctx context.Context, tokenID string, startTs, endTs int64) (map[string]float64, error) {
	prices := make(map[string]float64)

	cursor := startTs
	for cursor < endTs {
		advanced := false
		for windowDays := maxWindowDays; windowDays >= 1; windowDays /= 2 {
			windowEnd := cursor + int64(windowDays)*daySeconds
			if windowEnd > endTs {
				windowEnd = endTs
			}

			params := url.Values{
				"market":   {tokenID},
				"startTs":  {strconv.FormatInt(cursor, 10)},
				"endTs":    {strconv.FormatInt(windowEnd, 10)},
				"fidelity": {strconv.Itoa(dailyFidelity)},
			}
			var resp priceHistoryResponse
			err := c.http.GetJSON(ctx, c.baseURL+"/prices-history", params, &resp)
			if err != nil {
				if IsIntervalTooLong(err) {
					c.logger.Debug("price window rejected, halving", "token_id", tokenID, "window_days", windowDays)
					continue
				}
				return nil, fmt.Errorf("fetch prices for token %s: %w", tokenID, err)
			}

			for _, pt := range resp.History {
				prices[models.DateOf(pt.Ts)] = pt.Price
			}
			cursor = windowEnd + 1
			advanced = true
			break
		}
		if !advanced {
			// Even a one-day window was refused; skip the day.
			c.logger.Warn("price day unavailable, skipping", "token_id", tokenID, "cursor", cursor)
			cursor += daySeconds
		}
	}
	return prices, nil
}
