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

const defaultDiscoveryPageSize = 100

// GammaClient fetches market metadata from the Gamma API.
type GammaClient struct {
	baseURL string
	http    *transport.Client
	logger  *slog.Logger
}

// NewGammaClient creates a Gamma client rooted at baseURL
// (e.g. https://gamma-api.polymarket.com).
func NewGammaClient(baseURL string, httpClient *transport.Client, logger *slog.Logger) *GammaClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GammaClient{
		baseURL: baseURL,
		http:    httpClient,
		logger:  logger.With("client", "gamma"),
	}
}

// GetMarket fetches a single market by its Gamma numeric id.
func (g *GammaClient) GetMarket(ctx context.Context, marketID string) (*models.Market, error) {
	var api APIMarket
	endpoint := g.baseURL + "/markets/" + url.PathEscape(marketID)
	if err := g.http.GetJSON(ctx, endpoint, nil, &api); err != nil {
		return nil, fmt.Errorf("get market %s: %w", marketID, err)
	}
	m := api.ToModel()
	if m.ID == "" {
		m.ID = marketID
	}
	return &m, nil
}

// DiscoveryQuery bounds a closed-market listing.
type DiscoveryQuery struct {
	// EndDateMin restricts results to markets ending on or after this
	// RFC 3339 date. Empty means no lower bound.
	EndDateMin string
	// PageSize is the per-request limit; defaults to 100.
	PageSize int
	// MaxMarkets caps the total number of markets returned; 0 means
	// unbounded.
	MaxMarkets int
}

// ListClosedMarkets pages through the Gamma markets listing for closed
// markets ordered by end date, oldest first, until the listing is
// exhausted or the query's cap is reached.
func (g *GammaClient) ListClosedMarkets(ctx context.Context, q DiscoveryQuery) ([]models.Market, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultDiscoveryPageSize
	}

	var markets []models.Market
	offset := 0
	for {
		params := url.Values{
			"closed":    {"true"},
			"order":     {"endDate"},
			"ascending": {"true"},
			"limit":     {strconv.Itoa(pageSize)},
			"offset":    {strconv.Itoa(offset)},
		}
		if q.EndDateMin != "" {
			params.Set("end_date_min", q.EndDateMin)
		}

		var page []APIMarket
		if err := g.http.GetJSON(ctx, g.baseURL+"/markets", params, &page); err != nil {
			return nil, fmt.Errorf("list closed markets at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			markets = append(markets, page[i].ToModel())
			if q.MaxMarkets > 0 && len(markets) >= q.MaxMarkets {
				g.logger.Info("discovery capped", "markets", len(markets))
				return markets, nil
			}
		}
		g.logger.Debug("discovery page", "offset", offset, "page", len(page), "total", len(markets))

		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}
	return markets, nil
}
