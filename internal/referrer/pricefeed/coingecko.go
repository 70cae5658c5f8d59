package pricefeed

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/SakuraBurst/rewardbot/internal/referrer/config"
	"github.com/SakuraBurst/rewardbot/internal/referrer/metrics"
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/go-faster/errors"
	"github.com/goccy/go-json"
	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"
	"github.com/shopspring/decimal"
)

const currency = "usd"

// CoinSymbols maps price feed coin ids to the token names stored in token_prices.
var CoinSymbols = map[string]string{
	"binancecoin":   "BSC",
	"ethereum":      "ETH",
	"matic-network": "POLYGON",
	"alium-finance": "ALM",
}

type Coingecko struct {
	client  heimdall.Doer
	baseURL string
}

func NewCoingecko(cfg config.PriceFeed) *Coingecko {
	return &Coingecko{
		client:  httpclient.NewClient(httpclient.WithHTTPTimeout(cfg.Timeout)),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// GetRates returns the usd price of every known coin the feed answered for.
func (c *Coingecko) GetRates(ctx context.Context) ([]types.TokenPrice, error) {
	start := time.Now()
	prices, err := c.getRates(ctx)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ExternalRequestDuration.WithLabelValues("pricefeed", result).Observe(time.Since(start).Seconds())
	return prices, err
}

func (c *Coingecko) getRates(ctx context.Context) ([]types.TokenPrice, error) {
	ids := make([]string, 0, len(CoinSymbols))
	for id := range CoinSymbols {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/simple/price?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "http.NewRequestWithContext failed: ")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "client.Do failed: ")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New("unexpected status " + strconv.Itoa(resp.StatusCode))
	}

	var body map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "json.Decode failed: ")
	}
	prices := make([]types.TokenPrice, 0, len(body))
	for _, id := range ids {
		rate, ok := body[id][currency]
		if !ok {
			continue
		}
		prices = append(prices, types.TokenPrice{Name: CoinSymbols[id], Price: rate})
	}
	return prices, nil
}
