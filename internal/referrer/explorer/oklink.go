package explorer

import (
	"context"
	"net/http"
	"net/url"
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
)

const transactionFillsPath = "/api/v5/explorer/transaction/transaction-fills"

var ErrNoData = errors.New("explorer returned no data")

type response struct {
	Code string                   `json:"code"`
	Msg  string                   `json:"msg"`
	Data []types.ChainTransaction `json:"data"`
}

// OkLink looks transactions up through the OkLink explorer API.
type OkLink struct {
	client  heimdall.Doer
	baseURL string
	apiKey  string
}

func NewOkLink(cfg config.Explorer) *OkLink {
	client := httpclient.NewClient(
		httpclient.WithHTTPTimeout(cfg.Timeout),
		httpclient.WithRetryCount(cfg.RetryCount),
		httpclient.WithRetrier(heimdall.NewRetrier(heimdall.NewConstantBackoff(200*time.Millisecond, 100*time.Millisecond))),
	)
	return &OkLink{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.ApiKey,
	}
}

func (o *OkLink) GetTransaction(ctx context.Context, hash, chain string) (*types.ChainTransaction, error) {
	start := time.Now()
	trx, err := o.getTransaction(ctx, hash, chain)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.ExternalRequestDuration.WithLabelValues("explorer", result).Observe(time.Since(start).Seconds())
	return trx, err
}

func (o *OkLink) getTransaction(ctx context.Context, hash, chain string) (*types.ChainTransaction, error) {
	query := url.Values{}
	query.Set("chainShortName", chain)
	query.Set("txid", hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+transactionFillsPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "http.NewRequestWithContext failed: ")
	}
	req.Header.Set("Ok-Access-Key", o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "client.Do failed: ")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New("unexpected status " + strconv.Itoa(resp.StatusCode))
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "json.Decode failed: ")
	}
	if body.Code != "0" {
		return nil, errors.Errorf("explorer error %s: %s", body.Code, body.Msg)
	}
	if len(body.Data) == 0 {
		return nil, ErrNoData
	}
	return &body.Data[0], nil
}
