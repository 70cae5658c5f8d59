package pricefeed

import (
	"context"
	"time"

	"github.com/SakuraBurst/rewardbot/internal/referrer/metrics"
	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/go-faster/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type rateSource interface {
	GetRates(ctx context.Context) ([]types.TokenPrice, error)
}

type priceWriter interface {
	SaveTokenPrices(ctx context.Context, prices []types.TokenPrice) error
}

type priceInvalidator interface {
	Invalidate(ctx context.Context, symbols ...string) error
}

// Refresher periodically overwrites token prices from the price feed.
type Refresher struct {
	source   rateSource
	store    priceWriter
	cache    priceInvalidator
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
}

func NewRefresher(source rateSource, store priceWriter, cache priceInvalidator, schedule string, timeout time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{
		source:   source,
		store:    store,
		cache:    cache,
		cron:     cron.New(),
		schedule: schedule,
		timeout:  timeout,
		logger:   logger.Named("pricefeed"),
	}
}

func (r *Refresher) Refresh(ctx context.Context) error {
	prices, err := r.source.GetRates(ctx)
	if err != nil {
		return errors.Wrap(err, "source.GetRates failed: ")
	}
	if len(prices) == 0 {
		return nil
	}
	if err := r.store.SaveTokenPrices(ctx, prices); err != nil {
		return errors.Wrap(err, "store.SaveTokenPrices failed: ")
	}
	symbols := make([]string, 0, len(prices))
	for _, p := range prices {
		symbols = append(symbols, p.Name)
	}
	if err := r.cache.Invalidate(ctx, symbols...); err != nil {
		// stale cache entries expire with their ttl
		r.logger.Warn("cache.Invalidate failed", zap.Error(err))
	}
	return nil
}

// Start schedules the refresh job and runs it once right away.
func (r *Refresher) Start() error {
	if _, err := r.cron.AddFunc(r.schedule, r.run); err != nil {
		return errors.Wrap(err, "cron.AddFunc failed: ")
	}
	r.cron.Start()
	go r.run()
	return nil
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*r.timeout)
	defer cancel()
	if err := r.Refresh(ctx); err != nil {
		metrics.PriceRefreshTotal.WithLabelValues("error").Inc()
		r.logger.Error("Refresh failed", zap.Error(err))
		return
	}
	metrics.PriceRefreshTotal.WithLabelValues("ok").Inc()
}

func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}
