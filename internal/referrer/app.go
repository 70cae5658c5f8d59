package referrer

import (
	"context"
	"os"
	"os/signal"

	"github.com/SakuraBurst/rewardbot/internal/pkg/logger"
	"github.com/SakuraBurst/rewardbot/internal/referrer/config"
	"github.com/SakuraBurst/rewardbot/internal/referrer/controller"
	"github.com/SakuraBurst/rewardbot/internal/referrer/database"
	"github.com/SakuraBurst/rewardbot/internal/referrer/explorer"
	"github.com/SakuraBurst/rewardbot/internal/referrer/locker"
	"github.com/SakuraBurst/rewardbot/internal/referrer/notifier"
	"github.com/SakuraBurst/rewardbot/internal/referrer/pricefeed"
	"github.com/SakuraBurst/rewardbot/internal/referrer/router"
	"github.com/SakuraBurst/rewardbot/internal/referrer/settings"
	"github.com/SakuraBurst/rewardbot/internal/referrer/storage"
	"github.com/SakuraBurst/rewardbot/internal/referrer/validator"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	router    *router.HttpRouter
	refresher *pricefeed.Refresher
	logger    *zap.Logger
}

func (a *App) Run() error {
	if err := a.refresher.Start(); err != nil {
		return errors.Wrap(err, "refresher.Start failed: ")
	}
	sisChan := make(chan os.Signal, 1)
	go func() {
		if err := a.router.Run(); err != nil {
			a.logger.Error("router.Run failed: ", zap.Error(err))
			sisChan <- os.Interrupt
		}
	}()
	return a.gracefulShutdown(sisChan)
}

func (a *App) gracefulShutdown(sisChan chan os.Signal) error {
	signal.Notify(sisChan, os.Interrupt)
	<-sisChan
	a.refresher.Stop()
	err := a.router.Close()
	if err != nil {
		a.logger.Error("router.Close failed: ", zap.Error(err))
	}
	return a.logger.Sync()
}

func NewApp(cfg *config.Config) *App {
	log, err := logger.InitLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	ctx := context.Background()
	db, err := database.NewDB(cfg, log)
	if err != nil {
		panic(err)
	}
	defaults, err := cfg.Defaults.SiteSettings()
	if err != nil {
		panic(err)
	}
	siteSettings := settings.NewHolder(db, defaults)
	if err := siteSettings.Load(ctx); err != nil {
		panic(err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		panic(err)
	}
	prices := pricefeed.NewCache(rdb, db, cfg.Redis.PriceTTL)

	minValue, err := cfg.Explorer.MinValueDecimal()
	if err != nil {
		panic(err)
	}
	checker := validator.NewTransactionChecker(explorer.NewOkLink(cfg.Explorer), db, db, prices,
		cfg.Explorer.Symbol, minValue, cfg.Explorer.Timeout, log)

	files, err := storage.NewS3(ctx, cfg.Storage)
	if err != nil {
		panic(err)
	}
	bot, err := notifier.NewTelegram(cfg.BotToken, cfg.Notifier.RatePerSecond, log)
	if err != nil {
		panic(err)
	}

	c := controller.NewController(cfg, db, controller.Collaborators{
		Checker:  checker,
		Files:    files,
		Locker:   locker.NewRedis(rdb, cfg.Submission, log),
		Settings: siteSettings,
		Notifier: bot,
	}, log, func() error {
		db.Conn.Close()
		return rdb.Close()
	})
	refresher := pricefeed.NewRefresher(pricefeed.NewCoingecko(cfg.PriceFeed), db, prices,
		cfg.PriceFeed.Schedule, cfg.PriceFeed.Timeout, log)
	r := router.CreateRouter(c, cfg, log)
	return &App{
		router:    r,
		refresher: refresher,
		logger:    log,
	}
}
