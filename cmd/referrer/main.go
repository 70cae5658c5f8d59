package main

import (
	"github.com/SakuraBurst/rewardbot/internal/referrer"
	"github.com/SakuraBurst/rewardbot/internal/referrer/config"
	"github.com/joho/godotenv"
)

func main() {
	// a missing .env is fine, the environment may be set by the runtime
	//nolint:errcheck
	godotenv.Load()
	// "./config/config.yaml"
	cfg := config.MustLoad()
	a := referrer.NewApp(cfg)
	if err := a.Run(); err != nil {
		panic(err)
	}
}
