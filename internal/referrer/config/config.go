package config

import (
	"flag"
	"os"
	"time"

	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/go-faster/errors"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Env       string `yaml:"env" env:"ENV" env-default:"local"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	HttpPort  string `yaml:"http_port" env:"HTTP_PORT" env-default:"8080"`
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	BotToken  string `yaml:"bot_token" env:"BOT_TOKEN" env-required:"true"`
	// ApiToken authenticates the bot against the client routes.
	ApiToken string `yaml:"api_token" env:"API_TOKEN" env-required:"true"`

	Admin      Admin      `yaml:"admin"`
	Postgres   Postgres   `yaml:"postgres"`
	Redis      Redis      `yaml:"redis"`
	Explorer   Explorer   `yaml:"explorer"`
	PriceFeed  PriceFeed  `yaml:"price_feed"`
	Storage    Storage    `yaml:"storage"`
	Notifier   Notifier   `yaml:"notifier"`
	Submission Submission `yaml:"submission"`
	Defaults   Defaults   `yaml:"defaults"`
}

type Admin struct {
	UserName string `yaml:"user_name" env:"ADMIN_USER_NAME" env-default:"admin"`
	// PasswordHash is a bcrypt hash.
	PasswordHash string        `yaml:"password_hash" env:"ADMIN_PASSWORD_HASH"`
	TokenTTL     time.Duration `yaml:"token_ttl" env:"ADMIN_TOKEN_TTL" env-default:"72h"`
}

type Postgres struct {
	DSN      string `yaml:"dsn" env:"POSTGRES_DSN" env-required:"true"`
	MaxConns int32  `yaml:"max_conns" env:"POSTGRES_MAX_CONNS" env-default:"10"`
}

type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	PriceTTL time.Duration `yaml:"price_ttl" env:"REDIS_PRICE_TTL" env-default:"10m"`
}

type Explorer struct {
	BaseURL    string        `yaml:"base_url" env:"OKLINK_BASE_URL" env-default:"https://www.oklink.com"`
	ApiKey     string        `yaml:"api_key" env:"OKLINK_API_KEY"`
	Timeout    time.Duration `yaml:"timeout" env:"OKLINK_TIMEOUT" env-default:"10s"`
	RetryCount int           `yaml:"retry_count" env:"OKLINK_RETRY_COUNT" env-default:"0"`
	// Symbol and MinValue describe the token transfer a transaction proof must carry.
	Symbol   string `yaml:"symbol" env:"TRX_PROOF_SYMBOL" env-default:"ALM"`
	MinValue string `yaml:"min_value" env:"TRX_PROOF_MIN_VALUE" env-default:"10"`
}

type PriceFeed struct {
	BaseURL  string        `yaml:"base_url" env:"COINGECKO_BASE_URL" env-default:"https://api.coingecko.com/api/v3"`
	Timeout  time.Duration `yaml:"timeout" env:"COINGECKO_TIMEOUT" env-default:"10s"`
	Schedule string        `yaml:"schedule" env:"PRICE_REFRESH_SCHEDULE" env-default:"@every 10m"`
}

type Storage struct {
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT"`
	Region          string `yaml:"region" env:"S3_REGION" env-default:"auto"`
	Bucket          string `yaml:"bucket" env:"S3_BUCKET" env-default:"proofs"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID"`
	AccessKeySecret string `yaml:"access_key_secret" env:"S3_ACCESS_KEY_SECRET"`
}

type Notifier struct {
	RatePerSecond float64 `yaml:"rate_per_second" env:"NOTIFIER_RATE" env-default:"25"`
}

type Submission struct {
	PerMinute int           `yaml:"per_minute" env:"SUBMISSIONS_PER_MINUTE" env-default:"10"`
	LockTTL   time.Duration `yaml:"lock_ttl" env:"SUBMISSION_LOCK_TTL" env-default:"30s"`
}

// Defaults seed site settings when the settings row does not exist yet.
type Defaults struct {
	WithdrawalMinAmount string `yaml:"withdrawal_min_amount" env:"DEFAULT_WITHDRAWAL_MIN_AMOUNT" env-default:"5"`
	ReferralCost        string `yaml:"referral_cost" env:"DEFAULT_REFERRAL_COST" env-default:"0.15"`
}

func (e Explorer) MinValueDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(e.MinValue)
}

func (d Defaults) SiteSettings() (types.SiteSettings, error) {
	minAmount, err := decimal.NewFromString(d.WithdrawalMinAmount)
	if err != nil {
		return types.SiteSettings{}, errors.Wrap(err, "withdrawal_min_amount")
	}
	cost, err := decimal.NewFromString(d.ReferralCost)
	if err != nil {
		return types.SiteSettings{}, errors.Wrap(err, "referral_cost")
	}
	return types.SiteSettings{WithdrawalMinAmount: minAmount, ReferralCost: cost}, nil
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}
	return MustLoadPath(path)
}

func MustLoadPath(path string) *Config {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file does not exist: " + path)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}
	return &cfg
}

// fetchConfigPath checks the -config flag first, then CONFIG_PATH.
func fetchConfigPath() string {
	var res string
	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()
	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}
