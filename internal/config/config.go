// Package config loads the runtime configuration. The resulting Config
// value is passed into constructors explicitly; nothing in the process
// reads configuration from globals.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full runtime configuration.
type Config struct {
	HTTP        HTTP        `yaml:"http"`
	Log         Log         `yaml:"log"`
	Postgres    Postgres    `yaml:"postgres"`
	Clickhouse  Clickhouse  `yaml:"clickhouse"`
	Marketplace Marketplace `yaml:"marketplace"`
	Filter      Filter      `yaml:"filter"`
	Limiter     Limiter     `yaml:"limiter"`
	Scheduler   Scheduler   `yaml:"scheduler"`
}

type HTTP struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY" env-default:"false"`
}

type Postgres struct {
	DSN string `yaml:"dsn" env:"POSTGRES_DSN" env-default:""`
}

type Clickhouse struct {
	// DSN is optional; when empty the outcome log is kept in memory.
	DSN string `yaml:"dsn" env:"CLICKHOUSE_DSN" env-default:""`
}

type Marketplace struct {
	BaseURL           string        `yaml:"base_url" env:"MARKETPLACE_BASE_URL" env-default:""`
	WSEndpoint        string        `yaml:"ws_endpoint" env:"MARKETPLACE_WS_ENDPOINT" env-default:""`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"MARKETPLACE_RPS" env-default:"2"`
	Timeout           time.Duration `yaml:"timeout" env:"MARKETPLACE_TIMEOUT" env-default:"15s"`
	PageSize          int           `yaml:"page_size" env:"MARKETPLACE_PAGE_SIZE" env-default:"50"`
}

// Filter holds the category-aware policy knobs. Minimums are in ETH
// except the stablecoin minimum, which is absolute USD.
type Filter struct {
	SaleMaxAge         time.Duration `yaml:"sale_max_age" env:"FILTER_SALE_MAX_AGE" env-default:"6h"`
	RegistrationMaxAge time.Duration `yaml:"registration_max_age" env:"FILTER_REGISTRATION_MAX_AGE" env-default:"6h"`
	BidMaxAge          time.Duration `yaml:"bid_max_age" env:"FILTER_BID_MAX_AGE" env-default:"30m"`

	DefaultMinETH  float64 `yaml:"default_min_eth" env:"FILTER_DEFAULT_MIN_ETH" env-default:"0.1"`
	StableMinUSD   float64 `yaml:"stable_min_usd" env:"FILTER_STABLE_MIN_USD" env-default:"1000"`
	Club999MinETH  float64 `yaml:"club_999_min_eth" env:"FILTER_999_MIN_ETH" env-default:"1"`
	Club10kMinETH  float64 `yaml:"club_10k_min_eth" env:"FILTER_10K_MIN_ETH" env-default:"0.5"`
	Club100kMinETH float64 `yaml:"club_100k_min_eth" env:"FILTER_100K_MIN_ETH" env-default:"0.25"`
}

type Limiter struct {
	DailyCap int           `yaml:"daily_cap" env:"LIMITER_DAILY_CAP" env-default:"100"`
	Window   time.Duration `yaml:"window" env:"LIMITER_WINDOW" env-default:"24h"`
}

type Scheduler struct {
	SalesInterval         time.Duration `yaml:"sales_interval" env:"SCHED_SALES_INTERVAL" env-default:"2m"`
	RegistrationsInterval time.Duration `yaml:"registrations_interval" env:"SCHED_REGISTRATIONS_INTERVAL" env-default:"5m"`
	BidsInterval          time.Duration `yaml:"bids_interval" env:"SCHED_BIDS_INTERVAL" env-default:"3m"`
	DispatchInterval      time.Duration `yaml:"dispatch_interval" env:"SCHED_DISPATCH_INTERVAL" env-default:"1m"`
	MaxLookback           time.Duration `yaml:"max_lookback" env:"SCHED_MAX_LOOKBACK" env-default:"2h"`
	PageCap               int           `yaml:"page_cap" env:"SCHED_PAGE_CAP" env-default:"10"`
	ErrorCeiling          int           `yaml:"error_ceiling" env:"SCHED_ERROR_CEILING" env-default:"5"`
}

// Load reads the config file when present and applies env overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
			return cfg, nil
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read config from env: %w", err)
	}
	return cfg, nil
}

// PerTagMinimums maps club tags to their ETH minimums.
func (f Filter) PerTagMinimums() map[string]float64 {
	return map[string]float64{
		"999club":  f.Club999MinETH,
		"10kclub":  f.Club10kMinETH,
		"100kclub": f.Club100kMinETH,
	}
}
