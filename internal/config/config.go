package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	DB         DBConfig         `mapstructure:"db"`
	Market     MarketConfig     `mapstructure:"market"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Projection ProjectionConfig `mapstructure:"projection"`
	Stream     StreamConfig     `mapstructure:"stream"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

// MarketConfig holds the settlement policy constants. Multipliers and prices
// are basis points (1.0000 = 10000); amounts are integers in the smallest
// denomination.
type MarketConfig struct {
	FeeBps      int64         `mapstructure:"fee_bps"`
	MinLeadTime time.Duration `mapstructure:"min_lead_time"`
	// BucketSeconds is the width of a settlement bucket. Target timestamps
	// are discretized as targetTimestamp / bucket_seconds.
	BucketSeconds int64 `mapstructure:"bucket_seconds"`

	SharpnessRefBps int64 `mapstructure:"sharpness_ref_bps"`
	SharpnessMaxBps int64 `mapstructure:"sharpness_max_bps"`
	SharpnessMinBps int64 `mapstructure:"sharpness_min_bps"`
	TimeBaseBps     int64 `mapstructure:"time_base_bps"`
	TimePerDayBps   int64 `mapstructure:"time_per_day_bps"`
	TimeMaxBps      int64 `mapstructure:"time_max_bps"`

	DefaultBatchSize int `mapstructure:"default_batch_size"`
	MaxBatchSize     int `mapstructure:"max_batch_size"`

	AdminToken string `mapstructure:"admin_token"`
}

type SettlementConfig struct {
	SweepEnabled  bool   `mapstructure:"sweep_enabled"`
	SweepSpec     string `mapstructure:"sweep_spec"`
	SweepBuckets  int    `mapstructure:"sweep_buckets"`
	SweepMaxCount int    `mapstructure:"sweep_max_count"`
}

type ProjectionConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	CursorName   string        `mapstructure:"cursor_name"`
}

type StreamConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	SendBuffer int  `mapstructure:"send_buffer"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")

	v.SetDefault("market.fee_bps", 100)
	v.SetDefault("market.min_lead_time", "24h")
	v.SetDefault("market.bucket_seconds", 3600)
	v.SetDefault("market.sharpness_ref_bps", 1000)
	v.SetDefault("market.sharpness_max_bps", 20000)
	v.SetDefault("market.sharpness_min_bps", 2500)
	v.SetDefault("market.time_base_bps", 10000)
	v.SetDefault("market.time_per_day_bps", 250)
	v.SetDefault("market.time_max_bps", 20000)
	v.SetDefault("market.default_batch_size", 50)
	v.SetDefault("market.max_batch_size", 500)

	v.SetDefault("settlement.sweep_enabled", true)
	v.SetDefault("settlement.sweep_spec", "@every 30s")
	v.SetDefault("settlement.sweep_buckets", 10)
	v.SetDefault("settlement.sweep_max_count", 50)

	v.SetDefault("projection.enabled", true)
	v.SetDefault("projection.poll_interval", "2s")
	v.SetDefault("projection.batch_size", 200)
	v.SetDefault("projection.cursor_name", "market_projection")

	v.SetDefault("stream.enabled", true)
	v.SetDefault("stream.send_buffer", 64)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
