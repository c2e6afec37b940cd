package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"onchain-intel/internal/logging"
	"onchain-intel/internal/ranking"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	ClickHouse  ClickHouseConfig  `mapstructure:"clickhouse"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Ranking     ranking.Config    `mapstructure:"ranking"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Universe    UniverseConfig    `mapstructure:"universe"`
	Ethereum    EthereumConfig    `mapstructure:"ethereum"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Export      ExportConfig      `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// ClickHouseConfig points the transfer ledger at ClickHouse instead of PostgreSQL.
type ClickHouseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig configures the aggregate cache.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// KafkaConfig configures the transfer ingestion consumer.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// Enabled reports whether a broker list was configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// SchedulerConfig governs ranking cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	SyncUniverse    bool          `mapstructure:"sync_universe"`
}

// AggregationConfig tunes entity aggregation.
type AggregationConfig struct {
	Workers          int           `mapstructure:"workers"`
	WindowDays       []int         `mapstructure:"window_days"`
	DefaultWindow    int           `mapstructure:"default_window"`
	TransactionLimit int           `mapstructure:"transaction_limit"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
}

// SupportsWindow reports whether days is an allowed flow window.
func (a AggregationConfig) SupportsWindow(days int) bool {
	for _, w := range a.WindowDays {
		if w == days {
			return true
		}
	}
	return false
}

// UniverseConfig drives CoinGecko ingestion.
type UniverseConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	PerPage        int           `mapstructure:"per_page"`
	MaxPages       int           `mapstructure:"max_pages"`
	MinMarketCap   float64       `mapstructure:"min_market_cap"`
	MinVolume24h   float64       `mapstructure:"min_volume_24h"`
	MaxTokens      int           `mapstructure:"max_tokens"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	Platforms      []string      `mapstructure:"platforms"`
}

// EthereumConfig covers on-chain token metadata lookups.
type EthereumConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// MetricsConfig exposes prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ONCHAINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "onchain-intel")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("kafka.topic", "transfers.ingested")
	v.SetDefault("kafka.group_id", "onchain-intel-cache")

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x72616e6b))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.sync_universe", false)

	defaults := ranking.DefaultConfig()
	v.SetDefault("ranking.weights.market_cap", defaults.Weights.MarketCap)
	v.SetDefault("ranking.weights.volume", defaults.Weights.Volume)
	v.SetDefault("ranking.weights.momentum", defaults.Weights.Momentum)
	v.SetDefault("ranking.weights.engine_confidence", defaults.Weights.EngineConfidence)
	v.SetDefault("ranking.thresholds.buy", defaults.Thresholds.Buy)
	v.SetDefault("ranking.thresholds.watch", defaults.Thresholds.Watch)
	v.SetDefault("ranking.engine_confidence", defaults.EngineConfidence)
	v.SetDefault("ranking.engine_risk", defaults.EngineRisk)
	v.SetDefault("ranking.max_per_bucket", defaults.MaxPerBucket)

	v.SetDefault("aggregation.workers", 5)
	v.SetDefault("aggregation.window_days", []int{1, 7, 30})
	v.SetDefault("aggregation.default_window", 7)
	v.SetDefault("aggregation.transaction_limit", 20)
	v.SetDefault("aggregation.cache_ttl", "2m")

	v.SetDefault("universe.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("universe.per_page", 250)
	v.SetDefault("universe.max_pages", 4)
	v.SetDefault("universe.min_market_cap", 1_000_000.0)
	v.SetDefault("universe.min_volume_24h", 100_000.0)
	v.SetDefault("universe.max_tokens", 1000)
	v.SetDefault("universe.stale_after", "72h")
	v.SetDefault("universe.request_timeout", "15s")
	v.SetDefault("universe.user_agent", "onchain-intel/1.0")
	v.SetDefault("universe.platforms", []string{"ethereum", "arbitrum-one", "polygon-pos"})

	v.SetDefault("ethereum.request_timeout", "10s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9102")

	v.SetDefault("export.max_data_points", 366)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if err := c.Ranking.Validate(); err != nil {
		return err
	}
	if len(c.Aggregation.WindowDays) == 0 {
		return fmt.Errorf("aggregation.window_days cannot be empty")
	}
	for _, d := range c.Aggregation.WindowDays {
		if d <= 0 {
			return fmt.Errorf("aggregation.window_days must be positive, got %d", d)
		}
	}
	if !c.Aggregation.SupportsWindow(c.Aggregation.DefaultWindow) {
		return fmt.Errorf("aggregation.default_window %d is not listed in aggregation.window_days", c.Aggregation.DefaultWindow)
	}
	if c.Aggregation.Workers <= 0 {
		return fmt.Errorf("aggregation.workers must be greater than zero")
	}
	if c.Aggregation.TransactionLimit <= 0 {
		return fmt.Errorf("aggregation.transaction_limit must be greater than zero")
	}
	if c.Universe.StaleAfter <= 0 {
		return fmt.Errorf("universe.stale_after must be greater than zero")
	}
	if c.Universe.PerPage <= 0 || c.Universe.PerPage > 250 {
		return fmt.Errorf("universe.per_page must lie within [1, 250]")
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when kafka.brokers is set")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveWindow returns either the CLI override or config default.
func (c *Config) ResolveWindow(override int) int {
	if override > 0 {
		return override
	}
	return c.Aggregation.DefaultWindow
}
