package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"nasdaq-drop-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Market    MarketConfig    `mapstructure:"market"`
	Watchlist WatchlistConfig `mapstructure:"watchlist"`
	Session   SessionConfig   `mapstructure:"session"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
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
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs collection cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// MarketConfig covers the upstream quote API.
type MarketConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	RequestsPerSec  int           `mapstructure:"requests_per_sec"`
	MaxRetryElapsed time.Duration `mapstructure:"max_retry_elapsed"`
}

// WatchlistConfig lists the tracked symbols and the benchmark instrument.
type WatchlistConfig struct {
	Symbols         []string `mapstructure:"symbols"`
	BenchmarkSymbol string   `mapstructure:"benchmark_symbol"`
}

// SessionConfig parameterises the exchange session clock.
type SessionConfig struct {
	Timezone string   `mapstructure:"timezone"`
	Holidays []string `mapstructure:"holidays"`
}

// AlertingConfig defines detection thresholds and routing.
type AlertingConfig struct {
	Enabled                  bool           `mapstructure:"enabled"`
	DropThresholdPct         float64        `mapstructure:"drop_threshold_pct"`
	HourlyDropThresholdPct   float64        `mapstructure:"hourly_drop_threshold_pct"`
	RelativeDropThresholdPct float64        `mapstructure:"relative_drop_threshold_pct"`
	MinPriceForAlert         float64        `mapstructure:"min_price_for_alert"`
	MinAbsoluteMove          float64        `mapstructure:"min_absolute_move"`
	Cooldown                 time.Duration  `mapstructure:"cooldown"`
	Channels                 []string       `mapstructure:"channels"`
	Telegram                 TelegramConfig `mapstructure:"telegram"`
	Email                    EmailConfig    `mapstructure:"email"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// EmailConfig describes the SMTP alert channel.
type EmailConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
	Password string   `mapstructure:"password"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NASDAQWATCHER")
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
	v.SetDefault("app.name", "nasdaqwatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "30m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6e647771))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("market.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("market.request_timeout", "10s")
	v.SetDefault("market.user_agent", "nasdaqwatcher/1.0")
	v.SetDefault("market.requests_per_sec", 5)
	v.SetDefault("market.max_retry_elapsed", "30s")

	v.SetDefault("watchlist.symbols", defaultWatchlist)
	v.SetDefault("watchlist.benchmark_symbol", "QQQ")

	v.SetDefault("session.timezone", "America/New_York")
	v.SetDefault("session.holidays", []string{})

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.drop_threshold_pct", 5.0)
	v.SetDefault("alerting.hourly_drop_threshold_pct", 3.0)
	v.SetDefault("alerting.relative_drop_threshold_pct", 3.0)
	v.SetDefault("alerting.min_price_for_alert", 5.0)
	v.SetDefault("alerting.min_absolute_move", 0.50)
	v.SetDefault("alerting.cooldown", "60m")
	v.SetDefault("alerting.channels", []string{"email"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.email.enabled", false)
	v.SetDefault("alerting.email.port", 587)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if len(c.Watchlist.Symbols) == 0 {
		return fmt.Errorf("watchlist.symbols must not be empty")
	}
	if c.Watchlist.BenchmarkSymbol == "" {
		return fmt.Errorf("watchlist.benchmark_symbol is required")
	}
	if c.Alerting.DropThresholdPct < 0 || c.Alerting.HourlyDropThresholdPct < 0 || c.Alerting.RelativeDropThresholdPct < 0 {
		return fmt.Errorf("alerting thresholds cannot be negative")
	}
	if c.Alerting.Cooldown < 0 {
		return fmt.Errorf("alerting.cooldown cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Email.Enabled {
		if c.Alerting.Email.Host == "" || c.Alerting.Email.From == "" || len(c.Alerting.Email.To) == 0 {
			return fmt.Errorf("alerting.email requires host, from, and to")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// defaultWatchlist is a liquid NASDAQ-100 subset; override per deployment.
var defaultWatchlist = []string{
	"AAPL", "MSFT", "AMZN", "NVDA", "META", "GOOGL", "GOOG", "TSLA", "AVGO", "COST",
	"NFLX", "AMD", "PEP", "ADBE", "CSCO", "TMUS", "INTC", "CMCSA", "TXN", "QCOM",
	"INTU", "AMGN", "HON", "AMAT", "ISRG", "BKNG", "SBUX", "VRTX", "MDLZ", "GILD",
	"QQQ",
}
