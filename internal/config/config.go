package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"mtgprices/internal/logging"
	"mtgprices/internal/providers"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// CatalogConfig locates the canonical card catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// ProviderConfig is the per-source connectivity block.
type ProviderConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	CallsPerSecond float64       `mapstructure:"calls_per_second"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	// Credentials; absence degrades to unauthenticated mode.
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	Token        string `mapstructure:"token"`
}

// ProvidersConfig groups every supported source.
type ProvidersConfig struct {
	CardKingdom ProviderConfig `mapstructure:"cardkingdom"`
	TCGPlayer   ProviderConfig `mapstructure:"tcgplayer"`
	CardHoarder ProviderConfig `mapstructure:"cardhoarder"`
	CardMarket  ProviderConfig `mapstructure:"cardmarket"`
	// Precedence orders the cross-provider merge; later entries win on a
	// UUID collision.
	Precedence []string `mapstructure:"precedence"`
}

// PipelineConfig bounds orchestration concurrency.
type PipelineConfig struct {
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"`
}

// ArchiveConfig governs history retention.
type ArchiveConfig struct {
	RetentionMonths int `mapstructure:"retention_months"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// SchedulerConfig governs run cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines run-report routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram run-report channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MTGPRICES")
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
	v.SetDefault("app.name", "mtgprices")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("catalog.path", "AllPrintings.json")

	v.SetDefault("providers.cardkingdom.enabled", true)
	v.SetDefault("providers.cardkingdom.base_url", "https://api.cardkingdom.com")
	v.SetDefault("providers.cardkingdom.calls_per_second", 2.0)
	v.SetDefault("providers.cardkingdom.request_timeout", "30s")

	v.SetDefault("providers.tcgplayer.enabled", true)
	v.SetDefault("providers.tcgplayer.base_url", "https://api.tcgplayer.com")
	v.SetDefault("providers.tcgplayer.calls_per_second", 8.0)
	v.SetDefault("providers.tcgplayer.request_timeout", "30s")

	v.SetDefault("providers.cardhoarder.enabled", true)
	v.SetDefault("providers.cardhoarder.base_url", "https://www.cardhoarder.com")
	v.SetDefault("providers.cardhoarder.calls_per_second", 1.0)
	v.SetDefault("providers.cardhoarder.request_timeout", "30s")

	v.SetDefault("providers.cardmarket.enabled", true)
	v.SetDefault("providers.cardmarket.base_url", "https://downloads.s3.cardmarket.com")
	v.SetDefault("providers.cardmarket.calls_per_second", 1.0)
	v.SetDefault("providers.cardmarket.request_timeout", "30s")

	v.SetDefault("providers.precedence", []string{
		"cardmarket", "cardhoarder", "tcgplayer", "cardkingdom",
	})

	v.SetDefault("pipeline.max_concurrent", 32)
	v.SetDefault("pipeline.provider_timeout", "10m")

	v.SetDefault("archive.retention_months", 3)

	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6d746770))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

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
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path must be configured")
	}
	if c.Pipeline.MaxConcurrent <= 0 {
		return fmt.Errorf("pipeline.max_concurrent must be greater than zero")
	}
	if c.Archive.RetentionMonths <= 0 {
		return fmt.Errorf("archive.retention_months must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	for _, name := range c.Providers.Precedence {
		if _, err := providers.ParseKind(name); err != nil {
			return fmt.Errorf("providers.precedence: %w", err)
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be configured")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be configured")
		}
	}
	return nil
}

// ProviderByKind returns the configuration block for one provider kind.
func (c *Config) ProviderByKind(kind providers.Kind) ProviderConfig {
	switch kind {
	case providers.KindCardKingdom:
		return c.Providers.CardKingdom
	case providers.KindTCGPlayer:
		return c.Providers.TCGPlayer
	case providers.KindCardHoarder:
		return c.Providers.CardHoarder
	case providers.KindCardMarket:
		return c.Providers.CardMarket
	default:
		return ProviderConfig{}
	}
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
