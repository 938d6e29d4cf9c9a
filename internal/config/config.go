package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/BICAS-web3/Backend/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Hub      HubConfig      `mapstructure:"hub"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Export   ExportConfig   `mapstructure:"export"`
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

// ServerConfig covers the HTTP/websocket boundary.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PageSize        int           `mapstructure:"page_size"`
}

// Addr renders the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WatcherConfig governs per-network log polling.
type WatcherConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Backoff      time.Duration `mapstructure:"backoff"`
	BlockWindow  uint64        `mapstructure:"block_window"`
}

// PipelineConfig sizes the ingestion channels.
type PipelineConfig struct {
	BroadcastBuffer int `mapstructure:"broadcast_buffer"`
	EnricherBuffer  int `mapstructure:"enricher_buffer"`
}

// HubConfig tunes realtime connections.
type HubConfig struct {
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"`
	MaxSubscriptions  int           `mapstructure:"max_subscriptions"`
}

// OracleConfig parameterises the on-chain price oracle.
type OracleConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	NetworkID        int64         `mapstructure:"network_id"`
	Interval         time.Duration `mapstructure:"interval"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	RouterAddress    string        `mapstructure:"router_address"`
	BridgeAddress    string        `mapstructure:"bridge_address"`
	StableAddress    string        `mapstructure:"stable_address"`
	RouterABIPath    string        `mapstructure:"router_abi_path"`
	AmountInDecimals int32         `mapstructure:"amount_in_decimals"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BICAS")
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
	v.SetDefault("app.name", "bicas-backend")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8282)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.page_size", 50)

	v.SetDefault("watcher.poll_interval", "30s")
	v.SetDefault("watcher.backoff", "10s")
	v.SetDefault("watcher.block_window", uint64(1000))

	v.SetDefault("pipeline.broadcast_buffer", 256)
	v.SetDefault("pipeline.enricher_buffer", 64)

	v.SetDefault("hub.keepalive_interval", "5s")
	v.SetDefault("hub.max_subscriptions", 100)

	v.SetDefault("oracle.enabled", false)
	v.SetDefault("oracle.interval", "3m")
	v.SetDefault("oracle.retry_delay", "3m")
	v.SetDefault("oracle.amount_in_decimals", 18)

	v.SetDefault("export.max_data_points", 100000)
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
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid tcp port")
	}
	if c.Server.PageSize <= 0 {
		return fmt.Errorf("server.page_size must be greater than zero")
	}
	if c.Watcher.PollInterval <= 0 {
		return fmt.Errorf("watcher.poll_interval must be greater than zero")
	}
	if c.Watcher.BlockWindow == 0 {
		return fmt.Errorf("watcher.block_window must be greater than zero")
	}
	if c.Pipeline.BroadcastBuffer <= 0 {
		return fmt.Errorf("pipeline.broadcast_buffer must be greater than zero")
	}
	if c.Hub.KeepaliveInterval <= 0 {
		return fmt.Errorf("hub.keepalive_interval must be greater than zero")
	}
	if c.Hub.MaxSubscriptions <= 0 {
		return fmt.Errorf("hub.max_subscriptions must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Oracle.Enabled {
		if c.Oracle.NetworkID == 0 {
			return fmt.Errorf("oracle.network_id must be configured")
		}
		if c.Oracle.RouterAddress == "" || c.Oracle.BridgeAddress == "" || c.Oracle.StableAddress == "" {
			return fmt.Errorf("oracle router, bridge and stable addresses must all be configured")
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
