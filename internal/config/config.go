package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/rewired-gh/lpwatch/internal/logger"
)

// Config represents the complete application configuration
type Config struct {
	RPC      RPCConfig      `mapstructure:"rpc"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// RPCConfig holds the ledger node endpoint used for metadata reads and crawling
type RPCConfig struct {
	URL               string  `mapstructure:"url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// FilterConfig holds the relevance gate configuration
type FilterConfig struct {
	ClientAccountFiltering bool   `mapstructure:"client_account_filtering"`
	WatchlistPath          string `mapstructure:"watchlist_path"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken            string        `mapstructure:"bot_token"`
	ChatID              string        `mapstructure:"chat_id"`
	ParseMode           string        `mapstructure:"parse_mode"` // "" = plain text, or "MarkdownV2"
	GlobalRate          float64       `mapstructure:"global_rate"`
	PrivateChatInterval time.Duration `mapstructure:"private_chat_interval"`
	GroupChatPerMinute  int           `mapstructure:"group_chat_per_minute"`
	Commands            bool          `mapstructure:"commands"`
}

// CrawlerConfig holds the transaction crawler datasource configuration
type CrawlerConfig struct {
	ProgramID             string        `mapstructure:"program_id"`
	BatchLimit            int           `mapstructure:"batch_limit"`
	PollInterval          time.Duration `mapstructure:"poll_interval"`
	Commitment            string        `mapstructure:"commitment"`
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests"`
}

// MetadataConfig holds token metadata cache configuration
type MetadataConfig struct {
	CacheEnabled    bool          `mapstructure:"cache_enabled"`
	CacheMaxEntries int64         `mapstructure:"cache_max_entries"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`    // 0 = never expire
	NegativeTTL     time.Duration `mapstructure:"negative_ttl"` // 0 = failures are not cached
}

// StorageConfig holds crawler cursor persistence configuration
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Namespace  string `mapstructure:"namespace"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envBindings maps config keys to the bare environment variables the
// deployment has always used, in addition to the LPWATCH_ prefixed form.
var envBindings = map[string]string{
	"rpc.url":                         "SOLANA_RPC",
	"filter.client_account_filtering": "CLIENT_ACCOUNT_FILTERING",
	"telegram.bot_token":              "TELEGRAM_BOT_TOKEN",
	"telegram.chat_id":                "TELEGRAM_GROUP_ID",
}

// Load reads configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("LPWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "LPWATCH_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// A malformed toggle disables filtering rather than aborting startup.
	v.Set(filteringKey, parseToggle(filteringKey, v.Get(filteringKey)))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

const filteringKey = "filter.client_account_filtering"

// parseToggle reads a boolean from a file or environment value. Anything
// strconv.ParseBool rejects is logged and treated as false.
func parseToggle(key string, raw interface{}) bool {
	switch val := raw.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err != nil {
			logger.Warn("Invalid value %q for %s, using false", val, key)
			return false
		}
		return b
	default:
		logger.Warn("Invalid value %v for %s, using false", val, key)
		return false
	}
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.url", "")
	v.SetDefault("rpc.requests_per_second", 5.0)
	v.SetDefault("rpc.burst", 5)

	v.SetDefault("filter.client_account_filtering", false)
	v.SetDefault("filter.watchlist_path", "config.json")

	v.SetDefault("telegram.parse_mode", "")
	v.SetDefault("telegram.global_rate", 30.0)
	v.SetDefault("telegram.private_chat_interval", "1s")
	v.SetDefault("telegram.group_chat_per_minute", 20)
	v.SetDefault("telegram.commands", true)

	v.SetDefault("crawler.program_id", "LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo")
	v.SetDefault("crawler.batch_limit", 10)
	v.SetDefault("crawler.poll_interval", "5s")
	v.SetDefault("crawler.commitment", "finalized")
	v.SetDefault("crawler.max_concurrent_requests", 1)

	v.SetDefault("metadata.cache_enabled", true)
	v.SetDefault("metadata.cache_max_entries", 10000)
	v.SetDefault("metadata.cache_ttl", "1h")
	v.SetDefault("metadata.negative_ttl", "30s")

	v.SetDefault("storage.db_path", "./data/lpwatch.db")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", ":9102")
	v.SetDefault("metrics.namespace", "lpwatch")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate RPC config
	if c.RPC.RequestsPerSecond <= 0 {
		return fmt.Errorf("rpc.requests_per_second must be positive")
	}
	if c.RPC.Burst < 1 {
		return fmt.Errorf("rpc.burst must be at least 1")
	}

	// Validate Telegram config
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if _, err := strconv.ParseInt(c.Telegram.ChatID, 10, 64); err != nil {
		return fmt.Errorf("telegram.chat_id must be an integer: %w", err)
	}
	if c.Telegram.ParseMode != "" && c.Telegram.ParseMode != "MarkdownV2" {
		return fmt.Errorf("telegram.parse_mode must be empty or MarkdownV2")
	}
	if c.Telegram.GlobalRate <= 0 {
		return fmt.Errorf("telegram.global_rate must be positive")
	}
	if c.Telegram.PrivateChatInterval <= 0 {
		return fmt.Errorf("telegram.private_chat_interval must be positive")
	}
	if c.Telegram.GroupChatPerMinute < 1 {
		return fmt.Errorf("telegram.group_chat_per_minute must be at least 1")
	}

	// Validate Crawler config
	if _, err := solana.PublicKeyFromBase58(c.Crawler.ProgramID); err != nil {
		return fmt.Errorf("crawler.program_id is not a valid address: %w", err)
	}
	if c.Crawler.BatchLimit < 1 || c.Crawler.BatchLimit > 1000 {
		return fmt.Errorf("crawler.batch_limit must be between 1 and 1000")
	}
	if c.Crawler.PollInterval < time.Second {
		return fmt.Errorf("crawler.poll_interval must be at least 1 second")
	}
	validCommitments := map[string]bool{"confirmed": true, "finalized": true}
	if !validCommitments[c.Crawler.Commitment] {
		return fmt.Errorf("crawler.commitment must be one of: confirmed, finalized")
	}
	if c.Crawler.MaxConcurrentRequests < 1 {
		return fmt.Errorf("crawler.max_concurrent_requests must be at least 1")
	}

	// Validate Metadata config
	if c.Metadata.CacheEnabled && c.Metadata.CacheMaxEntries < 1 {
		return fmt.Errorf("metadata.cache_max_entries must be at least 1 when the cache is enabled")
	}
	if c.Metadata.CacheTTL < 0 || c.Metadata.NegativeTTL < 0 {
		return fmt.Errorf("metadata cache TTLs must not be negative")
	}

	// Validate Metrics config
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
