// Package config provides configuration loading, validation, and management
// for the billing gateway. It handles reading from YAML files, environment
// variables, setting default values, and validating configuration parameters.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration parameters for all components
// of the gateway: logging, HTTP server, message store, billing backend,
// language model, poll loop, and the optional Telegram channel.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Billing  BillingConfig  `mapstructure:"billing"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Poller   PollerConfig   `mapstructure:"poller"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// LogConfig controls log level and output format.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig controls the HTTP API exposed to the chat UI.
type ServerConfig struct {
	ListenAddr   string   `mapstructure:"listen_addr"   validate:"required"`
	AllowOrigins []string `mapstructure:"allow_origins" validate:"min=1"`
}

// DatabaseConfig controls the SQLite message store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// BillingConfig controls the connection to the billing backend API.
type BillingConfig struct {
	BaseURL            string        `mapstructure:"base_url" validate:"required"`
	Timeout            time.Duration `mapstructure:"timeout"  validate:"min=1s,max=1m"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// LLMConfig controls the language-model service used for intent extraction.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key" validate:"required"`
	Model       string        `mapstructure:"model"   validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	TopP        float32       `mapstructure:"top_p"       validate:"min=0,max=1"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=5m"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" validate:"min=0"`
}

// PollerConfig controls the loop that drains unprocessed inbound messages.
type PollerConfig struct {
	Interval      time.Duration `mapstructure:"interval"       validate:"min=1s"`
	BatchSize     int           `mapstructure:"batch_size"     validate:"min=1,max=500"`
	MaxConcurrent int           `mapstructure:"max_concurrent" validate:"min=1,max=64"`
}

// TelegramConfig controls the optional Telegram chat channel.
// The channel is disabled when Token is empty.
type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

// Load loads and validates configuration from:
// 1. Default values
// 2. config.yaml file (optional)
// 3. BILLGATE_* environment variables
func Load() (*Config, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("BILLGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay, defaults plus env apply.
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", false)

	viper.SetDefault("server.listen_addr", ":5000")
	viper.SetDefault("server.allow_origins", []string{"*"})

	viper.SetDefault("database.path", "billgate.db")

	viper.SetDefault("billing.base_url", "https://localhost:7014/api/v1")
	viper.SetDefault("billing.timeout", 10*time.Second)
	viper.SetDefault("billing.insecure_skip_verify", false)

	viper.SetDefault("llm.model", "gemini-2.0-flash")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.top_p", 0.9)
	viper.SetDefault("llm.timeout", 15*time.Second)
	viper.SetDefault("llm.max_retries", 2)
	viper.SetDefault("llm.retry_delay", 2*time.Second)

	viper.SetDefault("poller.interval", 2*time.Second)
	viper.SetDefault("poller.batch_size", 50)
	viper.SetDefault("poller.max_concurrent", 8)
}
