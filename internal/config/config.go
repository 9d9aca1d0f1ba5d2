package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Bybit   Bybit   `mapstructure:"bybit"`
	Trade   Trade   `mapstructure:"trade"`
	Logger  Logger  `mapstructure:"logger"`
	Journal Journal `mapstructure:"journal"`
}

// Bybit holds the configuration for the Bybit v5 API.
type Bybit struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	Testnet        bool    `mapstructure:"testnet"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Trade holds the configuration for a single trigger-order run.
type Trade struct {
	Instrument    string  `mapstructure:"instrument"`
	Direction     string  `mapstructure:"direction"` // "long" or "short"
	TriggerPrice  float64 `mapstructure:"trigger_price"`
	BaseSize      float64 `mapstructure:"base_size"`
	TriggerOffset float64 `mapstructure:"trigger_offset"`
	StrictTrigger bool    `mapstructure:"strict_trigger"`
	TriggerDelay  int     `mapstructure:"trigger_delay"` // seconds between trigger and create
	ResendDelay   int     `mapstructure:"resend_delay"`  // minimum seconds between order edits
	RiskCeiling   float64 `mapstructure:"risk_ceiling"`
	PollInterval  int     `mapstructure:"poll_interval"` // seconds between reconcile cycles
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Journal holds the configuration for the lifecycle event journal.
type Journal struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("bybit.rate_limit", 10)      // requests per second
	viper.SetDefault("bybit.rate_limit_burst", 5) // burst size
	viper.SetDefault("trade.trigger_offset", 0.00025)
	viper.SetDefault("trade.trigger_delay", 0)
	viper.SetDefault("trade.resend_delay", 5)
	viper.SetDefault("trade.risk_ceiling", 0.01)
	viper.SetDefault("trade.poll_interval", 1)
	viper.SetDefault("journal.dsn", "scalp-assist.db")

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	err = config.Trade.Validate()
	return
}

// Validate checks that the trade section describes a runnable trigger run.
func (t Trade) Validate() error {
	if t.Instrument == "" {
		return fmt.Errorf("trade.instrument must be set")
	}
	if t.Direction != "long" && t.Direction != "short" {
		return fmt.Errorf("trade.direction must be \"long\" or \"short\", got %q", t.Direction)
	}
	if t.TriggerPrice <= 0 {
		return fmt.Errorf("trade.trigger_price must be positive, got %f", t.TriggerPrice)
	}
	if t.BaseSize <= 0 {
		return fmt.Errorf("trade.base_size must be positive, got %f", t.BaseSize)
	}
	if t.RiskCeiling <= 0 {
		return fmt.Errorf("trade.risk_ceiling must be positive, got %f", t.RiskCeiling)
	}
	return nil
}
