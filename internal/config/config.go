package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode      string `mapstructure:"mode"`
	Port      int    `mapstructure:"port"`
	SignalURL string `mapstructure:"signal_url"`
	Secret    string `mapstructure:"secret"`
	LogLevel  string `mapstructure:"log_level"`

	SeatCount       int           `mapstructure:"seat_count"`
	PKInviteTimeout time.Duration `mapstructure:"pk_invite_timeout"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	// DuplicateEvery makes the server re-deliver every Nth notification,
	// for exercising client de-duplication. Zero disables it.
	DuplicateEvery int `mapstructure:"duplicate_every"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("signal_url", "ws://localhost:8080/ws")
	v.SetDefault("secret", "dev-only-secret")
	v.SetDefault("log_level", "info")
	v.SetDefault("seat_count", 8)
	v.SetDefault("pk_invite_timeout", "10s")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("duplicate_every", 0)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
