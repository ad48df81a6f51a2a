package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// cliConfig is read from the environment, optionally seeded from a .env
// file. Flags override it.
type cliConfig struct {
	BaseURL        string `mapstructure:"SESSIONCTL_BASE_URL"`
	Store          string `mapstructure:"SESSIONCTL_STORE"`
	BoltPath       string `mapstructure:"SESSIONCTL_BOLT_PATH"`
	RedisAddr      string `mapstructure:"SESSIONCTL_REDIS_ADDR"`
	RedisPrefix    string `mapstructure:"SESSIONCTL_REDIS_PREFIX"`
	RequestTimeout string `mapstructure:"SESSIONCTL_REQUEST_TIMEOUT"`
	ExpiringSoon   string `mapstructure:"SESSIONCTL_EXPIRING_SOON"`
	LogLevel       string `mapstructure:"SESSIONCTL_LOG_LEVEL"`
	LogEncoding    string `mapstructure:"SESSIONCTL_LOG_ENCODING"`
	MockAddr       string `mapstructure:"SESSIONCTL_MOCK_ADDR"`
}

const (
	storeBolt   = "bolt"
	storeRedis  = "redis"
	storeMemory = "memory"
)

// loadConfig loads envFile when it exists and reads SESSIONCTL_* keys.
// Variables already set in the environment win over the file. The result
// is validated by the caller once flag overrides are applied.
func loadConfig(envFile string) (cliConfig, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SESSIONCTL_BASE_URL", "http://localhost:3001")
	v.SetDefault("SESSIONCTL_STORE", storeBolt)
	v.SetDefault("SESSIONCTL_BOLT_PATH", defaultBoltPath())
	v.SetDefault("SESSIONCTL_REDIS_ADDR", "")
	v.SetDefault("SESSIONCTL_REDIS_PREFIX", "sessionctl")
	v.SetDefault("SESSIONCTL_REQUEST_TIMEOUT", "30s")
	v.SetDefault("SESSIONCTL_EXPIRING_SOON", "5m")
	v.SetDefault("SESSIONCTL_LOG_LEVEL", "warn")
	v.SetDefault("SESSIONCTL_LOG_ENCODING", "console")
	v.SetDefault("SESSIONCTL_MOCK_ADDR", "127.0.0.1:3001")

	var cfg cliConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func (c cliConfig) validate() error {
	switch strings.ToLower(c.Store) {
	case storeBolt:
		if c.BoltPath == "" {
			return errors.New("config: SESSIONCTL_BOLT_PATH must be set for the bolt store")
		}
	case storeRedis, storeMemory:
	default:
		return errors.New("config: SESSIONCTL_STORE must be bolt, redis or memory")
	}
	if _, err := c.requestTimeout(); err != nil {
		return errors.New("config: SESSIONCTL_REQUEST_TIMEOUT must be a positive duration")
	}
	if _, err := c.expiringSoon(); err != nil {
		return errors.New("config: SESSIONCTL_EXPIRING_SOON must be a positive duration")
	}
	return nil
}

func (c cliConfig) requestTimeout() (time.Duration, error) {
	return positiveDuration(c.RequestTimeout)
}

func (c cliConfig) expiringSoon() (time.Duration, error) {
	return positiveDuration(c.ExpiringSoon)
}

func positiveDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("duration must be positive")
	}
	return d, nil
}

func defaultBoltPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".sessionctl.db"
	}
	return filepath.Join(dir, "sessionctl", "session.db")
}
