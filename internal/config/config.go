// Package config loads ServerConfig from a YAML file, LOB_-prefixed
// environment variables, and command-line flags, in that order of
// increasing precedence.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServerConfig configures cmd/server.
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	EventLogPath  string        `mapstructure:"event_log_path"`
	SyncMode      bool          `mapstructure:"sync_mode"`
	Symbols       []string      `mapstructure:"symbols"`
	RingBufferLog int           `mapstructure:"ring_buffer_log2"` // buffer size = 1 << this
	MetricsPort   int           `mapstructure:"metrics_port"`

	RedisAddr       string        `mapstructure:"redis_addr"`
	RateLimitBurst  int64         `mapstructure:"rate_limit_burst"`
	RateLimitPerSec float64       `mapstructure:"rate_limit_per_sec"`

	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	SettlementInterval time.Duration `mapstructure:"settlement_interval"`
}

// Default returns the baseline configuration before file/env/flag overrides.
func Default() ServerConfig {
	return ServerConfig{
		Port:            8080,
		EventLogPath:    "events.log",
		SyncMode:        false,
		Symbols:         []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA"},
		RingBufferLog:   13, // 8192 slots
		MetricsPort:     9090,
		RedisAddr:       "localhost:6379",
		RateLimitBurst:  50,
		RateLimitPerSec: 20,
		ShutdownTimeout:    10 * time.Second,
		SettlementInterval: time.Minute,
	}
}

// BindFlags registers the flag set viper should layer over the defaults
// and config file. Call this once, before Load.
func BindFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.Int("port", d.Port, "HTTP gateway port")
	flags.String("event-log-path", d.EventLogPath, "path to the append-only event log")
	flags.Bool("sync-mode", d.SyncMode, "fsync the event log after every append")
	flags.StringSlice("symbols", d.Symbols, "symbols to create order books for at startup")
	flags.Int("ring-buffer-log2", d.RingBufferLog, "log2 of the disruptor ring buffer size")
	flags.Int("metrics-port", d.MetricsPort, "port to serve /metrics on")
	flags.String("redis-addr", d.RedisAddr, "address of the Redis instance backing the rate limiter")
	flags.Int64("rate-limit-burst", d.RateLimitBurst, "token bucket burst size per account")
	flags.Float64("rate-limit-per-sec", d.RateLimitPerSec, "token bucket refill rate per account, in tokens/sec")
	flags.Duration("shutdown-timeout", d.ShutdownTimeout, "grace period for draining in-flight requests on shutdown")
	flags.Duration("settlement-interval", d.SettlementInterval, "how often the clearing house runs a netting and settlement cycle")
}

// Load reads the YAML file at configPath (when configPath is non-empty
// and the file exists), LOB_-prefixed environment variables, and the
// bound flag set, merging them over the defaults.
func Load(flags *pflag.FlagSet, configPath string) (ServerConfig, error) {
	v := viper.New()

	cfg := Default()
	v.SetDefault("port", cfg.Port)
	v.SetDefault("event_log_path", cfg.EventLogPath)
	v.SetDefault("sync_mode", cfg.SyncMode)
	v.SetDefault("symbols", cfg.Symbols)
	v.SetDefault("ring_buffer_log2", cfg.RingBufferLog)
	v.SetDefault("metrics_port", cfg.MetricsPort)
	v.SetDefault("redis_addr", cfg.RedisAddr)
	v.SetDefault("rate_limit_burst", cfg.RateLimitBurst)
	v.SetDefault("rate_limit_per_sec", cfg.RateLimitPerSec)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("settlement_interval", cfg.SettlementInterval)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
				return ServerConfig{}, err
			}
		}
	}

	v.SetEnvPrefix("LOB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		binds := map[string]string{
			"port":               "port",
			"event-log-path":     "event_log_path",
			"sync-mode":          "sync_mode",
			"symbols":            "symbols",
			"ring-buffer-log2":   "ring_buffer_log2",
			"metrics-port":       "metrics_port",
			"redis-addr":         "redis_addr",
			"rate-limit-burst":   "rate_limit_burst",
			"rate-limit-per-sec": "rate_limit_per_sec",
			"shutdown-timeout":    "shutdown_timeout",
			"settlement-interval": "settlement_interval",
		}
		for flagName, key := range binds {
			if f := flags.Lookup(flagName); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return ServerConfig{}, err
				}
			}
		}
	}

	var out ServerConfig
	if err := v.Unmarshal(&out); err != nil {
		return ServerConfig{}, err
	}
	return out, nil
}
