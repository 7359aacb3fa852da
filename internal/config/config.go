package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultJWTExpiresIn   = "24h"
	DefaultPGHost         = "127.0.0.1"
	DefaultPGPort         = 5432
	DefaultPGUser         = "postgres"
	DefaultPGDatabase     = "hostbridge"
	DefaultPGSSLMode      = "disable"
	DefaultRedisAddr      = "127.0.0.1:6379"
	DefaultPollSeconds    = 60
	DefaultHistoryWindow  = 20
	DefaultRetryCapSecond = 300
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Ingest   IngestConfig   `toml:"ingest"`
	Polling  PollingConfig  `toml:"polling"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
	// OperatorKey is the shared key operators exchange for a JWT at
	// /auth/login.
	OperatorKey string `toml:"operator_key"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	// Disabled falls back to the in-process seen store.
	Disabled bool `toml:"disabled"`
}

type IngestConfig struct {
	// HistoryWindow bounds the number of prior conversation turns
	// assembled into a reply context.
	HistoryWindow int `toml:"history_window"`
}

type PollingConfig struct {
	IntervalSeconds  int `toml:"interval_seconds"`
	RetryCapSeconds  int `toml:"retry_cap_seconds"`
	JitterMaxSeconds int `toml:"jitter_max_seconds"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Redis: RedisConfig{
			Addr: DefaultRedisAddr,
		},
		Ingest: IngestConfig{
			HistoryWindow: DefaultHistoryWindow,
		},
		Polling: PollingConfig{
			IntervalSeconds:  DefaultPollSeconds,
			RetryCapSeconds:  DefaultRetryCapSecond,
			JitterMaxSeconds: 30,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
