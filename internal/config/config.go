// Package config loads runtime configuration from a YAML file and applies
// SOCIALHUB_* environment overrides on top of it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// SOCIALHUB_SERVER_LISTEN_ADDR or SOCIALHUB_AUTH_JWT_SECRET.
const EnvPrefix = "SOCIALHUB"

// DefaultPath is used when no path is given explicitly.
const DefaultPath = "config.yaml"

// Config represents runtime configuration for the service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr" envconfig:"LISTEN_ADDR" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	// AllowedOrigins are websocket origin patterns. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	// AuthRateLimit is the number of login/register attempts allowed per IP
	// within AuthRateWindow.
	AuthRateLimit  int           `yaml:"auth_rate_limit" envconfig:"AUTH_RATE_LIMIT" validate:"gt=0"`
	AuthRateWindow time.Duration `yaml:"auth_rate_window" envconfig:"AUTH_RATE_WINDOW" validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" envconfig:"DRIVER" validate:"oneof=sqlite3 sqlite mysql"`
	DSN      string `yaml:"dsn" envconfig:"DSN"`
	Host     string `yaml:"host" envconfig:"HOST"`
	Port     int    `yaml:"port" envconfig:"PORT"`
	Username string `yaml:"username" envconfig:"USERNAME"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DBName   string `yaml:"db_name" envconfig:"DB_NAME"`
	Params   string `yaml:"params" envconfig:"PARAMS"`
}

type RedisConfig struct {
	// Addr enables the redis-backed message cache when set.
	Addr        string `yaml:"addr" envconfig:"ADDR"`
	Password    string `yaml:"password" envconfig:"PASSWORD"`
	DB          int    `yaml:"db" envconfig:"DB" validate:"gte=0"`
	HistorySize int    `yaml:"history_size" envconfig:"HISTORY_SIZE" validate:"gt=0"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" envconfig:"JWT_SECRET" validate:"required,min=16"`
	Issuer    string        `yaml:"issuer" envconfig:"ISSUER"`
	Audience  string        `yaml:"audience" envconfig:"AUDIENCE"`
	TokenTTL  time.Duration `yaml:"token_ttl" envconfig:"TOKEN_TTL" validate:"gt=0"`
}

type RealtimeConfig struct {
	SendBuffer        int           `yaml:"send_buffer" envconfig:"SEND_BUFFER" validate:"gt=0"`
	WriteTimeout      time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	DeliveryTimeout   time.Duration `yaml:"delivery_timeout" envconfig:"DELIVERY_TIMEOUT" validate:"gt=0"`
	FanoutConcurrency int           `yaml:"fanout_concurrency" envconfig:"FANOUT_CONCURRENCY" validate:"gt=0"`
	MaxConns          int           `yaml:"max_conns" envconfig:"MAX_CONNS" validate:"gte=0"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"gte=0"`
	CommandRate       int           `yaml:"command_rate" envconfig:"COMMAND_RATE" validate:"gt=0"`
	CommandWindow     time.Duration `yaml:"command_window" envconfig:"COMMAND_WINDOW" validate:"gt=0"`
}

type LogConfig struct {
	Level      string `yaml:"level" envconfig:"LEVEL" validate:"oneof=trace debug info warn error"`
	Format     string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json console"`
	File       string `yaml:"file" envconfig:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"MAX_SIZE_MB" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" envconfig:"MAX_BACKUPS" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" envconfig:"MAX_AGE_DAYS" validate:"gte=0"`
	Compress   bool   `yaml:"compress" envconfig:"COMPRESS"`
}

// Default returns the configuration used when neither the file nor the
// environment sets a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: 10 * time.Second,
			AuthRateLimit:   10,
			AuthRateWindow:  time.Minute,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			Port:   3306,
			Params: "parseTime=true&charset=utf8mb4",
		},
		Redis: RedisConfig{
			HistorySize: 50,
		},
		Auth: AuthConfig{
			Issuer:   "socialhub",
			Audience: "socialhub-clients",
			TokenTTL: 7 * 24 * time.Hour,
		},
		Realtime: RealtimeConfig{
			SendBuffer:        16,
			WriteTimeout:      5 * time.Second,
			DeliveryTimeout:   5 * time.Second,
			FanoutConcurrency: 8,
			CommandRate:       20,
			CommandWindow:     time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// Load reads configuration from path, then applies environment overrides.
// A missing file at DefaultPath is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}
	if cfg.Database.Driver != "mysql" && cfg.Database.DSN == "" {
		cfg.Database.DSN = "socialhub.db"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Database.Driver == "mysql" && c.Database.DSN == "" && c.Database.Host == "" {
		return errors.New("invalid config: mysql requires database.dsn or database.host")
	}
	return nil
}
