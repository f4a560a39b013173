package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds the process configuration.
type Config struct {
	DatabaseURL string `toml:"database_url"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	LogLevel    string `toml:"log_level"`

	RequestTimeout  time.Duration `toml:"request_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`

	RateLimitRPS   float64 `toml:"rate_limit_rps"`
	RateLimitBurst int     `toml:"rate_limit_burst"`

	CORSAllowedOrigins string `toml:"cors_allowed_origins"`
	TracesExporter     string `toml:"traces_exporter"`
}

// ErrInvalidValue is returned when a setting cannot be parsed or is out of range.
type ErrInvalidValue struct {
	Key   string
	Value string
	Err   error
}

func (e ErrInvalidValue) Error() string {
	return fmt.Sprintf("invalid value for %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e ErrInvalidValue) Unwrap() error { return e.Err }

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		DatabaseURL:        "sqlite:///todos.db",
		Host:               "127.0.0.1",
		Port:               5000,
		LogLevel:           "info",
		RequestTimeout:     15 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		RateLimitRPS:       0,
		RateLimitBurst:     10,
		CORSAllowedOrigins: "*",
		TracesExporter:     "none",
	}
}

// Load builds the configuration from defaults, the TOML file named by
// TODOS_CONFIG, a .env file in the working directory and the environment,
// in increasing order of precedence.
func Load() (*Config, error) {
	return load(".env")
}

func load(dotenvPath string) (*Config, error) {
	// godotenv never overrides variables already present in the environment.
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", dotenvPath, err)
	}

	cfg := Default()

	if path := os.Getenv("TODOS_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	lookupString("DATABASE_URL", &c.DatabaseURL)
	lookupString("HOST", &c.Host)
	lookupString("LOG_LEVEL", &c.LogLevel)
	lookupString("CORS_ALLOWED_ORIGINS", &c.CORSAllowedOrigins)
	lookupString("TRACES_EXPORTER", &c.TracesExporter)

	if err := lookupInt("PORT", &c.Port); err != nil {
		return err
	}
	if err := lookupInt("RATE_LIMIT_BURST", &c.RateLimitBurst); err != nil {
		return err
	}
	if err := lookupFloat("RATE_LIMIT_RPS", &c.RateLimitRPS); err != nil {
		return err
	}
	if err := lookupDuration("REQUEST_TIMEOUT", &c.RequestTimeout); err != nil {
		return err
	}
	return lookupDuration("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrInvalidValue{Key: "DATABASE_URL", Value: c.DatabaseURL, Err: errors.New("must not be empty")}
	}
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidValue{Key: "PORT", Value: strconv.Itoa(c.Port), Err: errors.New("must be between 1 and 65535")}
	}
	if _, ok := parseLevel(c.LogLevel); !ok {
		return ErrInvalidValue{Key: "LOG_LEVEL", Value: c.LogLevel, Err: errors.New("must be one of debug, info, warn, error")}
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidValue{Key: "REQUEST_TIMEOUT", Value: c.RequestTimeout.String(), Err: errors.New("must be positive")}
	}
	if c.ShutdownTimeout <= 0 {
		return ErrInvalidValue{Key: "SHUTDOWN_TIMEOUT", Value: c.ShutdownTimeout.String(), Err: errors.New("must be positive")}
	}
	if c.RateLimitRPS < 0 {
		return ErrInvalidValue{Key: "RATE_LIMIT_RPS", Value: strconv.FormatFloat(c.RateLimitRPS, 'f', -1, 64), Err: errors.New("must not be negative")}
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		return ErrInvalidValue{Key: "RATE_LIMIT_BURST", Value: strconv.Itoa(c.RateLimitBurst), Err: errors.New("must be at least 1 when rate limiting is enabled")}
	}
	switch strings.ToLower(c.TracesExporter) {
	case "none", "stdout", "otlp":
	default:
		return ErrInvalidValue{Key: "TRACES_EXPORTER", Value: c.TracesExporter, Err: errors.New("must be one of none, stdout, otlp")}
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Level returns the slog level for LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

// AllowedOrigins splits CORSAllowedOrigins on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func lookupString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func lookupInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return ErrInvalidValue{Key: key, Value: v, Err: err}
	}
	*dst = n
	return nil
}

func lookupFloat(key string, dst *float64) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return ErrInvalidValue{Key: key, Value: v, Err: err}
	}
	*dst = f
	return nil
}

func lookupDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return ErrInvalidValue{Key: key, Value: v, Err: err}
	}
	*dst = d
	return nil
}
