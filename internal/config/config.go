package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     string
	LogLevel slog.Level
	Env      string

	AnalyticsTimeout  time.Duration
	GAPropertyID      string
	GACredentialsFile string
	AnalyticsEndpoint string
	AllowedChannels   []string

	DatabasePath   string
	MaxUploadBytes int64
	CORSOrigins    []string
	DevUserID      string

	DefaultStartDate string
	DefaultEndDate   string
}

// fileConfig mirrors the YAML file named by CONFIG_FILE. Unset keys keep defaults.
type fileConfig struct {
	Port                    string   `yaml:"port"`
	LogLevel                string   `yaml:"log_level"`
	Env                     string   `yaml:"env"`
	AnalyticsTimeoutSeconds int      `yaml:"analytics_timeout_seconds"`
	GAPropertyID            string   `yaml:"ga_property_id"`
	GACredentialsFile       string   `yaml:"ga_credentials_file"`
	AnalyticsEndpoint       string   `yaml:"analytics_endpoint"`
	AllowedChannels         []string `yaml:"allowed_channels"`
	DatabasePath            string   `yaml:"database_path"`
	MaxUploadMB             int64    `yaml:"max_upload_mb"`
	CORSOrigins             []string `yaml:"cors_origins"`
	DevUserID               string   `yaml:"dev_user_id"`
	DefaultStartDate        string   `yaml:"default_start_date"`
	DefaultEndDate          string   `yaml:"default_end_date"`
}

var DefaultChannels = []string{"Paid Search", "Display", "Paid Video"}

func Defaults() Config {
	return Config{
		Port:             "8080",
		LogLevel:         slog.LevelInfo,
		Env:              "production",
		AnalyticsTimeout: 10 * time.Second,
		AllowedChannels:  append([]string(nil), DefaultChannels...),
		MaxUploadBytes:   10 << 20,
		DefaultStartDate: "2025-08-01",
		DefaultEndDate:   "2025-08-07",
	}
}

// Load builds the config from defaults, then CONFIG_FILE (if set), then the environment.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// FromEnv is Load without file errors.
func FromEnv() Config {
	cfg, _ := Load()
	return cfg
}

func (c Config) DevMode() bool {
	return c.Env == "development" || c.Env == "local"
}

func (c *Config) applyFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileConfig
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	setStr(&c.Port, f.Port)
	if f.LogLevel != "" {
		c.LogLevel = parseLevel(f.LogLevel)
	}
	setStr(&c.Env, f.Env)
	if f.AnalyticsTimeoutSeconds > 0 {
		c.AnalyticsTimeout = time.Duration(f.AnalyticsTimeoutSeconds) * time.Second
	}
	setStr(&c.GAPropertyID, f.GAPropertyID)
	setStr(&c.GACredentialsFile, f.GACredentialsFile)
	setStr(&c.AnalyticsEndpoint, f.AnalyticsEndpoint)
	if len(f.AllowedChannels) > 0 {
		c.AllowedChannels = f.AllowedChannels
	}
	setStr(&c.DatabasePath, f.DatabasePath)
	if f.MaxUploadMB > 0 {
		c.MaxUploadBytes = f.MaxUploadMB << 20
	}
	if len(f.CORSOrigins) > 0 {
		c.CORSOrigins = f.CORSOrigins
	}
	setStr(&c.DevUserID, f.DevUserID)
	setStr(&c.DefaultStartDate, f.DefaultStartDate)
	setStr(&c.DefaultEndDate, f.DefaultEndDate)
	return nil
}

func (c *Config) applyEnv() {
	setStr(&c.Port, os.Getenv("PORT"))
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = parseLevel(v)
	}
	setStr(&c.Env, os.Getenv("ENV"))
	if v := os.Getenv("ANALYTICS_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			c.AnalyticsTimeout = d
		}
	}
	setStr(&c.GAPropertyID, os.Getenv("GA_PROPERTY_ID"))
	setStr(&c.GACredentialsFile, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	setStr(&c.AnalyticsEndpoint, os.Getenv("ANALYTICS_ENDPOINT"))
	if v := splitCSV(os.Getenv("ALLOWED_CHANNELS")); len(v) > 0 {
		c.AllowedChannels = v
	}
	setStr(&c.DatabasePath, os.Getenv("DATABASE_PATH"))
	if v, err := strconv.ParseInt(os.Getenv("MAX_UPLOAD_MB"), 10, 64); err == nil && v > 0 {
		c.MaxUploadBytes = v << 20
	}
	if v := splitCSV(os.Getenv("CORS_ORIGINS")); len(v) > 0 {
		c.CORSOrigins = v
	}
	setStr(&c.DevUserID, os.Getenv("DEV_USER_ID"))
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
