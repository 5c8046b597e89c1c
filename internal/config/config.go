package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	SourceRedis    = "redis"
	SourcePostgres = "postgres"
)

// Config is the process configuration.
type Config struct {
	DatabaseURL string        `yaml:"database_url"`
	HTTPAddr    string        `yaml:"http_addr"`
	Redis       RedisConfig   `yaml:"redis"`
	Control     ControlConfig `yaml:"control"`
}

// RedisConfig addresses the pub/sub and latest-value Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ControlConfig tunes command tracking.
type ControlConfig struct {
	ResultChannel        string        `yaml:"result_channel"`
	CommandChannelPrefix string        `yaml:"command_channel_prefix"`
	DeliveryTimeout      time.Duration `yaml:"delivery_timeout"`
	VerifyDelay          time.Duration `yaml:"verify_delay"`
	AlarmMatchDelay      time.Duration `yaml:"alarm_match_delay"`
	StoreTimeout         time.Duration `yaml:"store_timeout"`
	SweepSchedule        string        `yaml:"sweep_schedule"`
	SweepAfter           time.Duration `yaml:"sweep_after"`
	LatestValueSources   []string      `yaml:"latest_value_sources"`
}

// Load reads the environment and then overlays the YAML file named by
// CONTROL_CONFIG, if any.
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL: getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:    getenvDefault("HTTP_ADDR", ":8080"),
		Redis: RedisConfig{
			Addr:     getenvDefault("REDIS_ADDR", ""),
			Password: getenvDefault("REDIS_PASSWORD", ""),
			DB:       getenvIntDefault("REDIS_DB", 0),
		},
		Control: ControlConfig{
			ResultChannel:        getenvDefault("CONTROL_RESULT_CHANNEL", "control:result"),
			CommandChannelPrefix: getenvDefault("CONTROL_COMMAND_CHANNEL_PREFIX", "cmd:collector:"),
			DeliveryTimeout:      getenvDuration("CONTROL_DELIVERY_TIMEOUT", 30*time.Second),
			VerifyDelay:          getenvDuration("CONTROL_VERIFY_DELAY", 20*time.Second),
			AlarmMatchDelay:      getenvDuration("CONTROL_ALARM_MATCH_DELAY", 80*time.Second),
			StoreTimeout:         getenvDuration("CONTROL_STORE_TIMEOUT", 5*time.Second),
			SweepSchedule:        getenvDefault("CONTROL_SWEEP_SCHEDULE", "@every 1m"),
			SweepAfter:           getenvDuration("CONTROL_SWEEP_AFTER", 2*time.Minute),
			LatestValueSources:   splitCSV(getenvDefault("CONTROL_LATEST_VALUE_SOURCE", "redis,postgres")),
		},
	}

	if path := os.Getenv("CONTROL_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate checks the configuration for values the process cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("config: http_addr required"))
	}
	if c.Control.ResultChannel == "" {
		errs = append(errs, errors.New("config: result_channel required"))
	}
	if c.Control.CommandChannelPrefix == "" {
		errs = append(errs, errors.New("config: command_channel_prefix required"))
	}
	for name, d := range map[string]time.Duration{
		"delivery_timeout":  c.Control.DeliveryTimeout,
		"verify_delay":      c.Control.VerifyDelay,
		"alarm_match_delay": c.Control.AlarmMatchDelay,
		"store_timeout":     c.Control.StoreTimeout,
		"sweep_after":       c.Control.SweepAfter,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("config: %s must be positive", name))
		}
	}
	if c.Control.SweepAfter > 0 && c.Control.SweepAfter < c.Control.DeliveryTimeout {
		errs = append(errs, errors.New("config: sweep_after must not be shorter than delivery_timeout"))
	}
	if c.Control.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Control.SweepSchedule); err != nil {
			errs = append(errs, fmt.Errorf("config: sweep_schedule: %w", err))
		}
	}
	if len(c.Control.LatestValueSources) == 0 {
		errs = append(errs, errors.New("config: latest_value_sources required"))
	}
	for _, source := range c.Control.LatestValueSources {
		if source != SourceRedis && source != SourcePostgres {
			errs = append(errs, fmt.Errorf("config: unknown latest value source %q", source))
		}
	}
	return errors.Join(errs...)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
