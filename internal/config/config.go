// Package config loads offer-goat settings from an optional YAML file and
// OG_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/offer-goat/offer-goat/internal/experiment"
)

type Config struct {
	DBPath      string           `yaml:"db_path"`
	Port        int              `yaml:"port"`
	LogMode     string           `yaml:"log_mode"`
	LogHashSalt string           `yaml:"log_hash_salt"`
	AdminToken  string           `yaml:"admin_token"`
	Planning    PlanningConfig   `yaml:"planning"`
	AutoWinner  AutoWinnerConfig `yaml:"auto_winner"`
}

// PlanningConfig holds the defaults applied to new experiments that omit
// their design parameters.
type PlanningConfig struct {
	BaselineRate      float64 `yaml:"baseline_rate"`
	SignificanceLevel float64 `yaml:"significance_level"`
	StatisticalPower  float64 `yaml:"statistical_power"`
	DailyImpressions  int     `yaml:"daily_impressions"`
}

type AutoWinnerConfig struct {
	// Interval between automatic winner passes. Zero disables the scheduler.
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
}

func Default() Config {
	d := experiment.DefaultDefaults()
	return Config{
		DBPath:  "./offer-goat.db",
		Port:    8080,
		LogMode: "dev",
		Planning: PlanningConfig{
			BaselineRate:      d.BaselineRate,
			SignificanceLevel: d.SignificanceLevel,
			StatisticalPower:  d.StatisticalPower,
			DailyImpressions:  d.DailyImpressions,
		},
		AutoWinner: AutoWinnerConfig{
			Interval:    15 * time.Minute,
			Concurrency: 4,
		},
	}
}

// Load reads path (if not empty) over the defaults, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("OG_DB_PATH"); ok {
		c.DBPath = v
	}
	if v, ok := get("OG_PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid OG_PORT %q: %w", v, err)
		}
		c.Port = p
	}
	if v, ok := get("OG_LOG_MODE"); ok {
		c.LogMode = v
	}
	if v, ok := get("OG_LOG_HASH_SALT"); ok {
		c.LogHashSalt = v
	}
	if v, ok := get("OG_ADMIN_TOKEN"); ok {
		c.AdminToken = v
	}
	if v, ok := get("OG_AUTO_WINNER_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid OG_AUTO_WINNER_INTERVAL %q: %w", v, err)
		}
		c.AutoWinner.Interval = d
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path must not be empty"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch strings.ToLower(c.LogMode) {
	case "dev", "development", "prod", "production":
	default:
		errs = append(errs, fmt.Errorf("log_mode %q must be dev or prod", c.LogMode))
	}
	for name, v := range map[string]float64{
		"planning.baseline_rate":      c.Planning.BaselineRate,
		"planning.significance_level": c.Planning.SignificanceLevel,
		"planning.statistical_power":  c.Planning.StatisticalPower,
	} {
		if v <= 0 || v >= 1 {
			errs = append(errs, fmt.Errorf("%s must be in (0, 1), got %g", name, v))
		}
	}
	if c.Planning.DailyImpressions <= 0 {
		errs = append(errs, errors.New("planning.daily_impressions must be positive"))
	}
	if c.AutoWinner.Interval < 0 {
		errs = append(errs, errors.New("auto_winner.interval must not be negative"))
	}
	if c.AutoWinner.Concurrency < 0 {
		errs = append(errs, errors.New("auto_winner.concurrency must not be negative"))
	}
	return errors.Join(errs...)
}

// Defaults converts the planning section into experiment creation defaults.
func (c Config) Defaults() experiment.Defaults {
	return experiment.Defaults{
		BaselineRate:      c.Planning.BaselineRate,
		SignificanceLevel: c.Planning.SignificanceLevel,
		StatisticalPower:  c.Planning.StatisticalPower,
		DailyImpressions:  c.Planning.DailyImpressions,
	}
}
