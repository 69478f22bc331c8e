package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every lighthouse variable.
const EnvPrefix = "LIGHTHOUSE"

// Config holds all configuration for the lighthouse binaries.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	// Server is the control plane API listener.
	Server struct {
		Address string `mapstructure:"address"`
		Port    int    `mapstructure:"port"`
		// Domain is stripped from Host headers before subdomain routing.
		Domain string `mapstructure:"domain"`
	} `mapstructure:"server"`

	Docker struct {
		StartupGrace time.Duration `mapstructure:"startup_grace"`
		HostIP       string        `mapstructure:"host_ip"`
	} `mapstructure:"docker"`

	Redis struct {
		Enabled  bool          `mapstructure:"enabled"`
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		TTL      time.Duration `mapstructure:"ttl"`
	} `mapstructure:"redis"`

	// RecipeFile is an optional YAML overlay on the default recipe.
	RecipeFile string `mapstructure:"recipe_file"`

	Dashboard struct {
		DatabaseURL         string        `mapstructure:"database_url"`
		AlertURL            string        `mapstructure:"alert_url"`
		AlertAPIKey         string        `mapstructure:"alert_api_key"`
		AlertTimeout        time.Duration `mapstructure:"alert_timeout"`
		RefreshInterval     time.Duration `mapstructure:"refresh_interval"`
		HistoryWindow       time.Duration `mapstructure:"history_window"`
		AlertCooldown       time.Duration `mapstructure:"alert_cooldown"`
		LowBatteryThreshold float64       `mapstructure:"low_battery_threshold"`
	} `mapstructure:"dashboard"`
}

// legacyEnv maps config keys to the unprefixed variables the dashboard has
// always read from its .env file.
var legacyEnv = map[string]string{
	"dashboard.database_url":  "URL",
	"dashboard.alert_url":     "ALERT_API_URL",
	"dashboard.alert_api_key": "x-api-key",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.domain", "localhost")

	v.SetDefault("docker.startup_grace", 3*time.Second)
	v.SetDefault("docker.host_ip", "0.0.0.0")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 7*24*time.Hour)

	v.SetDefault("recipe_file", "")

	v.SetDefault("dashboard.database_url", "")
	v.SetDefault("dashboard.alert_url", "")
	v.SetDefault("dashboard.alert_api_key", "")
	v.SetDefault("dashboard.alert_timeout", 10*time.Second)
	v.SetDefault("dashboard.refresh_interval", 15*time.Second)
	v.SetDefault("dashboard.history_window", time.Hour)
	v.SetDefault("dashboard.alert_cooldown", 5*time.Minute)
	v.SetDefault("dashboard.low_battery_threshold", 20.0)
}

// Load reads .env (if present), then lighthouse.yaml from the working
// directory or ./config (if present), then the environment. Later sources win.
// An explicit path replaces the search and must exist.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("lighthouse")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Docker.StartupGrace < 0 {
		return errors.New("docker.startup_grace must not be negative")
	}
	if c.Dashboard.RefreshInterval <= 0 {
		return errors.New("dashboard.refresh_interval must be positive")
	}
	if c.Dashboard.HistoryWindow <= 0 {
		return errors.New("dashboard.history_window must be positive")
	}
	if c.Dashboard.AlertCooldown < 0 {
		return errors.New("dashboard.alert_cooldown must not be negative")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	return nil
}
