// Package config loads service configuration from config.yaml and
// RESPONDER_* environment variables via viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// NotificationChannel configures one delivery channel for the
// notification router.
type NotificationChannel struct {
	// Name is the channel name playbook actions reference.
	Name string `mapstructure:"name"`
	// Kind selects the delivery backend: "webhook" or "slack".
	Kind string `mapstructure:"kind"`
	// URL is the endpoint the channel posts to.
	URL string `mapstructure:"url"`
}

// Config holds all configuration for the responder service.
type Config struct {
	Playbooks struct {
		// Dir is a directory of YAML playbooks loaded at startup.
		Dir string `mapstructure:"dir"`
		// AutoExecute runs matching playbooks automatically when an
		// incident is opened.
		AutoExecute bool `mapstructure:"auto_execute"`
	} `mapstructure:"playbooks"`

	Storage struct {
		// Backend is "sqlite" or "memory".
		Backend    string `mapstructure:"backend"`
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"storage"`

	Events struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		Channel  string `mapstructure:"channel"`
	} `mapstructure:"events"`

	Notifications struct {
		Channels []NotificationChannel `mapstructure:"channels"`
	} `mapstructure:"notifications"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"metrics"`

	Logging struct {
		// Level is a zap level string: debug, info, warn, error.
		Level string `mapstructure:"level"`
		// Format is "json" or "console".
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
}

func setDefaults() {
	viper.SetDefault("playbooks.dir", "./playbooks")
	viper.SetDefault("playbooks.auto_execute", false)

	viper.SetDefault("storage.backend", "sqlite")
	viper.SetDefault("storage.sqlite_path", "./data/responder.db")

	viper.SetDefault("events.enabled", false)
	viper.SetDefault("events.addr", "localhost:6379")
	viper.SetDefault("events.password", "")
	viper.SetDefault("events.db", 0)
	viper.SetDefault("events.channel", "responder:events")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.addr", ":9090")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

func loadFromEnv() {
	viper.SetEnvPrefix("RESPONDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("playbooks.dir", "RESPONDER_PLAYBOOKS_DIR")
	_ = viper.BindEnv("playbooks.auto_execute", "RESPONDER_AUTO_EXECUTE")
	_ = viper.BindEnv("storage.sqlite_path", "RESPONDER_SQLITE_PATH")
	_ = viper.BindEnv("events.addr", "RESPONDER_REDIS_ADDR")
	_ = viper.BindEnv("events.password", "RESPONDER_REDIS_PASSWORD")
	_ = viper.BindEnv("logging.level", "RESPONDER_LOG_LEVEL")
}

// LoadConfig loads configuration from config.yaml (searched in . and
// ./config) and environment variables. A missing file is not an error;
// defaults and the environment apply.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks cross-field constraints the decoder cannot.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("invalid storage backend %q (want sqlite or memory)", c.Storage.Backend)
	}

	for _, ch := range c.Notifications.Channels {
		if ch.Name == "" || ch.URL == "" {
			return fmt.Errorf("notification channel needs both name and url")
		}
		switch ch.Kind {
		case "webhook", "slack":
		default:
			return fmt.Errorf("notification channel %s: invalid kind %q", ch.Name, ch.Kind)
		}
	}
	return nil
}
