package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "./data/responder.db", cfg.Storage.SQLitePath)
	assert.False(t, cfg.Playbooks.AutoExecute)
	assert.False(t, cfg.Events.Enabled)
	assert.Equal(t, "responder:events", cfg.Events.Channel)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("RESPONDER_SQLITE_PATH", "/tmp/override.db")
	t.Setenv("RESPONDER_LOG_LEVEL", "debug")
	t.Setenv("RESPONDER_REDIS_ADDR", "redis.internal:6379")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "redis.internal:6379", cfg.Events.Addr)
}

func TestConfigValidate(t *testing.T) {
	var cfg Config
	cfg.Storage.Backend = "postgres"
	assert.Error(t, cfg.Validate())

	cfg.Storage.Backend = "memory"
	require.NoError(t, cfg.Validate())

	cfg.Notifications.Channels = []NotificationChannel{{Name: "oncall", Kind: "pager", URL: "http://x"}}
	assert.Error(t, cfg.Validate())

	cfg.Notifications.Channels[0].Kind = "slack"
	assert.NoError(t, cfg.Validate())

	cfg.Notifications.Channels = append(cfg.Notifications.Channels, NotificationChannel{Kind: "webhook"})
	assert.Error(t, cfg.Validate(), "missing name and url")
}
