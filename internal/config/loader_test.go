package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newTestLoader(envFile, settingsFile string, env map[string]string) *Loader {
	loader := NewLoader(envFile, settingsFile, zap.NewNop())
	loader.getenv = func(key string) string { return env[key] }
	return loader
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := newTestLoader("", "", nil).Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIPort, cfg.APIPort)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, DefaultEntriesFile, cfg.EntriesFile)
	assert.False(t, cfg.ReadOnly)
	assert.Empty(t, cfg.HomeAssistant.URL)
	assert.Empty(t, cfg.MQTT.Broker)
}

func TestLoader_SettingsFile(t *testing.T) {
	dir := t.TempDir()
	settings := writeFile(t, dir, "settings.yaml", `
poll_interval: 10s
entries_file: /data/entries.yaml
api_port: 9000
ring:
  username: foo@bar.com
  hardware_id: fixed-id
  endpoints:
    oauth_url: http://127.0.0.1:8000
    api_url: http://127.0.0.1:8001
mqtt:
  broker: tcp://broker:1883
  topic_prefix: home/ring
  qos: 1
`)

	cfg, err := newTestLoader("", settings, nil).Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.Equal(t, "/data/entries.yaml", cfg.EntriesFile)
	assert.Equal(t, 9000, cfg.APIPort)
	assert.Equal(t, "foo@bar.com", cfg.Ring.Username)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Ring.Endpoints.OAuthURL)
	assert.Equal(t, "http://127.0.0.1:8001", cfg.Ring.Endpoints.APIURL)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "home/ring", cfg.MQTT.TopicPrefix)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, "fixed-id", cfg.HardwareID())
}

func TestLoader_MissingSettingsFile(t *testing.T) {
	cfg, err := newTestLoader("", filepath.Join(t.TempDir(), "missing.yaml"), nil).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
}

func TestLoader_InvalidSettingsFile(t *testing.T) {
	settings := writeFile(t, t.TempDir(), "settings.yaml", "poll_interval: [not, a, duration]\n")

	_, err := newTestLoader("", settings, nil).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse settings")
}

func TestLoader_PollIntervalMinimum(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"unitless number is nanoseconds", "10", true},
		{"sub second", "500ms", true},
		{"zero", "0s", true},
		{"minimum", "1s", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := writeFile(t, t.TempDir(), "settings.yaml", "poll_interval: "+tt.value+"\n")

			cfg, err := newTestLoader("", settings, nil).Load()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "poll_interval")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, MinPollInterval, cfg.PollInterval)
		})
	}
}

func TestLoader_EnvironmentOverrides(t *testing.T) {
	settings := writeFile(t, t.TempDir(), "settings.yaml", "api_port: 9000\nring:\n  username: file@bar.com\n")

	cfg, err := newTestLoader("", settings, map[string]string{
		"RING_USERNAME": "foo@bar.com",
		"RING_PASSWORD": "foobar",
		"RING_OTP":      "123456",
		"HA_URL":        "ws://ha:8123/api/websocket",
		"HA_TOKEN":      "ha-token",
		"MQTT_BROKER":   "tcp://broker:1883",
		"READ_ONLY":     "true",
		"API_PORT":      "8090",
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, "foo@bar.com", cfg.Ring.Username)
	assert.Equal(t, "foobar", cfg.Ring.Password)
	assert.Equal(t, "123456", cfg.Ring.OTP)
	assert.Equal(t, "ws://ha:8123/api/websocket", cfg.HomeAssistant.URL)
	assert.Equal(t, "ha-token", cfg.HomeAssistant.Token)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.True(t, cfg.ReadOnly)
	assert.Equal(t, 8090, cfg.APIPort)
}

func TestLoader_InvalidEnvironment(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"read only", map[string]string{"READ_ONLY": "maybe"}, "READ_ONLY"},
		{"api port", map[string]string{"API_PORT": "http"}, "API_PORT"},
		{"port range", map[string]string{"API_PORT": "70000"}, "out of range"},
		{"ha token", map[string]string{"HA_URL": "ws://ha:8123/api/websocket"}, "HA_TOKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestLoader("", "", tt.env).Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoader_DotEnv(t *testing.T) {
	// Register cleanup, then unset so godotenv is allowed to set it
	t.Setenv("RINGBRIDGE_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("RINGBRIDGE_TEST_DOTENV"))

	envFile := writeFile(t, t.TempDir(), ".env", "RINGBRIDGE_TEST_DOTENV=from-dotenv\n")

	_, err := NewLoader(envFile, "", zap.NewNop()).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", os.Getenv("RINGBRIDGE_TEST_DOTENV"))

	t.Run("missing file is not an error", func(t *testing.T) {
		_, err := NewLoader(filepath.Join(t.TempDir(), ".env"), "", zap.NewNop()).Load()
		assert.NoError(t, err)
	})
}

func TestConfig_HardwareID(t *testing.T) {
	a := &Config{Ring: RingConfig{Username: "foo@bar.com"}}
	b := &Config{Ring: RingConfig{Username: "foo@bar.com"}}
	c := &Config{Ring: RingConfig{Username: "other@bar.com"}}

	assert.Equal(t, a.HardwareID(), b.HardwareID())
	assert.NotEqual(t, a.HardwareID(), c.HardwareID())
	assert.Len(t, a.HardwareID(), 36)
}
