// Package config loads bridge settings from .env, the environment and an
// optional YAML settings file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"ringbridge/internal/mqtt"
	"ringbridge/internal/ring"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Defaults
const (
	DefaultAPIPort      = 8081
	DefaultPollInterval = 5 * time.Second
	DefaultEntriesFile  = "ring_entries.yaml"

	// MinPollInterval is the shortest accepted poll_interval. A bare number
	// in YAML decodes as nanoseconds.
	MinPollInterval = time.Second
)

// Config is the complete bridge configuration
type Config struct {
	Ring          RingConfig          `yaml:"ring"`
	HomeAssistant HomeAssistantConfig `yaml:"home_assistant"`
	MQTT          mqtt.Config         `yaml:"mqtt"`
	ReadOnly      bool                `yaml:"read_only"`
	APIPort       int                 `yaml:"api_port"`
	PollInterval  time.Duration       `yaml:"poll_interval"`
	EntriesFile   string              `yaml:"entries_file"`
}

// RingConfig holds the account used when no entry exists yet
type RingConfig struct {
	Username   string         `yaml:"username"`
	Password   string         `yaml:"-"`
	OTP        string         `yaml:"-"`
	HardwareID string         `yaml:"hardware_id"`
	Endpoints  ring.Endpoints `yaml:"endpoints"`
}

// HomeAssistantConfig enables the Home Assistant sink when URL is set
type HomeAssistantConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"-"`
}

// Loader resolves a Config from its sources
type Loader struct {
	envFile      string
	settingsFile string
	logger       *zap.Logger
	getenv       func(string) string
}

// NewLoader creates a loader. Either path may be empty.
func NewLoader(envFile, settingsFile string, logger *zap.Logger) *Loader {
	return &Loader{
		envFile:      envFile,
		settingsFile: settingsFile,
		logger:       logger.Named("config"),
		getenv:       os.Getenv,
	}
}

// Load reads the settings file, then applies environment variables on top
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil {
			l.logger.Warn("No .env file found, using environment variables",
				zap.String("path", l.envFile))
		}
	}

	cfg := &Config{
		APIPort:      DefaultAPIPort,
		PollInterval: DefaultPollInterval,
		EntriesFile:  DefaultEntriesFile,
	}

	if err := l.loadSettings(cfg); err != nil {
		return nil, err
	}
	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l.logger.Info("Configuration loaded",
		zap.String("entries_file", cfg.EntriesFile),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Bool("home_assistant", cfg.HomeAssistant.URL != ""),
		zap.Bool("mqtt", cfg.MQTT.Broker != ""),
		zap.Bool("read_only", cfg.ReadOnly))
	return cfg, nil
}

func (l *Loader) loadSettings(cfg *Config) error {
	if l.settingsFile == "" {
		return nil
	}

	data, err := os.ReadFile(l.settingsFile)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Debug("No settings file", zap.String("path", l.settingsFile))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse settings: %w", err)
	}
	return nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := l.getenv(key); v != "" {
			*dst = v
		}
	}

	setString("RING_USERNAME", &cfg.Ring.Username)
	setString("RING_PASSWORD", &cfg.Ring.Password)
	setString("RING_OTP", &cfg.Ring.OTP)
	setString("RING_HARDWARE_ID", &cfg.Ring.HardwareID)
	setString("HA_URL", &cfg.HomeAssistant.URL)
	setString("HA_TOKEN", &cfg.HomeAssistant.Token)
	setString("MQTT_BROKER", &cfg.MQTT.Broker)
	setString("MQTT_USERNAME", &cfg.MQTT.Username)
	setString("MQTT_PASSWORD", &cfg.MQTT.Password)

	if v := l.getenv("READ_ONLY"); v != "" {
		readOnly, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid READ_ONLY %q: %w", v, err)
		}
		cfg.ReadOnly = readOnly
	}

	if v := l.getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid API_PORT %q: %w", v, err)
		}
		cfg.APIPort = port
	}

	return nil
}

// Validate checks values that would otherwise fail later and less clearly
func (c *Config) Validate() error {
	if c.APIPort < 0 || c.APIPort > 65535 {
		return fmt.Errorf("api_port %d out of range", c.APIPort)
	}
	if c.PollInterval < MinPollInterval {
		return fmt.Errorf("poll_interval must be at least %v, got %v", MinPollInterval, c.PollInterval)
	}
	if c.HomeAssistant.URL != "" && c.HomeAssistant.Token == "" {
		return errors.New("HA_TOKEN must be set when HA_URL is set")
	}
	if c.EntriesFile == "" {
		return errors.New("entries_file must not be empty")
	}
	return nil
}

// HardwareID returns the configured hardware id, or one derived from the
// username so that it stays the same across restarts
func (c *Config) HardwareID() string {
	if c.Ring.HardwareID != "" {
		return c.Ring.HardwareID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("ringbridge:"+c.Ring.Username)).String()
}
