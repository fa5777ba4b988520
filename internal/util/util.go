// internal/util/util.go
// Configuration loading for the presence server.
package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/isaac-art/dinamap/internal/logger"
	"github.com/nats-io/nats.go"
	"gopkg.in/yaml.v3"
)

// Config is the server configuration. Zero values are replaced by defaults.
type Config struct {
	Addr             string           `json:"addr" yaml:"addr"`
	StaticDir        string           `json:"static_dir" yaml:"static_dir"`
	DataFile         string           `json:"data_file" yaml:"data_file"`
	NatsURL          string           `json:"nats_url" yaml:"nats_url"`
	UpdateRate       float64          `json:"update_rate" yaml:"update_rate"`   // player_update messages per second, 0 = unlimited
	UpdateBurst      int              `json:"update_burst" yaml:"update_burst"` // token bucket size
	KeepAliveSeconds int              `json:"keepalive_seconds" yaml:"keepalive_seconds"`
	MaxNotifications int              `json:"max_notifications" yaml:"max_notifications"`
	Log              logger.LogConfig `json:"log" yaml:"log"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Addr:             ":8088",
		StaticDir:        "static",
		DataFile:         "main.json",
		NatsURL:          nats.DefaultURL,
		MaxNotifications: 64,
		Log:              logger.DefaultLogConfig(),
	}
}

// LoadConfig loads the configuration from a JSON or YAML file and applies
// environment overrides. A missing file yields the defaults.
func LoadConfig(filePath string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(&config)
			return config, nil
		}
		return config, err
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return DefaultConfig(), fmt.Errorf("parse %s: %w", filePath, err)
	}

	config.fillDefaults()
	applyEnv(&config)
	if err := config.Validate(); err != nil {
		return DefaultConfig(), err
	}
	return config, nil
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	if c.UpdateRate < 0 {
		return fmt.Errorf("update_rate must not be negative, got %v", c.UpdateRate)
	}
	if c.UpdateBurst < 0 {
		return fmt.Errorf("update_burst must not be negative, got %d", c.UpdateBurst)
	}
	if c.KeepAliveSeconds < 0 {
		return fmt.Errorf("keepalive_seconds must not be negative, got %d", c.KeepAliveSeconds)
	}
	return nil
}

func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.StaticDir == "" {
		c.StaticDir = def.StaticDir
	}
	if c.DataFile == "" {
		c.DataFile = def.DataFile
	}
	if c.MaxNotifications <= 0 {
		c.MaxNotifications = def.MaxNotifications
	}
	if c.UpdateRate > 0 && c.UpdateBurst == 0 {
		c.UpdateBurst = int(c.UpdateRate) + 1
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

func applyEnv(c *Config) {
	if v := os.Getenv("NATS_URL"); v != "" {
		c.NatsURL = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}
