package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"rfidscan/indicator"
	"rfidscan/mqtt"
	"rfidscan/reader"
)

// Config is the hardware configuration file.
type Config struct {
	// Node name used in MQTT topics
	ClientID string `yaml:"client_id"`
	LogLevel string `yaml:"log_level"`

	Reader    reader.Config    `yaml:"reader"`
	Indicator indicator.Config `yaml:"indicator"`
	MQTT      mqtt.Config      `yaml:"mqtt"`

	// How long LEDs show a scan outcome before going back to idle
	IdleAfter time.Duration `yaml:"idle_after"`
}

// loadConfig reads the config file at path. An empty path gives the zero
// Config, which selects an MFRC522 reader and no indicators or MQTT.
func loadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.SetStrict(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}

	if cfg.MQTT.Host != "" && cfg.ClientID == "" {
		return cfg, errors.New("client_id missing in config file")
	}
	return cfg, nil
}

func (o options) validate() error {
	if o.logPath == "" {
		return errors.New("--log is required")
	}
	if o.port < 0 || o.port > 65535 {
		return fmt.Errorf("--port %d out of range", o.port)
	}
	if o.timeout < 0 {
		return fmt.Errorf("--timeout %d must not be negative", o.timeout)
	}
	return nil
}

func (o options) scanTimeout() time.Duration {
	return time.Duration(o.timeout) * time.Second
}
