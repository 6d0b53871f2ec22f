package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	"gitlab.com/d21d3q/godsmr/internal/options"
	"gitlab.com/d21d3q/godsmr/internal/serialport"
)

// Config holds the reader settings.
type Config struct {
	Port        string
	Input       string
	Baud        int
	Parity      string
	DataBits    int
	Encrypted   bool
	KeyHex      string
	CheckCRC    bool
	BufferSize  int
	IdleTimeout time.Duration
	ReadTimeout time.Duration
	MetricsAddr string
	LogLevel    string
}

// Default returns settings for a DSMR 5 meter.
func Default() Config {
	return Config{
		Baud:        115200,
		Parity:      "none",
		DataBits:    8,
		CheckCRC:    true,
		BufferSize:  4000,
		IdleTimeout: 500 * time.Millisecond,
		ReadTimeout: 100 * time.Millisecond,
		LogLevel:    "info",
	}
}

type fileConfig struct {
	Port        string `toml:"port"`
	Input       string `toml:"input"`
	Baud        int    `toml:"baud"`
	Parity      string `toml:"parity"`
	DataBits    int    `toml:"data_bits"`
	Encrypted   bool   `toml:"encrypted"`
	Key         string `toml:"key"`
	CheckCRC    bool   `toml:"check_crc"`
	BufferSize  int    `toml:"buffer_size"`
	IdleTimeout string `toml:"idle_timeout"`
	ReadTimeout string `toml:"read_timeout"`
	MetricsAddr string `toml:"metrics_addr"`
	LogLevel    string `toml:"log_level"`
}

// Load reads a TOML file and overlays the keys it defines on Default.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return fromFile(raw, meta)
}

// Decode is Load for in-memory TOML.
func Decode(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return fromFile(raw, meta)
}

func fromFile(raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	cfg := Default()
	if meta.IsDefined("port") {
		cfg.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("input") {
		cfg.Input = strings.TrimSpace(raw.Input)
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("parity") {
		cfg.Parity = strings.TrimSpace(raw.Parity)
	}
	if meta.IsDefined("data_bits") {
		cfg.DataBits = raw.DataBits
	}
	if meta.IsDefined("encrypted") {
		cfg.Encrypted = raw.Encrypted
	}
	if meta.IsDefined("key") {
		cfg.KeyHex = strings.TrimSpace(raw.Key)
	}
	if meta.IsDefined("check_crc") {
		cfg.CheckCRC = raw.CheckCRC
	}
	if meta.IsDefined("buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("idle_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.IdleTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse idle_timeout: %w", err)
		}
		cfg.IdleTimeout = d
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	var errs []error
	switch {
	case c.Port == "" && c.Input == "":
		errs = append(errs, errors.New("either port or input is required"))
	case c.Port != "" && c.Input != "":
		errs = append(errs, errors.New("port and input are mutually exclusive"))
	}
	if c.Port != "" {
		if _, err := c.Serial().Mode(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.BufferSize < 1 {
		errs = append(errs, fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize))
	}
	if c.IdleTimeout < 0 || c.ReadTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.Encrypted {
		if _, err := options.ParseKeyHex(c.KeyHex); err != nil {
			errs = append(errs, fmt.Errorf("key: %w", err))
		}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Serial returns the port settings.
func (c Config) Serial() serialport.Settings {
	return serialport.Settings{
		Name:        c.Port,
		BaudRate:    c.Baud,
		DataBits:    c.DataBits,
		Parity:      c.Parity,
		ReadTimeout: c.ReadTimeout,
	}
}
