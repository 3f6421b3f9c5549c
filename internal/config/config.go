// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads lorris settings from an optional TOML file and
// LORRIS_* environment variables. Command line flags are layered on top by
// the cmd package.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "LORRIS_"

// Config holds all settings
type Config struct {
	Serial     Serial
	WebSocket  WebSocket
	UDP        string // host:port of a UDP peer
	Device     uint8
	Vocabulary string
	Log        Log
	Serve      Serve
	Bridge     Bridge
}

// Serial configures the serial connection
type Serial struct {
	Port string
	Baud int
}

// WebSocket configures the WebSocket connection. The password is never
// stored; see LORRIS_PASSWORD.
type WebSocket struct {
	URL         string
	Username    string
	NoSSLVerify bool
}

// Log configures diagnostics
type Log struct {
	Level      string
	File       string // empty logs to stderr
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Serve configures the device simulator
type Serve struct {
	Listen  string
	Metrics string // empty disables the HTTP endpoint
}

// Bridge configures the NATS/Redis bridge
type Bridge struct {
	NATSURL       string
	Prefix        string
	RedisAddr     string // empty disables the shadow
	RedisPassword string
	RedisDB       int
	ShadowTTL     time.Duration
	Metrics       string
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Serial:     Serial{Baud: 115200},
		Device:     1,
		Vocabulary: "none",
		Log: Log{
			Level:      "warn",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Serve: Serve{Listen: ":9999"},
		Bridge: Bridge{
			NATSURL:   "nats://127.0.0.1:4222",
			Prefix:    "lorris",
			ShadowTTL: 24 * time.Hour,
		},
	}
}

type fileConfig struct {
	Serial struct {
		Port string `toml:"port"`
		Baud int    `toml:"baud"`
	} `toml:"serial"`
	WebSocket struct {
		URL         string `toml:"url"`
		Username    string `toml:"username"`
		NoSSLVerify bool   `toml:"no_ssl_verify"`
	} `toml:"websocket"`
	UDP        string `toml:"udp"`
	Device     int    `toml:"device"`
	Vocabulary string `toml:"vocab"`
	Log        struct {
		Level      string `toml:"level"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
	} `toml:"log"`
	Serve struct {
		Listen  string `toml:"listen"`
		Metrics string `toml:"metrics"`
	} `toml:"serve"`
	Bridge struct {
		NATSURL       string `toml:"nats_url"`
		Prefix        string `toml:"prefix"`
		RedisAddr     string `toml:"redis_addr"`
		RedisPassword string `toml:"redis_password"`
		RedisDB       int    `toml:"redis_db"`
		ShadowTTL     string `toml:"shadow_ttl"`
		Metrics       string `toml:"metrics"`
	} `toml:"bridge"`
}

// Load returns the defaults overlaid with the TOML file at path (if path
// is not empty) and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("serial", "port") {
		c.Serial.Port = strings.TrimSpace(raw.Serial.Port)
	}
	if meta.IsDefined("serial", "baud") {
		c.Serial.Baud = raw.Serial.Baud
	}

	if meta.IsDefined("websocket", "url") {
		c.WebSocket.URL = strings.TrimSpace(raw.WebSocket.URL)
	}
	if meta.IsDefined("websocket", "username") {
		c.WebSocket.Username = raw.WebSocket.Username
	}
	if meta.IsDefined("websocket", "no_ssl_verify") {
		c.WebSocket.NoSSLVerify = raw.WebSocket.NoSSLVerify
	}

	if meta.IsDefined("udp") {
		c.UDP = strings.TrimSpace(raw.UDP)
	}
	if meta.IsDefined("device") {
		if raw.Device < 0 || raw.Device > 255 {
			return fmt.Errorf("parse device: %d out of range", raw.Device)
		}
		c.Device = uint8(raw.Device)
	}
	if meta.IsDefined("vocab") {
		c.Vocabulary = strings.TrimSpace(raw.Vocabulary)
	}

	if meta.IsDefined("log", "level") {
		c.Log.Level = raw.Log.Level
	}
	if meta.IsDefined("log", "file") {
		c.Log.File = raw.Log.File
	}
	if meta.IsDefined("log", "max_size_mb") {
		c.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		c.Log.MaxBackups = raw.Log.MaxBackups
	}
	if meta.IsDefined("log", "max_age_days") {
		c.Log.MaxAgeDays = raw.Log.MaxAgeDays
	}

	if meta.IsDefined("serve", "listen") {
		c.Serve.Listen = raw.Serve.Listen
	}
	if meta.IsDefined("serve", "metrics") {
		c.Serve.Metrics = raw.Serve.Metrics
	}

	if meta.IsDefined("bridge", "nats_url") {
		c.Bridge.NATSURL = raw.Bridge.NATSURL
	}
	if meta.IsDefined("bridge", "prefix") {
		c.Bridge.Prefix = raw.Bridge.Prefix
	}
	if meta.IsDefined("bridge", "redis_addr") {
		c.Bridge.RedisAddr = raw.Bridge.RedisAddr
	}
	if meta.IsDefined("bridge", "redis_password") {
		c.Bridge.RedisPassword = raw.Bridge.RedisPassword
	}
	if meta.IsDefined("bridge", "redis_db") {
		c.Bridge.RedisDB = raw.Bridge.RedisDB
	}
	if meta.IsDefined("bridge", "shadow_ttl") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Bridge.ShadowTTL))
		if err != nil {
			return fmt.Errorf("parse bridge.shadow_ttl: %w", err)
		}
		c.Bridge.ShadowTTL = d
	}
	if meta.IsDefined("bridge", "metrics") {
		c.Bridge.Metrics = raw.Bridge.Metrics
	}

	return c.Validate()
}

// ApplyEnv overlays LORRIS_* variables found through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
		return nil
	}

	str("PORT", &c.Serial.Port)
	if err := num("BAUD", &c.Serial.Baud); err != nil {
		return err
	}
	str("URL", &c.WebSocket.URL)
	str("USERNAME", &c.WebSocket.Username)
	if v, ok := lookup(EnvPrefix + "NO_SSL_VERIFY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %sNO_SSL_VERIFY: %w", EnvPrefix, err)
		}
		c.WebSocket.NoSSLVerify = b
	}
	str("UDP", &c.UDP)
	if v, ok := lookup(EnvPrefix + "DEVICE"); ok {
		n, err := strconv.ParseUint(strings.TrimSpace(v), 0, 8)
		if err != nil {
			return fmt.Errorf("parse %sDEVICE: %w", EnvPrefix, err)
		}
		c.Device = uint8(n)
	}
	str("VOCAB", &c.Vocabulary)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)
	str("LISTEN", &c.Serve.Listen)
	str("METRICS_ADDR", &c.Serve.Metrics)
	str("NATS_URL", &c.Bridge.NATSURL)
	str("REDIS_ADDR", &c.Bridge.RedisAddr)
	str("REDIS_PASSWORD", &c.Bridge.RedisPassword)

	return c.Validate()
}

// Validate checks settings that would otherwise fail late
func (c Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Serial.Baud)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Bridge.ShadowTTL < 0 {
		return fmt.Errorf("invalid shadow ttl %s", c.Bridge.ShadowTTL)
	}
	return nil
}
