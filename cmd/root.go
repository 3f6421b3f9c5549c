// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/lorris/internal/config"
	"github.com/Thermoquad/lorris/pkg/lorris"
	"github.com/Thermoquad/lorris/pkg/robutek"
	"github.com/Thermoquad/lorris/pkg/waveform"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// UDP connection flag
	udpAddr string

	deviceID  uint8
	vocabName string

	logLevel string
	logFile  string

	// cfg is the effective configuration after flags are applied
	cfg = config.Default()

	loggerFactory logging.LoggerFactory = logging.NewDefaultLoggerFactory()
	logCloser     io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "lorris",
	Short: "Lorris Protocol Analyzer",
	Long: `Lorris - A CLI tool for exchanging and analyzing Lorris protocol frames.

Decodes, builds and sends frames, collects statistics, drives a robutek
robot, simulates devices and bridges frames to NATS.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  UDP:       --udp host:9999

Settings may also come from a TOML file (--config) and LORRIS_* environment
variables. Flags win over the environment, which wins over the file.

For WebSocket authentication, the password is read from the LORRIS_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func init() {
	defaults := config.Default()
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&configPath, "config", "c", "", "TOML configuration file")

	// Serial connection flags
	flags.StringVarP(&portName, "port", "p", "", "Serial port device")
	flags.IntVarP(&baudRate, "baud", "b", defaults.Serial.Baud, "Baud rate (serial only)")

	// WebSocket connection flags
	flags.StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	flags.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	flags.StringVar(&udpAddr, "udp", "", "UDP peer address (host:port)")

	flags.Uint8VarP(&deviceID, "device", "d", defaults.Device, "Device id for frames sent")
	flags.StringVar(&vocabName, "vocab", defaults.Vocabulary, "Command vocabulary (none, robutek, waveform)")

	flags.StringVar(&logLevel, "log-level", defaults.Log.Level, "Diagnostic log level (disabled, error, warn, info, debug, trace)")
	flags.StringVar(&logFile, "log-file", "", "Write diagnostics to a rotating log file instead of stderr")
}

// loadSettings builds cfg from the file, the environment and the flags,
// then installs the logger factory.
func loadSettings(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, &loaded)
	if err := loaded.Validate(); err != nil {
		return err
	}
	cfg = loaded

	factory, closer, err := config.NewLoggerFactory(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	loggerFactory, logCloser = factory, closer
	lorris.SetLoggerFactory(factory)
	return nil
}

// applyFlags copies explicitly set flags over c
func applyFlags(cmd *cobra.Command, c *config.Config) {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("port") {
		c.Serial.Port = portName
	}
	if changed("baud") {
		c.Serial.Baud = baudRate
	}
	if changed("url") {
		c.WebSocket.URL = wsURL
	}
	if changed("username") {
		c.WebSocket.Username = wsUsername
	}
	if changed("no-ssl-verify") {
		c.WebSocket.NoSSLVerify = wsNoSSLVerify
	}
	if changed("udp") {
		c.UDP = udpAddr
	}
	if changed("device") {
		c.Device = deviceID
	}
	if changed("vocab") {
		c.Vocabulary = vocabName
	}
	if changed("log-level") {
		c.Log.Level = logLevel
	}
	if changed("log-file") {
		c.Log.File = logFile
	}
}

// vocabularies lists the known command vocabularies by name
var vocabularies = map[string]*lorris.Vocabulary{
	"robutek":  robutek.Vocabulary,
	"waveform": waveform.Vocabulary,
}

// lookupVocabulary returns the vocabulary for name. "none" and "" return nil.
func lookupVocabulary(name string) (*lorris.Vocabulary, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "none" {
		return nil, nil
	}
	v, ok := vocabularies[name]
	if !ok {
		return nil, fmt.Errorf("unknown vocabulary %q (use none, robutek or waveform)", name)
	}
	return v, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
