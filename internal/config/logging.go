// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/pion/logging"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel converts a level name to a pion log level
func ParseLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off", "none":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning", "":
		return logging.LogLevelWarn, nil
	case "info":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelDisabled, fmt.Errorf("unknown log level %q", s)
	}
}

// NewLoggerFactory builds the logger factory for l. Output goes to a
// rotating file when l.File is set and to fallback otherwise. The returned
// closer must be closed on exit.
func NewLoggerFactory(l Log, fallback io.Writer) (logging.LoggerFactory, io.Closer, error) {
	level, err := ParseLevel(l.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = fallback
	var closer io.Closer = nopCloser{}
	if l.File != "" {
		lj := &lumberjack.Logger{
			Filename:   l.File,
			MaxSize:    l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAge:     l.MaxAgeDays,
		}
		out, closer = lj, lj
	}

	factory := logging.NewDefaultLoggerFactory()
	factory.Writer = out
	factory.DefaultLogLevel = level
	return factory, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
