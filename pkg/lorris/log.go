// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import (
	"sync/atomic"

	"github.com/pion/logging"
)

// LoggerScope is the scope name used for protocol diagnostics.
const LoggerScope = "lorris"

var defaultLogger atomic.Pointer[loggerHolder]

type loggerHolder struct {
	log logging.LeveledLogger
}

func init() {
	SetLoggerFactory(logging.NewDefaultLoggerFactory())
}

// SetLoggerFactory replaces the factory used for packets and parsers that
// were not given an explicit logger. A nil factory silences diagnostics.
func SetLoggerFactory(f logging.LoggerFactory) {
	if f == nil {
		defaultLogger.Store(&loggerHolder{})
		return
	}
	defaultLogger.Store(&loggerHolder{log: f.NewLogger(LoggerScope)})
}

func packageLogger() logging.LeveledLogger {
	if h := defaultLogger.Load(); h != nil {
		return h.log
	}
	return nil
}
