// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package waveform

import (
	"math"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

// Generator simulates the waveform peer. Each tick it emits SIN, COS, TAN,
// INDEX and STEP for the current value, then advances the value by the step.
type Generator struct {
	mu       sync.Mutex
	deviceID uint8
	params   Params
	value    float64
	log      logging.LeveledLogger
}

// NewGenerator creates a generator with default parameters
func NewGenerator(deviceID uint8, loggerFactory logging.LoggerFactory) *Generator {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	return &Generator{
		deviceID: deviceID,
		params:   DefaultParams(),
		log:      loggerFactory.NewLogger("waveform"),
	}
}

// Handle applies a command frame from the controller
func (g *Generator) Handle(p *lorris.Packet) error {
	if p.Command() != CmdSetParams {
		g.log.Debugf("ignoring command 0x%02X", p.Command())
		return nil
	}
	params, err := ParseSetParams(p)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.params = params
	g.mu.Unlock()

	g.log.Infof("Params updated: tickRate=%dms, step=%v", params.TickRateMs, params.Step)
	return nil
}

// Params returns the current settings
func (g *Generator) Params() Params {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.params
}

// Value returns the current running value
func (g *Generator) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Interval returns the current tick rate
func (g *Generator) Interval() time.Duration {
	return g.Params().TickRate()
}

// Telemetry emits the five frames of one tick and advances the value
func (g *Generator) Telemetry(emit func(*lorris.Packet) error) error {
	g.mu.Lock()
	value, step := g.value, g.params.Step
	g.value += step
	g.mu.Unlock()

	pkt := lorris.NewPacket(CmdSin, g.deviceID)
	pkt.WriteFloat64(math.Sin(value))
	if err := emit(pkt); err != nil {
		return err
	}

	pkt.Reset(CmdCos, g.deviceID)
	pkt.WriteFloat64(math.Cos(value))
	if err := emit(pkt); err != nil {
		return err
	}

	pkt.Reset(CmdTan, g.deviceID)
	pkt.WriteFloat64(math.Tan(value))
	if err := emit(pkt); err != nil {
		return err
	}

	pkt.Reset(CmdIndex, g.deviceID)
	pkt.WriteUint8(Index(value))
	if err := emit(pkt); err != nil {
		return err
	}

	pkt.Reset(CmdStep, g.deviceID)
	pkt.WriteFloat64(step)
	return emit(pkt)
}

// Index returns floor(value) mod 256, wrapping negative values into 0-255
func Index(value float64) uint8 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	i := math.Mod(math.Floor(value), 256)
	if i < 0 {
		i += 256
	}
	return uint8(i)
}
