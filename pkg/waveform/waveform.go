// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package waveform implements the Lorris command set of the waveform demo
// peer, which streams sin, cos and tan of a running value at a
// configurable tick rate.
package waveform

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

// Command ids
const (
	CmdSetParams = 0x00 // controller -> peer: u32 tick ms, f64 step
	CmdSin       = 0x01 // f64
	CmdCos       = 0x02 // f64
	CmdTan       = 0x03 // f64
	CmdIndex     = 0x04 // u8 floor(value) % 256
	CmdStep      = 0x05 // f64 current step
)

// Defaults
const (
	DefaultTickRate = 100 * time.Millisecond
	DefaultStep     = 0.1
)

// ErrInvalidTickRate is returned for a zero tick rate
var ErrInvalidTickRate = errors.New("waveform: tick rate must be positive")

// Params are the generator settings carried by SET_PARAMS
type Params struct {
	TickRateMs uint32
	Step       float64
}

// DefaultParams returns the power-on settings
func DefaultParams() Params {
	return Params{
		TickRateMs: uint32(DefaultTickRate / time.Millisecond),
		Step:       DefaultStep,
	}
}

// TickRate returns the tick rate as a duration
func (p Params) TickRate() time.Duration {
	return time.Duration(p.TickRateMs) * time.Millisecond
}

// Validate checks that the generator can run with p
func (p Params) Validate() error {
	if p.TickRateMs == 0 {
		return ErrInvalidTickRate
	}
	return nil
}

// NewSetParams builds a SET_PARAMS frame
func NewSetParams(deviceID uint8, params Params) *lorris.Packet {
	p := lorris.NewPacket(CmdSetParams, deviceID)
	p.WriteUint32(params.TickRateMs)
	p.WriteFloat64(params.Step)
	return p
}

// ParseSetParams reads the settings from a SET_PARAMS frame
func ParseSetParams(p *lorris.Packet) (Params, error) {
	if p.Command() != CmdSetParams {
		return Params{}, fmt.Errorf("waveform: expected SET_PARAMS, got command 0x%02X", p.Command())
	}
	params := Params{
		TickRateMs: p.ReadUint32(),
		Step:       p.ReadFloat64(),
	}
	if err := p.Err(); err != nil {
		return Params{}, err
	}
	return params, params.Validate()
}
