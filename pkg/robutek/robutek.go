// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package robutek implements the Lorris command set of the Robutek
// differential drive robot: direction commands from the controller and
// encoder/button telemetry from the robot.
package robutek

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

// Command ids
const (
	CmdSetParams    = 0x00 // controller -> robot: u8 direction
	CmdEncoderLeft  = 0x01 // robot -> controller: i32 left motor position
	CmdEncoderRight = 0x02 // robot -> controller: i32 right motor position
	CmdButton       = 0x03 // robot -> controller: u8 button state
)

// Motion constants
const (
	MaxSpeed = 100

	TelemetryInterval = 100 * time.Millisecond
	StopTimeout       = time.Second

	JoystickCoefficient = 2.5
	SpeedLimiter        = 0.5
	SpeedMultiplier     = 500
)

// ErrUnknownDirection is returned for a SET_PARAMS direction outside 0-4
var ErrUnknownDirection = errors.New("robutek: unknown direction")

// Direction is the payload of SET_PARAMS
type Direction uint8

const (
	DirStop Direction = iota
	DirForward
	DirLeft
	DirBackward
	DirRight
)

// String returns the direction name
func (d Direction) String() string {
	switch d {
	case DirStop:
		return "Stop"
	case DirForward:
		return "Forward"
	case DirLeft:
		return "Left"
	case DirBackward:
		return "Backward"
	case DirRight:
		return "Right"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	return d <= DirRight
}

// Speeds returns the left and right motor speeds for d. Turns spin the
// robot in place.
func (d Direction) Speeds() (left, right int) {
	switch d {
	case DirForward:
		return MaxSpeed, MaxSpeed
	case DirLeft:
		return -MaxSpeed, MaxSpeed
	case DirBackward:
		return -MaxSpeed, -MaxSpeed
	case DirRight:
		return MaxSpeed, -MaxSpeed
	default:
		return 0, 0
	}
}

// DirectionFromKey maps WASD keys (and space or x for stop) to a direction
func DirectionFromKey(key string) (Direction, bool) {
	switch strings.ToLower(key) {
	case "w", "up":
		return DirForward, true
	case "a", "left":
		return DirLeft, true
	case "s", "down":
		return DirBackward, true
	case "d", "right":
		return DirRight, true
	case " ", "space", "x":
		return DirStop, true
	}
	return DirStop, false
}

// ParseDirection parses a direction name or number
func ParseDirection(s string) (Direction, error) {
	for d := DirStop; d <= DirRight; d++ {
		if strings.EqualFold(s, d.String()) || s == fmt.Sprint(uint8(d)) {
			return d, nil
		}
	}
	if d, ok := DirectionFromKey(s); ok {
		return d, nil
	}
	return DirStop, fmt.Errorf("%w: %q", ErrUnknownDirection, s)
}

// NewSetParams builds a SET_PARAMS frame
func NewSetParams(deviceID uint8, d Direction) *lorris.Packet {
	p := lorris.NewPacket(CmdSetParams, deviceID)
	p.WriteUint8(uint8(d))
	return p
}

// ParseSetParams reads the direction from a SET_PARAMS frame
func ParseSetParams(p *lorris.Packet) (Direction, error) {
	if p.Command() != CmdSetParams {
		return DirStop, fmt.Errorf("robutek: expected SET_PARAMS, got command 0x%02X", p.Command())
	}
	d := Direction(p.ReadUint8())
	if err := p.Err(); err != nil {
		return DirStop, err
	}
	if !d.Valid() {
		return d, fmt.Errorf("%w: %d", ErrUnknownDirection, uint8(d))
	}
	return d, nil
}

// Mix converts a joystick position (each axis -32768..32767, y forward) to
// left and right motor speeds. When both sides run backwards they are
// swapped so the robot steers the same way the stick points.
func Mix(x, y int16) (left, right float64) {
	sx := float64(x) / 32768
	sy := float64(y) / 32768

	r := (sy - sx/JoystickCoefficient) * SpeedLimiter
	l := (sy + sx/JoystickCoefficient) * SpeedLimiter

	if r < 0 && l < 0 {
		r, l = l, r
	}
	return l * SpeedMultiplier, r * SpeedMultiplier
}
