// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package robutek

import (
	"math"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

// Robot simulates a Robutek: two motors with encoders and a button.
//
// Motor speeds are in encoder ticks per second. Every command arms a stop
// watchdog; if no further command arrives within StopTimeout both motors
// stop.
type Robot struct {
	mu sync.Mutex

	deviceID    uint8
	left, right float64
	posLeft     float64
	posRight    float64
	button      bool

	lastUpdate  time.Time
	lastCommand time.Time
	stopTimeout time.Duration
	now         func() time.Time

	log logging.LeveledLogger
}

// NewRobot creates a stopped robot answering as deviceID
func NewRobot(deviceID uint8, loggerFactory logging.LoggerFactory) *Robot {
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	r := &Robot{
		deviceID:    deviceID,
		stopTimeout: StopTimeout,
		now:         time.Now,
		log:         loggerFactory.NewLogger("robutek"),
	}
	r.lastUpdate = r.now()
	return r
}

// Handle applies a command frame from the controller
func (r *Robot) Handle(p *lorris.Packet) error {
	switch p.Command() {
	case CmdSetParams:
		d, err := ParseSetParams(p)
		if err != nil {
			return err
		}
		left, right := d.Speeds()
		r.log.Infof("%s", d)
		r.setSpeeds(float64(left), float64(right))
		return nil
	default:
		r.log.Debugf("ignoring command 0x%02X", p.Command())
		return nil
	}
}

// Joystick drives the robot from a joystick position, see Mix
func (r *Robot) Joystick(x, y int16) {
	left, right := Mix(x, y)
	r.log.Debugf("joystick x=%d y=%d -> left=%.1f right=%.1f", x, y, left, right)
	r.setSpeeds(left, right)
}

func (r *Robot) setSpeeds(left, right float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.advance(r.now())
	r.left, r.right = left, right
	r.lastCommand = r.now()
}

// advance integrates encoder positions up to t and applies the watchdog.
// Caller holds mu.
func (r *Robot) advance(t time.Time) {
	moving := r.left != 0 || r.right != 0
	if moving && !r.lastCommand.IsZero() {
		deadline := r.lastCommand.Add(r.stopTimeout)
		if t.After(deadline) {
			r.integrate(deadline)
			r.left, r.right = 0, 0
			r.log.Info("Stop (no command within timeout)")
		}
	}
	r.integrate(t)
}

func (r *Robot) integrate(t time.Time) {
	dt := t.Sub(r.lastUpdate).Seconds()
	if dt <= 0 {
		return
	}
	r.posLeft += r.left * dt
	r.posRight += r.right * dt
	r.lastUpdate = t
}

// SetButton sets the simulated button state
func (r *Robot) SetButton(pressed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.button = pressed
}

// Speeds returns the current motor speeds
func (r *Robot) Speeds() (left, right float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance(r.now())
	return r.left, r.right
}

// Positions returns the current encoder positions
func (r *Robot) Positions() (left, right int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advance(r.now())
	return toTicks(r.posLeft), toTicks(r.posRight)
}

// Interval returns the telemetry period
func (r *Robot) Interval() time.Duration {
	return TelemetryInterval
}

// Telemetry emits one ENCODER_LEFT, ENCODER_RIGHT and BUTTON frame
func (r *Robot) Telemetry(emit func(*lorris.Packet) error) error {
	r.mu.Lock()
	r.advance(r.now())
	left, right := toTicks(r.posLeft), toTicks(r.posRight)
	var button uint8
	if r.button {
		button = 1
	}
	r.mu.Unlock()

	pkt := lorris.NewPacket(CmdEncoderLeft, r.deviceID)
	pkt.WriteInt32(left)
	if err := emit(pkt); err != nil {
		return err
	}

	pkt.Reset(CmdEncoderRight, r.deviceID)
	pkt.WriteInt32(right)
	if err := emit(pkt); err != nil {
		return err
	}

	pkt.Reset(CmdButton, r.deviceID)
	pkt.WriteUint8(button)
	return emit(pkt)
}

func toTicks(pos float64) int32 {
	return int32(math.Round(pos))
}
