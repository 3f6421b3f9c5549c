// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package robutek

import (
	"fmt"
	"time"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

// Telemetry holds the latest robot state seen by a controller
type Telemetry struct {
	EncoderLeft  int32
	EncoderRight int32
	Button       bool
	Updated      time.Time
	Frames       uint64
}

// Apply updates the state from a telemetry frame. It returns false for
// frames that are not robot telemetry.
func (t *Telemetry) Apply(p *lorris.Packet) bool {
	switch p.Command() {
	case CmdEncoderLeft:
		if p.DataLength() != 4 {
			return false
		}
		t.EncoderLeft = int32(p.ReadUint32At(lorris.IndexData))
	case CmdEncoderRight:
		if p.DataLength() != 4 {
			return false
		}
		t.EncoderRight = int32(p.ReadUint32At(lorris.IndexData))
	case CmdButton:
		if p.DataLength() != 1 {
			return false
		}
		t.Button = p.ReadUint8At(lorris.IndexData) != 0
	default:
		return false
	}
	t.Updated = p.Timestamp()
	t.Frames++
	return true
}

// String returns a one line summary
func (t Telemetry) String() string {
	button := "released"
	if t.Button {
		button = "pressed"
	}
	return fmt.Sprintf("encoders L=%d R=%d button=%s", t.EncoderLeft, t.EncoderRight, button)
}
