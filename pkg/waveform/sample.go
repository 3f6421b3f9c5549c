// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package waveform

import (
	"fmt"
	"math"
	"time"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

// Sample collects the frames of one generator tick. A tick is complete
// once STEP has been applied, since STEP is the last frame of every tick.
type Sample struct {
	Sin, Cos, Tan float64
	Index         uint8
	Step          float64
	Time          time.Time

	seen uint8
}

// Apply records a telemetry frame. It returns true when the frame
// completed a tick.
func (s *Sample) Apply(p *lorris.Packet) bool {
	switch p.Command() {
	case CmdSin, CmdCos, CmdTan, CmdStep:
		if p.DataLength() != 8 {
			return false
		}
		v := p.ReadFloat64At(lorris.IndexData)
		switch p.Command() {
		case CmdSin:
			s.Sin = v
		case CmdCos:
			s.Cos = v
		case CmdTan:
			s.Tan = v
		case CmdStep:
			s.Step = v
		}
	case CmdIndex:
		if p.DataLength() != 1 {
			return false
		}
		s.Index = p.ReadUint8At(lorris.IndexData)
	default:
		return false
	}

	s.seen |= 1 << p.Command()
	s.Time = p.Timestamp()
	if p.Command() != CmdStep {
		return false
	}
	complete := s.seen == allSeen
	s.seen = 0
	return complete
}

const allSeen = 1<<CmdSin | 1<<CmdCos | 1<<CmdTan | 1<<CmdIndex | 1<<CmdStep

// Consistent reports whether sin²+cos² is close to one
func (s Sample) Consistent() bool {
	return math.Abs(s.Sin*s.Sin+s.Cos*s.Cos-1) < 1e-9
}

// String returns a one line summary
func (s Sample) String() string {
	return fmt.Sprintf("sin=%+.4f cos=%+.4f tan=%+.4f index=%d step=%g", s.Sin, s.Cos, s.Tan, s.Index, s.Step)
}
