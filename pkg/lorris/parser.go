// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import "github.com/pion/logging"

// PacketParser implements the Lorris frame decoder state machine.
//
// Bytes are fed one at a time with AddByte. The parser owns a single scratch
// Packet that is reused for every frame; Packet returns a borrowed view that
// is overwritten by the next completed frame. Use Take (or Packet().Clone())
// to keep a frame across further AddByte calls.
//
// Resynchronization is by rescanning for StartByte while idle, including the
// header bytes of a frame rejected for its declared length. Payload bytes
// are not escaped, so a 0xFF inside a payload does not break the current
// frame, but lost bytes mid-frame are only noticed once later bytes get
// misread as a header.
type PacketParser struct {
	state     int
	device    uint8
	command   uint8
	length    uint8
	pkt       *Packet
	discarded uint64
	log       logging.LeveledLogger
}

// NewPacketParser creates a new frame decoder
func NewPacketParser() *PacketParser {
	return &PacketParser{
		state: stateStart,
		pkt:   NewPacket(0, DefaultDeviceID),
	}
}

// NewPacketParserWithLogger creates a decoder whose scratch packets report
// diagnostics to log
func NewPacketParserWithLogger(log logging.LeveledLogger) *PacketParser {
	pp := NewPacketParser()
	pp.log = log
	pp.pkt.SetLogger(log)
	return pp
}

// Reset drops any partially assembled frame and returns to the idle state
func (pp *PacketParser) Reset() {
	pp.state = stateStart
	pp.device = 0
	pp.command = 0
	pp.length = 0
}

// AddByte processes a single byte through the decoder state machine.
// It returns true exactly when b completes a frame; the frame is then
// available from Packet.
func (pp *PacketParser) AddByte(b byte) bool {
	switch pp.state {
	case stateStart:
		// Waiting for START byte
		if b != StartByte {
			pp.discarded++
			return false
		}
		pp.state = stateDevice
		return false

	case stateDevice:
		pp.device = b
		pp.state = stateCommand
		return false

	case stateCommand:
		pp.command = b
		pp.state = stateLength
		return false

	case stateLength:
		if b > MaxPayloadSize {
			// Cannot fit in a frame, so the start marker was noise. The
			// remaining header bytes may hold the real one.
			if pp.log != nil {
				pp.log.Debugf("declared length %d exceeds max %d, resyncing", b, MaxPayloadSize)
			}
			pp.discarded++
			pp.state = stateStart
			// Three bytes from START cannot complete a header
			for _, r := range [...]byte{pp.device, pp.command, b} {
				pp.AddByte(r)
			}
			return false
		}
		pp.length = b
		pp.pkt.Reset(pp.command, pp.device)
		if pp.length == 0 {
			pp.state = stateStart
			return true
		}
		pp.state = stateData
		return false

	case stateData:
		pp.pkt.WriteUint8(b)
		if pp.pkt.DataLength() < pp.length {
			return false
		}
		pp.state = stateStart
		return true

	default:
		pp.Reset()
		return false
	}
}

// Feed runs every byte of data through the parser and calls fn for each
// completed frame. The packet passed to fn is borrowed. It returns the
// number of frames completed.
func (pp *PacketParser) Feed(data []byte, fn func(*Packet)) int {
	frames := 0
	for _, b := range data {
		if pp.AddByte(b) {
			frames++
			if fn != nil {
				fn(pp.pkt)
			}
		}
	}
	return frames
}

// Packet returns the parser's scratch packet: the most recently completed
// frame, or the one being assembled. It is overwritten by the next frame.
func (pp *PacketParser) Packet() *Packet {
	return pp.pkt
}

// Take hands the current scratch packet to the caller and installs a fresh
// one, so the returned frame is never overwritten by the parser.
func (pp *PacketParser) Take() *Packet {
	pkt := pp.pkt
	pp.pkt = NewPacket(0, DefaultDeviceID)
	pp.pkt.SetLogger(pp.log)
	return pkt
}

// Idle reports whether the parser is waiting for a start marker
func (pp *PacketParser) Idle() bool {
	return pp.state == stateStart
}

// State returns the name of the current decoder state
func (pp *PacketParser) State() string {
	switch pp.state {
	case stateStart:
		return "START"
	case stateDevice:
		return "DEVICE"
	case stateCommand:
		return "COMMAND"
	case stateLength:
		return "LENGTH"
	case stateData:
		return "DATA"
	default:
		return "UNKNOWN"
	}
}

// Discarded returns the number of bytes dropped while resynchronizing
func (pp *PacketParser) Discarded() uint64 {
	return pp.discarded
}
