// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/pion/logging"
)

// Packet is one Lorris frame: header plus payload, with a read cursor for
// sequential field access.
//
// A Packet is not safe for concurrent use. The same instance is meant to be
// reused across frames via Reset. The zero value reads as command 0 from
// device 0 with no payload, and the first write turns it into that frame.
type Packet struct {
	data      []byte
	length    uint8
	readIndex int
	err       error
	timestamp time.Time
	log       logging.LeveledLogger
}

// NewPacket creates an empty frame for the given command and device id
func NewPacket(command, deviceID uint8) *Packet {
	p := &Packet{
		data: make([]byte, HeaderSize, MaxPacketSize),
	}
	p.Reset(command, deviceID)
	return p
}

// Reset clears the payload and rewrites the header. The read cursor returns
// to the first payload byte and any recorded error is cleared.
func (p *Packet) Reset(command, deviceID uint8) {
	if cap(p.data) < HeaderSize {
		p.data = make([]byte, HeaderSize, MaxPacketSize)
	}
	p.data = p.data[:HeaderSize]
	p.data[IndexStart] = StartByte
	p.data[IndexDeviceID] = deviceID
	p.data[IndexCommand] = command
	p.data[IndexLength] = 0
	p.length = 0
	p.readIndex = IndexData
	p.err = nil
	p.timestamp = time.Now()
}

// SetLogger sets the logger used for diagnostics. A nil logger falls back
// to the package logger.
func (p *Packet) SetLogger(log logging.LeveledLogger) {
	p.log = log
}

// Command returns the frame's command id
func (p *Packet) Command() uint8 {
	if len(p.data) < HeaderSize {
		return 0
	}
	return p.data[IndexCommand]
}

// DeviceID returns the frame's device id
func (p *Packet) DeviceID() uint8 {
	if len(p.data) < HeaderSize {
		return 0
	}
	return p.data[IndexDeviceID]
}

// DataLength returns the number of payload bytes written so far
func (p *Packet) DataLength() uint8 {
	return p.length
}

// Size returns the total frame size in bytes, header included
func (p *Packet) Size() int {
	return len(p.data)
}

// Payload returns the payload bytes. The slice aliases the frame and is
// only valid until the next write or Reset.
func (p *Packet) Payload() []byte {
	if len(p.data) < HeaderSize {
		return nil
	}
	return p.data[IndexData:]
}

// Timestamp returns the time of the last Reset (for parsed frames, the time
// the header was received)
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// Err returns the first write or read error since the last Reset
func (p *Packet) Err() error {
	return p.err
}

// Raw returns a copy of the full frame, start marker through last payload byte
func (p *Packet) Raw() []byte {
	out := make([]byte, len(p.data))
	copy(out, p.data)
	return out
}

// RawBuffer returns the frame in a new bytes.Buffer
func (p *Packet) RawBuffer() *bytes.Buffer {
	return bytes.NewBuffer(p.Raw())
}

// RawArray returns the frame's backing slice without copying. The slice is
// only valid until the next write or Reset.
func (p *Packet) RawArray() []byte {
	return p.data
}

// WriteTo writes the frame to w. It implements io.WriterTo.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.data)
	return int64(n), err
}

// Clone returns a deep copy of the packet, including its read cursor
func (p *Packet) Clone() *Packet {
	c := &Packet{
		data:      make([]byte, len(p.data), MaxPacketSize),
		length:    p.length,
		readIndex: p.readIndex,
		err:       p.err,
		timestamp: p.timestamp,
		log:       p.log,
	}
	copy(c.data, p.data)
	return c
}

// Rewind moves the read cursor back to the first payload byte
func (p *Packet) Rewind() {
	p.readIndex = IndexData
}

// String returns a short description of the frame header
func (p *Packet) String() string {
	return fmt.Sprintf("lorris.Packet{dev=%d cmd=0x%02X len=%d}", p.DeviceID(), p.Command(), p.length)
}

func (p *Packet) logger() logging.LeveledLogger {
	if p.log != nil {
		return p.log
	}
	return packageLogger()
}

// fail records err (keeping the first one) and emits a diagnostic
func (p *Packet) fail(err error) {
	if p.err == nil {
		p.err = err
	}
	if log := p.logger(); log != nil {
		log.Warn(err.Error())
	}
}
