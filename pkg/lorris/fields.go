// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import (
	"encoding/binary"
	"fmt"
	"math"
)

var zeros [8]byte

// grow appends width zero bytes to the payload and returns them for
// encoding. The frame is untouched when the write would not fit.
func (p *Packet) grow(width int) ([]byte, error) {
	if len(p.data) < HeaderSize {
		p.Reset(0, 0)
	}
	start := len(p.data)
	if start+width > MaxPacketSize {
		err := fmt.Errorf("%w: invalid write() with index %d and size %d", ErrOversizeWrite, start, width)
		p.fail(err)
		return nil, err
	}
	p.data = append(p.data, zeros[:width]...)
	p.length += uint8(width)
	p.data[IndexLength] = p.length
	return p.data[start : start+width], nil
}

// WriteUint8 appends an unsigned byte
func (p *Packet) WriteUint8(v uint8) error {
	b, err := p.grow(1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// WriteUint16 appends a little-endian uint16
func (p *Packet) WriteUint16(v uint16) error {
	b, err := p.grow(2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

// WriteUint32 appends a little-endian uint32
func (p *Packet) WriteUint32(v uint32) error {
	b, err := p.grow(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// WriteInt8 appends a signed byte (two's complement)
func (p *Packet) WriteInt8(v int8) error {
	return p.WriteUint8(uint8(v))
}

// WriteInt16 appends a little-endian int16 (two's complement)
func (p *Packet) WriteInt16(v int16) error {
	return p.WriteUint16(uint16(v))
}

// WriteInt32 appends a little-endian int32 (two's complement)
func (p *Packet) WriteInt32(v int32) error {
	return p.WriteUint32(uint32(v))
}

// WriteFloat32 appends an IEEE-754 single, little-endian
func (p *Packet) WriteFloat32(v float32) error {
	return p.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 appends an IEEE-754 double, little-endian
func (p *Packet) WriteFloat64(v float64) error {
	b, err := p.grow(8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return nil
}

// WriteDouble is an alias for WriteFloat64
func (p *Packet) WriteDouble(v float64) error {
	return p.WriteFloat64(v)
}

// at returns width bytes starting at absolute offset idx, or nil (with a
// recorded error) when the frame is too short.
func (p *Packet) at(idx, width int) []byte {
	if idx < 0 || idx+width > len(p.data) {
		p.fail(fmt.Errorf("%w: invalid read() with index %d and size %d", ErrOutOfRangeRead, idx, width))
		return nil
	}
	return p.data[idx : idx+width]
}

// next returns the next width bytes at the read cursor and advances it.
// The cursor does not move on failure.
func (p *Packet) next(width int) []byte {
	b := p.at(p.readIndex, width)
	if b != nil {
		p.readIndex += width
	}
	return b
}

// Remaining returns the number of unread payload bytes
func (p *Packet) Remaining() int {
	return len(p.data) - p.readIndex
}

// ReadUint8 reads the next byte
func (p *Packet) ReadUint8() uint8 {
	b := p.next(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadUint16 reads the next little-endian uint16
func (p *Packet) ReadUint16() uint16 {
	b := p.next(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// ReadUint32 reads the next little-endian uint32
func (p *Packet) ReadUint32() uint32 {
	b := p.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadInt8 reads the next byte as a signed value
func (p *Packet) ReadInt8() int8 {
	return int8(p.ReadUint8())
}

// ReadInt16 reads the next little-endian int16
func (p *Packet) ReadInt16() int16 {
	return int16(p.ReadUint16())
}

// ReadInt32 reads the next little-endian int32
func (p *Packet) ReadInt32() int32 {
	return int32(p.ReadUint32())
}

// ReadFloat32 reads the next IEEE-754 single
func (p *Packet) ReadFloat32() float32 {
	b := p.next(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

// ReadFloat64 reads the next IEEE-754 double
func (p *Packet) ReadFloat64() float64 {
	b := p.next(8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// ReadDouble is an alias for ReadFloat64
func (p *Packet) ReadDouble() float64 {
	return p.ReadFloat64()
}

// ReadUint8At reads the byte at absolute frame offset idx.
// The read cursor is not used or moved.
func (p *Packet) ReadUint8At(idx int) uint8 {
	b := p.at(idx, 1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadUint32At reads a little-endian uint32 at absolute frame offset idx
func (p *Packet) ReadUint32At(idx int) uint32 {
	b := p.at(idx, 4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadFloat64At reads a little-endian double at absolute frame offset idx
func (p *Packet) ReadFloat64At(idx int) float64 {
	b := p.at(idx, 8)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
