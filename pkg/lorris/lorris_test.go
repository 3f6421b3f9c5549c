// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/pion/logging"
)

// newCapturingPacket returns a packet whose diagnostics land in buf
func newCapturingPacket(command, deviceID uint8, buf *bytes.Buffer) *Packet {
	p := NewPacket(command, deviceID)
	p.SetLogger(logging.NewDefaultLeveledLoggerForScope("test", logging.LogLevelTrace, buf))
	return p
}

// fillPayload writes n single-byte fields
func fillPayload(t *testing.T, p *Packet, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := p.WriteUint8(uint8(i)); err != nil {
			t.Fatalf("fill write %d failed: %v", i, err)
		}
	}
}

// ============================================================
// Packet Construction Tests
// ============================================================

func TestNewPacket(t *testing.T) {
	p := NewPacket(5, 3)

	if p.Command() != 5 {
		t.Errorf("Command mismatch: expected 5, got %d", p.Command())
	}
	if p.DeviceID() != 3 {
		t.Errorf("DeviceID mismatch: expected 3, got %d", p.DeviceID())
	}
	if p.DataLength() != 0 {
		t.Errorf("DataLength should be 0, got %d", p.DataLength())
	}

	expected := []byte{StartByte, 3, 5, 0}
	if !bytes.Equal(p.Raw(), expected) {
		t.Errorf("Raw mismatch: expected % X, got % X", expected, p.Raw())
	}
}

func TestZeroValuePacket(t *testing.T) {
	var p Packet

	if p.Command() != 0 || p.DeviceID() != 0 || p.DataLength() != 0 {
		t.Errorf("zero packet header mismatch: %s", p.String())
	}
	if len(p.Payload()) != 0 {
		t.Errorf("zero packet payload should be empty, got % X", p.Payload())
	}

	if err := p.WriteUint16(0x0102); err != nil {
		t.Fatalf("write on zero packet failed: %v", err)
	}
	expected := []byte{StartByte, 0, 0, 2, 0x02, 0x01}
	if !bytes.Equal(p.Raw(), expected) {
		t.Errorf("Raw mismatch: expected % X, got % X", expected, p.Raw())
	}

	var q Packet
	q.Reset(7, 2)
	if q.Command() != 7 || q.DeviceID() != 2 {
		t.Errorf("Reset zero packet: got %s", q.String())
	}
}

func TestReset_Idempotent(t *testing.T) {
	p := NewPacket(1, 1)
	p.WriteUint32(0xDEADBEEF)
	p.WriteFloat64(3.5)
	p.ReadUint16()
	p.ReadUint8At(200) // record an error

	for i := 0; i < 3; i++ {
		p.Reset(9, 7)
		if p.DataLength() != 0 {
			t.Errorf("round %d: DataLength should be 0, got %d", i, p.DataLength())
		}
		if p.Command() != 9 {
			t.Errorf("round %d: Command should be 9, got %d", i, p.Command())
		}
		if p.DeviceID() != 7 {
			t.Errorf("round %d: DeviceID should be 7, got %d", i, p.DeviceID())
		}
		if p.Size() != HeaderSize {
			t.Errorf("round %d: Size should be %d, got %d", i, HeaderSize, p.Size())
		}
		if p.Err() != nil {
			t.Errorf("round %d: Err should be cleared, got %v", i, p.Err())
		}
	}
}

func TestWrite_UpdatesLengthField(t *testing.T) {
	p := NewPacket(0, 1)
	p.WriteUint8(1)
	p.WriteUint16(2)
	p.WriteUint32(3)
	p.WriteFloat32(4)
	p.WriteFloat64(5)

	const want = 1 + 2 + 4 + 4 + 8
	if p.DataLength() != want {
		t.Errorf("DataLength mismatch: expected %d, got %d", want, p.DataLength())
	}
	if p.RawArray()[IndexLength] != want {
		t.Errorf("length byte mismatch: expected %d, got %d", want, p.RawArray()[IndexLength])
	}
	if p.Size() != HeaderSize+want {
		t.Errorf("Size mismatch: expected %d, got %d", HeaderSize+want, p.Size())
	}
}

func TestWrite_LittleEndian(t *testing.T) {
	p := NewPacket(0, 1)
	p.WriteUint16(0x1234)
	p.WriteUint32(0xA1B2C3D4)
	p.WriteInt16(-2)

	expected := []byte{0x34, 0x12, 0xD4, 0xC3, 0xB2, 0xA1, 0xFE, 0xFF}
	if !bytes.Equal(p.Payload(), expected) {
		t.Errorf("Payload mismatch: expected % X, got % X", expected, p.Payload())
	}
}

// ============================================================
// Round-Trip Tests
// ============================================================

func TestRoundTrip_Unsigned(t *testing.T) {
	tests := []struct {
		name string
		u8   uint8
		u16  uint16
		u32  uint32
	}{
		{"zero", 0, 0, 0},
		{"one", 1, 1, 1},
		{"max", math.MaxUint8, math.MaxUint16, math.MaxUint32},
		{"mixed", 0xA5, 0xBEEF, 0xCAFEBABE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPacket(0, 1)
			p.WriteUint8(tt.u8)
			p.WriteUint16(tt.u16)
			p.WriteUint32(tt.u32)

			if got := p.ReadUint8(); got != tt.u8 {
				t.Errorf("ReadUint8: expected %d, got %d", tt.u8, got)
			}
			if got := p.ReadUint16(); got != tt.u16 {
				t.Errorf("ReadUint16: expected %d, got %d", tt.u16, got)
			}
			if got := p.ReadUint32(); got != tt.u32 {
				t.Errorf("ReadUint32: expected %d, got %d", tt.u32, got)
			}
			if p.Err() != nil {
				t.Errorf("unexpected error: %v", p.Err())
			}
		})
	}
}

func TestRoundTrip_Signed(t *testing.T) {
	tests := []struct {
		name string
		i8   int8
		i16  int16
		i32  int32
	}{
		{"minus one", -1, -1, -1},
		{"min", math.MinInt8, math.MinInt16, math.MinInt32},
		{"max", math.MaxInt8, math.MaxInt16, math.MaxInt32},
		{"small", -7, -300, -70000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPacket(0, 1)
			p.WriteInt8(tt.i8)
			p.WriteInt16(tt.i16)
			p.WriteInt32(tt.i32)

			if got := p.ReadInt8(); got != tt.i8 {
				t.Errorf("ReadInt8: expected %d, got %d", tt.i8, got)
			}
			if got := p.ReadInt16(); got != tt.i16 {
				t.Errorf("ReadInt16: expected %d, got %d", tt.i16, got)
			}
			if got := p.ReadInt32(); got != tt.i32 {
				t.Errorf("ReadInt32: expected %d, got %d", tt.i32, got)
			}
		})
	}
}

func TestRoundTrip_Int8MinusOneIsByte255(t *testing.T) {
	p := NewPacket(0, 1)
	p.WriteInt8(-1)

	if p.Payload()[0] != 255 {
		t.Errorf("expected wire byte 255, got %d", p.Payload()[0])
	}
	if got := p.ReadUint8At(IndexData); got != 255 {
		t.Errorf("ReadUint8At: expected 255, got %d", got)
	}
	if got := p.ReadInt8(); got != -1 {
		t.Errorf("ReadInt8: expected -1, got %d", got)
	}
}

func TestRoundTrip_Float32(t *testing.T) {
	values := []float32{0, 0.1, -1.5, math.MaxFloat32, math.SmallestNonzeroFloat32, float32(math.Inf(-1))}

	for _, v := range values {
		p := NewPacket(0, 1)
		p.WriteFloat32(v)
		got := p.ReadFloat32()
		if math.Float32bits(got) != math.Float32bits(v) {
			t.Errorf("Float32 round trip: expected %v, got %v", v, got)
		}
	}
}

func TestRoundTrip_Float64(t *testing.T) {
	values := []float64{0, 0.1, -2.25, math.Pi, math.MaxFloat64, math.SmallestNonzeroFloat64, math.Inf(1)}

	for _, v := range values {
		p := NewPacket(0, 1)
		p.WriteFloat64(v)
		if got := p.ReadFloat64(); got != v {
			t.Errorf("Float64 round trip: expected %v, got %v", v, got)
		}
	}
}

func TestRoundTrip_NaNBitPattern(t *testing.T) {
	nan64 := math.Float64frombits(0x7FF8000000000001)
	nan32 := math.Float32frombits(0x7FC00001)

	p := NewPacket(0, 1)
	p.WriteFloat64(nan64)
	p.WriteFloat32(nan32)

	if got := math.Float64bits(p.ReadFloat64()); got != 0x7FF8000000000001 {
		t.Errorf("Float64 NaN bits: expected 0x7FF8000000000001, got 0x%016X", got)
	}
	if got := math.Float32bits(p.ReadFloat32()); got != 0x7FC00001 {
		t.Errorf("Float32 NaN bits: expected 0x7FC00001, got 0x%08X", got)
	}
}

func TestDoubleAliases(t *testing.T) {
	p := NewPacket(0, 1)
	p.WriteDouble(0.1)
	p.WriteFloat64(0.1)

	if !bytes.Equal(p.Payload()[:8], p.Payload()[8:]) {
		t.Errorf("WriteDouble and WriteFloat64 should encode identically: % X", p.Payload())
	}
	if p.ReadDouble() != 0.1 || p.ReadFloat64() != 0.1 {
		t.Error("ReadDouble/ReadFloat64 should both decode 0.1")
	}
}

// ============================================================
// Boundary Tests
// ============================================================

func TestWrite_FullFrameRejectsAnyWidth(t *testing.T) {
	writes := []struct {
		name  string
		write func(p *Packet) error
	}{
		{"uint8", func(p *Packet) error { return p.WriteUint8(1) }},
		{"uint16", func(p *Packet) error { return p.WriteUint16(1) }},
		{"uint32", func(p *Packet) error { return p.WriteUint32(1) }},
		{"int8", func(p *Packet) error { return p.WriteInt8(-1) }},
		{"float32", func(p *Packet) error { return p.WriteFloat32(1) }},
		{"float64", func(p *Packet) error { return p.WriteFloat64(1) }},
	}

	for _, w := range writes {
		t.Run(w.name, func(t *testing.T) {
			var logBuf bytes.Buffer
			p := newCapturingPacket(0, 1, &logBuf)
			fillPayload(t, p, MaxPayloadSize)
			if p.Size() != MaxPacketSize {
				t.Fatalf("expected full frame of %d bytes, got %d", MaxPacketSize, p.Size())
			}
			before := p.Raw()

			err := w.write(p)
			if !errors.Is(err, ErrOversizeWrite) {
				t.Errorf("expected ErrOversizeWrite, got %v", err)
			}
			if !bytes.Equal(p.Raw(), before) {
				t.Error("frame changed after rejected write")
			}
			if p.DataLength() != MaxPayloadSize {
				t.Errorf("DataLength changed: %d", p.DataLength())
			}
			if !strings.Contains(logBuf.String(), "invalid write()") {
				t.Errorf("expected diagnostic, got %q", logBuf.String())
			}
		})
	}
}

func TestWrite_LandingExactlyOnLimitSucceeds(t *testing.T) {
	p := NewPacket(0, 1)
	fillPayload(t, p, MaxPayloadSize-4)

	if err := p.WriteUint32(0x01020304); err != nil {
		t.Fatalf("write landing on %d bytes should succeed: %v", MaxPacketSize, err)
	}
	if p.Size() != MaxPacketSize {
		t.Errorf("expected size %d, got %d", MaxPacketSize, p.Size())
	}
	if p.DataLength() != MaxPayloadSize {
		t.Errorf("expected length %d, got %d", MaxPayloadSize, p.DataLength())
	}
}

func TestWrite_NoPartialWrite(t *testing.T) {
	p := NewPacket(0, 1)
	fillPayload(t, p, MaxPayloadSize-1) // 254 bytes total
	before := p.Raw()

	if err := p.WriteUint16(0xFFFF); !errors.Is(err, ErrOversizeWrite) {
		t.Fatalf("expected ErrOversizeWrite, got %v", err)
	}
	if !bytes.Equal(p.Raw(), before) {
		t.Error("rejected write must not append any byte")
	}
	if err := p.WriteUint8(0x42); err != nil {
		t.Errorf("single byte should still fit: %v", err)
	}
}

// ============================================================
// Read Tests
// ============================================================

func TestRead_OutOfRangeReturnsZero(t *testing.T) {
	var logBuf bytes.Buffer
	p := newCapturingPacket(0, 1, &logBuf)

	if got := p.ReadUint8(); got != 0 {
		t.Errorf("expected 0 from empty payload, got %d", got)
	}
	if !errors.Is(p.Err(), ErrOutOfRangeRead) {
		t.Errorf("expected ErrOutOfRangeRead, got %v", p.Err())
	}
	if !strings.Contains(logBuf.String(), "invalid read()") {
		t.Errorf("expected diagnostic, got %q", logBuf.String())
	}

	// Cursor behaviour after reset is unaffected
	p.Reset(0, 1)
	p.WriteUint8(0x7A)
	if got := p.ReadUint8(); got != 0x7A {
		t.Errorf("expected 0x7A after reset, got 0x%02X", got)
	}
	if p.Err() != nil {
		t.Errorf("unexpected error after reset: %v", p.Err())
	}
}

func TestDiagnostics_LoggedAsWarnings(t *testing.T) {
	var logBuf bytes.Buffer
	p := newCapturingPacket(0, 1, &logBuf)
	fillPayload(t, p, MaxPayloadSize)

	p.WriteUint8(1)
	p.ReadUint32At(MaxPacketSize)

	logged := logBuf.String()
	if strings.Count(logged, "WARNING") != 2 {
		t.Errorf("expected two warnings, got %q", logged)
	}
	if strings.Contains(logged, "ERROR") {
		t.Errorf("diagnostics must not be logged as errors: %q", logged)
	}
}

func TestRead_FailedReadKeepsCursor(t *testing.T) {
	p := NewPacket(0, 1)
	p.WriteUint16(0xBEEF)

	if got := p.ReadUint32(); got != 0 {
		t.Errorf("expected 0 for short read, got %d", got)
	}
	if got := p.ReadUint16(); got != 0xBEEF {
		t.Errorf("cursor moved by failed read: got 0x%04X", got)
	}
}

func TestRead_AllWidthsOutOfRange(t *testing.T) {
	p := NewPacket(0, 1)

	if p.ReadUint16() != 0 || p.ReadUint32() != 0 || p.ReadInt8() != 0 ||
		p.ReadInt16() != 0 || p.ReadInt32() != 0 || p.ReadFloat32() != 0 || p.ReadFloat64() != 0 {
		t.Error("all reads on an empty payload should return zero")
	}
	if p.Remaining() != 0 {
		t.Errorf("Remaining should be 0, got %d", p.Remaining())
	}
}

func TestReadAt_DoesNotMoveCursor(t *testing.T) {
	p := NewPacket(0x21, 4)
	p.WriteUint32(0x11223344)
	p.WriteFloat64(-0.5)

	if got := p.ReadUint8At(IndexCommand); got != 0x21 {
		t.Errorf("ReadUint8At(command): expected 0x21, got 0x%02X", got)
	}
	if got := p.ReadUint8At(IndexDeviceID); got != 4 {
		t.Errorf("ReadUint8At(device): expected 4, got %d", got)
	}
	if got := p.ReadUint32At(IndexData); got != 0x11223344 {
		t.Errorf("ReadUint32At: expected 0x11223344, got 0x%08X", got)
	}
	if got := p.ReadFloat64At(IndexData + 4); got != -0.5 {
		t.Errorf("ReadFloat64At: expected -0.5, got %v", got)
	}

	// Sequential reads still start at the first payload byte
	if got := p.ReadUint32(); got != 0x11223344 {
		t.Errorf("ReadUint32 after ReadAt: expected 0x11223344, got 0x%08X", got)
	}
}

func TestReadAt_OutOfRange(t *testing.T) {
	p := NewPacket(0, 1)
	p.WriteUint16(1)

	if got := p.ReadUint32At(IndexData); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := p.ReadFloat64At(0); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
	if got := p.ReadUint8At(-1); got != 0 {
		t.Errorf("expected 0 for negative index, got %d", got)
	}
	if got := p.ReadUint8At(p.Size()); got != 0 {
		t.Errorf("expected 0 past end, got %d", got)
	}
	if got := p.ReadUint8At(p.Size() - 1); got != 0 {
		t.Errorf("last byte should be 0 (high byte of uint16 1), got %d", got)
	}
}

// ============================================================
// Raw Form Tests
// ============================================================

func TestRawForms_Equivalent(t *testing.T) {
	p := NewPacket(3, 2)
	p.WriteUint16(0xABCD)

	raw := p.Raw()
	if !bytes.Equal(raw, p.RawArray()) {
		t.Errorf("Raw and RawArray differ: % X vs % X", raw, p.RawArray())
	}
	if !bytes.Equal(raw, p.RawBuffer().Bytes()) {
		t.Errorf("Raw and RawBuffer differ")
	}

	var w bytes.Buffer
	n, err := p.WriteTo(&w)
	if err != nil || n != int64(len(raw)) {
		t.Fatalf("WriteTo: n=%d err=%v", n, err)
	}
	if !bytes.Equal(w.Bytes(), raw) {
		t.Errorf("WriteTo mismatch")
	}

	// Raw is a copy
	raw[0] = 0
	if p.RawArray()[0] != StartByte {
		t.Error("modifying Raw() result must not change the packet")
	}
}

func TestClone_Independent(t *testing.T) {
	p := NewPacket(1, 1)
	p.WriteUint8(10)
	c := p.Clone()

	p.Reset(2, 2)
	p.WriteUint8(20)

	if c.Command() != 1 || c.ReadUint8() != 10 {
		t.Error("clone should be unaffected by later writes to the original")
	}
}
