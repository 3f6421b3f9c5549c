// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
	"time"

	"github.com/pion/transport/v3/test"
)

// autoDeliver ticks the bridge in the background until the test ends
func autoDeliver(t *testing.T, br *test.Bridge) {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				br.Tick()
				time.Sleep(time.Millisecond)
			}
		}
	}()
	t.Cleanup(func() { close(done) })
}

func TestReader_OverBridge(t *testing.T) {
	br := test.NewBridge()
	tx, rx := br.GetConn0(), br.GetConn1()
	defer tx.Close()
	defer rx.Close()

	first := NewPacket(1, 1)
	first.WriteInt32(-12345)
	second := NewPacket(2, 1)
	second.WriteFloat64(0.25)
	raw := second.Raw()

	// Two frames, the second split across datagrams with noise in front
	if _, err := tx.Write(first.Raw()); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := tx.Write(append([]byte{0x00, 0x13}, raw[:5]...)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, err := tx.Write(raw[5:]); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	autoDeliver(t, br)

	r := NewReader(rx)

	p, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if p.Command() != 1 || p.ReadInt32() != -12345 {
		t.Errorf("unexpected first frame: %v", p)
	}

	p, err = r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if p.Command() != 2 || p.ReadFloat64() != 0.25 {
		t.Errorf("unexpected second frame: %v", p)
	}
	if r.Discarded() != 2 {
		t.Errorf("expected 2 discarded bytes, got %d", r.Discarded())
	}
}

func TestReader_ManyFramesInOneRead(t *testing.T) {
	var stream bytes.Buffer
	for i := 0; i < 10; i++ {
		p := NewPacket(uint8(i), 3)
		p.WriteUint8(uint8(i))
		p.WriteTo(&stream)
	}

	r := NewReader(&stream)
	for i := 0; i < 10; i++ {
		p, err := r.ReadPacket()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if p.Command() != uint8(i) || p.ReadUint8() != uint8(i) {
			t.Errorf("frame %d mismatch: %v", i, p)
		}
	}

	if _, err := r.ReadPacket(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReader_OneByteReads(t *testing.T) {
	p := NewPacket(9, 2)
	p.WriteUint32(0xCAFEF00D)

	r := NewReader(iotest.OneByteReader(bytes.NewReader(p.Raw())))
	got, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if got.ReadUint32() != 0xCAFEF00D {
		t.Errorf("payload mismatch: % X", got.Payload())
	}
}

func TestReader_DataWithError(t *testing.T) {
	p := NewPacket(4, 1)
	p.WriteUint16(7)

	// The frame arrives in the same Read call that reports EOF
	r := NewReader(iotest.DataErrReader(bytes.NewReader(p.Raw())))
	got, err := r.ReadPacket()
	if err != nil {
		t.Fatalf("frame should be returned before the error: %v", err)
	}
	if got.Command() != 4 {
		t.Errorf("unexpected frame: %v", got)
	}
	if _, err := r.ReadPacket(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReader_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	r := NewReader(iotest.ErrReader(boom))

	if _, err := r.ReadPacket(); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

// ============================================================
// Capture Tests
// ============================================================

func TestCapture_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewCaptureWriter(&buf)

	frames := []*Packet{NewPacket(1, 1), NewPacket(2, 1), NewPacket(3, 9)}
	frames[1].WriteFloat64(-1.5)
	frames[2].WriteUint8(0xFF)

	for i, p := range frames {
		if err := w.Write(p, "udp:127.0.0.1:9999"); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if w.Count() != len(frames) {
		t.Errorf("expected count %d, got %d", len(frames), w.Count())
	}

	r := NewCaptureReader(&buf)
	for i, want := range frames {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if rec.Source != "udp:127.0.0.1:9999" {
			t.Errorf("record %d: source mismatch %q", i, rec.Source)
		}
		if !rec.Time().Equal(want.Timestamp()) {
			t.Errorf("record %d: timestamp mismatch %v vs %v", i, rec.Time(), want.Timestamp())
		}
		p, err := rec.Packet()
		if err != nil {
			t.Fatalf("record %d: decode: %v", i, err)
		}
		if !bytes.Equal(p.Raw(), want.Raw()) {
			t.Errorf("record %d: frame mismatch % X vs % X", i, p.Raw(), want.Raw())
		}
	}

	if _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestCapture_CorruptRecord(t *testing.T) {
	r := NewCaptureReader(bytes.NewReader([]byte{0xA1, 0x03, 0x1F}))
	if _, err := r.Next(); err == nil || err == io.EOF {
		t.Errorf("expected decode error, got %v", err)
	}

	rec := Record{Frame: []byte{0x01, 0x02}}
	if _, err := rec.Packet(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("expected ErrNoFrame, got %v", err)
	}
}
