// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pion/logging"
)

// silenceDiagnostics mutes the package logger for the rest of the test
func silenceDiagnostics(t *testing.T) {
	SetLoggerFactory(nil)
	t.Cleanup(func() { SetLoggerFactory(logging.NewDefaultLoggerFactory()) })
}

func testVocabulary() *Vocabulary {
	return NewVocabulary("demo",
		Command{ID: 0x00, Name: "PING", PayloadSize: 0},
		Command{
			ID:          0x01,
			Name:        "LEVEL",
			PayloadSize: 1,
			Describe: func(p *Packet) string {
				return fmt.Sprintf("  Level: %d\n", p.ReadUint8())
			},
			Check: func(p *Packet) []ValidationError {
				if v := p.ReadUint8(); v > 100 {
					return []ValidationError{{Type: AnomalyInvalidValue, Message: "level above 100"}}
				}
				return nil
			},
		},
		Command{
			ID:          0x02,
			Name:        "TEXT",
			PayloadSize: VariableLength,
			Check: func(p *Packet) []ValidationError {
				p.ReadUint32() // header field every TEXT frame must carry
				return nil
			},
		},
	)
}

// ============================================================
// Vocabulary Tests
// ============================================================

func TestVocabulary_Lookup(t *testing.T) {
	v := testVocabulary()

	if v.Name() != "demo" {
		t.Errorf("expected name demo, got %s", v.Name())
	}
	if v.CommandName(1) != "LEVEL" {
		t.Errorf("expected LEVEL, got %s", v.CommandName(1))
	}
	if v.CommandName(0x42) != "UNKNOWN" {
		t.Errorf("expected UNKNOWN, got %s", v.CommandName(0x42))
	}
	if c, ok := v.ByName("text"); !ok || c.ID != 2 {
		t.Errorf("ByName(text) failed: %+v %v", c, ok)
	}

	cmds := v.Commands()
	if len(cmds) != 3 || cmds[0].ID != 0 || cmds[2].ID != 2 {
		t.Errorf("Commands not sorted: %+v", cmds)
	}
}

func TestVocabulary_Nil(t *testing.T) {
	var v *Vocabulary

	if v.Name() != "none" {
		t.Errorf("expected none, got %s", v.Name())
	}
	if v.CommandName(7) != "CMD_7" {
		t.Errorf("expected CMD_7, got %s", v.CommandName(7))
	}
	if errs := v.Validate(NewPacket(7, 1)); len(errs) != 0 {
		t.Errorf("nil vocabulary should accept everything, got %v", errs)
	}
}

// ============================================================
// Validator Tests
// ============================================================

func TestValidate(t *testing.T) {
	v := testVocabulary()

	tests := []struct {
		name  string
		build func() *Packet
		want  []AnomalyType
	}{
		{
			name:  "valid ping",
			build: func() *Packet { return NewPacket(0, 1) },
		},
		{
			name: "valid level",
			build: func() *Packet {
				p := NewPacket(1, 1)
				p.WriteUint8(50)
				return p
			},
		},
		{
			name:  "unknown command",
			build: func() *Packet { return NewPacket(0x30, 1) },
			want:  []AnomalyType{AnomalyUnknownCommand},
		},
		{
			name: "length mismatch",
			build: func() *Packet {
				p := NewPacket(0, 1)
				p.WriteUint8(1)
				return p
			},
			want: []AnomalyType{AnomalyLengthMismatch},
		},
		{
			name: "invalid value",
			build: func() *Packet {
				p := NewPacket(1, 1)
				p.WriteUint8(200)
				return p
			},
			want: []AnomalyType{AnomalyInvalidValue},
		},
		{
			name: "short variable payload",
			build: func() *Packet {
				p := NewPacket(2, 1)
				p.WriteUint16(1)
				return p
			},
			want: []AnomalyType{AnomalyReadError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			silenceDiagnostics(t)
			p := tt.build()

			errs := v.Validate(p)
			if len(errs) != len(tt.want) {
				t.Fatalf("expected %d anomalies, got %d: %v", len(tt.want), len(errs), errs)
			}
			for i, e := range errs {
				if e.Type != tt.want[i] {
					t.Errorf("anomaly %d: expected %s, got %s", i, tt.want[i], e.Type)
				}
				if e.Error() == "" {
					t.Errorf("anomaly %d has no message", i)
				}
			}

			// Validation does not consume the caller's cursor
			if p.Err() != nil {
				t.Errorf("validation leaked an error into the frame: %v", p.Err())
			}
		})
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatPacket(t *testing.T) {
	v := testVocabulary()

	level := NewPacket(1, 2)
	level.WriteUint8(42)
	out := FormatPacket(level, v)
	if !strings.Contains(out, "LEVEL (0x01) dev=2 len=1") {
		t.Errorf("missing header in %q", out)
	}
	if !strings.Contains(out, "Level: 42") {
		t.Errorf("missing description in %q", out)
	}
	if level.Remaining() != 1 {
		t.Error("formatting must not move the frame's read cursor")
	}

	ping := FormatPacket(NewPacket(0, 1), v)
	if !strings.Contains(ping, "(no payload)") {
		t.Errorf("expected no payload marker in %q", ping)
	}

	raw := NewPacket(0x55, 1)
	raw.WriteUint16(0xBBAA)
	out = FormatPacket(raw, nil)
	if !strings.Contains(out, "CMD_85 (0x55)") || !strings.Contains(out, "Payload: AA BB") {
		t.Errorf("unexpected raw format %q", out)
	}
}

func TestFormatPayload_Wraps(t *testing.T) {
	payload := make([]byte, 20)
	out := FormatPayload(payload)
	if strings.Count(out, "\n") != 2 {
		t.Errorf("expected two lines for 20 bytes, got %q", out)
	}
	if FormatHex([]byte{0x01, 0xAB}) != "01 AB" {
		t.Errorf("unexpected FormatHex: %s", FormatHex([]byte{0x01, 0xAB}))
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics(t *testing.T) {
	v := testVocabulary()
	stats := NewStatistics()
	silenceDiagnostics(t)

	valid := NewPacket(1, 1)
	valid.WriteUint8(10)
	bad := NewPacket(1, 1)
	bad.WriteUint8(250)
	unknown := NewPacket(0x33, 1)

	for _, p := range []*Packet{valid, valid, bad, unknown} {
		stats.Update(p, v.Validate(p))
	}
	stats.SetDiscarded(12)

	if stats.TotalFrames != 4 || stats.ValidFrames != 2 || stats.AnomalousFrames != 2 {
		t.Errorf("unexpected totals: %+v", stats)
	}
	if stats.InvalidValues != 1 || stats.UnknownCommands != 1 {
		t.Errorf("unexpected anomaly counts: %+v", stats)
	}
	if stats.ByCommand[1] != 3 || stats.ByCommand[0x33] != 1 {
		t.Errorf("unexpected per command counts: %v", stats.ByCommand)
	}

	out := stats.String()
	for _, want := range []string{"Total Frames:", "Unknown Cmd:", "Discarded Bytes:", "0x33"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}

	stats.Reset()
	if stats.TotalFrames != 0 || len(stats.ByCommand) != 0 || stats.DiscardedBytes != 0 {
		t.Errorf("Reset did not clear counters: %+v", stats)
	}
}
