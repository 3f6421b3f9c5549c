// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import (
	"fmt"
	"strings"
)

// FormatPacket formats a frame into a human-readable string. Payloads of
// commands known to vocab are described field by field, anything else is
// hex dumped. vocab may be nil.
func FormatPacket(p *Packet, vocab *Vocabulary) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	cmdName := vocab.CommandName(p.Command())

	result := fmt.Sprintf("[%s] %s (0x%02X) dev=%d len=%d\n", timestamp, cmdName, p.Command(), p.DeviceID(), p.DataLength())

	if cmd, ok := vocab.Lookup(p.Command()); ok && cmd.Describe != nil {
		c := p.Clone()
		c.Rewind()
		return result + cmd.Describe(c)
	}

	if p.DataLength() == 0 {
		return result + "  (no payload)\n"
	}
	return result + FormatPayload(p.Payload())
}

// FormatPayload returns an indented hex dump, 16 bytes per line
func FormatPayload(payload []byte) string {
	var s strings.Builder
	s.WriteString("  Payload: ")
	for i, b := range payload {
		if i > 0 && i%16 == 0 {
			s.WriteString("\n           ")
		}
		s.WriteString(fmt.Sprintf("%02X ", b))
	}
	s.WriteString("\n")
	return s.String()
}

// FormatHex returns bytes as space separated hex pairs
func FormatHex(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
