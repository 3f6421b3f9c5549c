// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// RawLatin1 returns the frame as an ISO-8859-1 string: each byte becomes
// exactly one code point (U+0000 to U+00FF). Useful for text-only channels
// that carry one character per byte.
func (p *Packet) RawLatin1() string {
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(p.data)
	if err != nil {
		// ISO-8859-1 maps every byte, decoding cannot fail
		return ""
	}
	return string(s)
}

// ToBase64 returns the frame in standard base64 (RFC 4648, '=' padded)
func (p *Packet) ToBase64() string {
	return base64.StdEncoding.EncodeToString(p.data)
}

// ToHex returns the frame as lowercase hex
func (p *Packet) ToHex() string {
	return hex.EncodeToString(p.data)
}

// ParseRaw decodes the first complete frame in data. Leading bytes before a
// start marker are skipped. The returned packet is owned by the caller.
func ParseRaw(data []byte) (*Packet, error) {
	pp := NewPacketParser()
	for _, b := range data {
		if pp.AddByte(b) {
			return pp.Take(), nil
		}
	}
	return nil, ErrNoFrame
}

// ParseLatin1 decodes a frame produced by RawLatin1
func ParseLatin1(s string) (*Packet, error) {
	data, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		return nil, fmt.Errorf("invalid latin-1 frame: %w", err)
	}
	return ParseRaw([]byte(data))
}

// ParseBase64 decodes a frame produced by ToBase64
func ParseBase64(s string) (*Packet, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 frame: %w", err)
	}
	return ParseRaw(data)
}

// ParseHex decodes a hex frame. Spaces and a leading 0x are ignored.
func ParseHex(s string) (*Packet, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.ReplaceAll(s, " ", "")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame: %w", err)
	}
	return ParseRaw(data)
}
