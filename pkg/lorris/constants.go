// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package lorris provides a Go implementation of the Lorris packet protocol.
//
// Lorris is a small binary framing protocol for exchanging command and
// telemetry messages between a controller and an embedded peer over an
// unreliable transport (UDP datagrams, serial lines, WebSocket bridges).
// This package provides the frame builder/reader (Packet), the incremental
// byte-stream decoder (PacketParser), text encodings, capture files and
// payload formatting.
//
// Wire format (multi-byte fields little-endian):
//
//	0xFF | device id | command id | length | payload[length]
package lorris

import "errors"

// Protocol framing bytes
const (
	StartByte = 0xFF
)

// Header layout
const (
	IndexStart    = 0
	IndexDeviceID = 1
	IndexCommand  = 2
	IndexLength   = 3
	IndexData     = 4

	HeaderSize = IndexData
)

// Frame size limits
const (
	MaxPacketSize  = 255
	MaxPayloadSize = MaxPacketSize - HeaderSize // 251
)

// DefaultDeviceID is the device id used when none is given.
const DefaultDeviceID = 1

// Parser states (internal)
const (
	stateStart = iota
	stateDevice
	stateCommand
	stateLength
	stateData
)

// Errors reported by Packet.
var (
	// ErrOversizeWrite is returned when a write would grow the frame past
	// MaxPacketSize. The frame is left unchanged.
	ErrOversizeWrite = errors.New("lorris: write exceeds maximum frame size")

	// ErrOutOfRangeRead is recorded when a read runs past the end of the
	// frame. The read returns a zero value.
	ErrOutOfRangeRead = errors.New("lorris: read past end of frame")

	// ErrNoFrame is returned by the Parse functions when the input holds no
	// complete frame.
	ErrNoFrame = errors.New("lorris: no complete frame in input")
)
